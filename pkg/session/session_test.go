package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/nnnkkk7/sqlrunner/pkg/connection"
	"github.com/nnnkkk7/sqlrunner/pkg/metrics"
	"github.com/nnnkkk7/sqlrunner/pkg/query"
)

// fakeDB hands out FuncConns that all run exec.
type fakeDB struct {
	opens atomic.Int32
	exec  func(ctx context.Context, sql string) (*query.Response, error)
	close func() error
}

func (f *fakeDB) Open(_ context.Context) (connection.Conn, error) {
	f.opens.Add(1)
	return &connection.FuncConn{ExecuteFn: f.exec, CloseFn: f.close}, nil
}

// okExec succeeds for everything except statements containing BAD.
func okExec(_ context.Context, sqlText string) (*query.Response, error) {
	if strings.Contains(sqlText, "BAD") {
		return nil, &query.QueryError{Message: "syntax error at or near \"BAD\"", Code: "PARSER_ERROR"}
	}
	if query.IsQuery(sqlText) {
		return &query.Response{Columns: []string{"x"}, Rows: [][]interface{}{{1}}}, nil
	}
	return &query.Response{}, nil
}

func newTestSession(t *testing.T, opener connection.Opener, opts Options) *Session {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t)
	}
	s := New(opener, opts)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSession_Submit(t *testing.T) {
	db := &fakeDB{exec: okExec}
	m := metrics.New(nil)
	s := newTestSession(t, db, Options{Metrics: m})

	res := s.Submit(context.Background(), "SELECT 1", 0)
	if res.Failed() {
		t.Fatalf("Submit() failed: %v", res.Messages)
	}
	if diff := cmp.Diff([]string{"x"}, res.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	if got := db.opens.Load(); got != 1 {
		t.Errorf("opens = %d, want 1", got)
	}
	if got := testutil.ToFloat64(m.StatementsTotal.WithLabelValues(string(query.StatusSuccess), metrics.LblOK)); got != 1 {
		t.Errorf("statements_total{success} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.QueueDepth); got != 0 {
		t.Errorf("queue depth = %v, want 0", got)
	}
}

func TestSession_SubmitNeverInterleaves(t *testing.T) {
	var (
		running   atomic.Int32
		maxActive atomic.Int32
		mu        sync.Mutex
		events    []string
	)
	db := &fakeDB{exec: func(_ context.Context, sqlText string) (*query.Response, error) {
		n := running.Add(1)
		defer running.Add(-1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		mu.Lock()
		events = append(events, "start "+sqlText)
		mu.Unlock()
		time.Sleep(2 * time.Millisecond)
		mu.Lock()
		events = append(events, "end "+sqlText)
		mu.Unlock()
		return &query.Response{}, nil
	}}
	s := newTestSession(t, db, Options{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Submit(context.Background(), fmt.Sprintf("SELECT %d", i), 0)
		}()
	}
	wg.Wait()

	if got := maxActive.Load(); got != 1 {
		t.Errorf("max concurrent executions = %d, want 1", got)
	}
	if len(events) != 20 {
		t.Fatalf("events = %d, want 20", len(events))
	}
	for i := 0; i < len(events); i += 2 {
		start, end := events[i], events[i+1]
		if !strings.HasPrefix(start, "start ") || end != "end "+strings.TrimPrefix(start, "start ") {
			t.Errorf("interleaved events at %d: %q, %q", i, start, end)
		}
	}
}

func TestSession_SubmitBatchContinuesOnError(t *testing.T) {
	var executed []string
	db := &fakeDB{exec: func(ctx context.Context, sqlText string) (*query.Response, error) {
		executed = append(executed, sqlText)
		return okExec(ctx, sqlText)
	}}
	s := newTestSession(t, db, Options{})

	results := s.SubmitBatch(context.Background(), []string{"SELECT BAD", "SELECT 2"}, 0)
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if !results[0].Failed() || results[0].ErrorKind != query.ErrorKindQuery {
		t.Errorf("first result = %s/%s, want failure/query", results[0].Status, results[0].ErrorKind)
	}
	if results[1].Failed() {
		t.Errorf("second result failed: %v", results[1].Messages)
	}
	if diff := cmp.Diff([]string{"SELECT BAD", "SELECT 2"}, executed); diff != "" {
		t.Errorf("executed mismatch (-want +got):\n%s", diff)
	}

	last := results[1].Messages[len(results[1].Messages)-1]
	if !strings.HasPrefix(last, "Executed 2 statement(s) in ") {
		t.Errorf("last message = %q, want batch summary", last)
	}
	for _, msg := range results[0].Messages {
		if strings.HasPrefix(msg, "Executed") {
			t.Errorf("summary on first result: %q", msg)
		}
	}
}

func TestSession_SubmitBatchEmpty(t *testing.T) {
	s := newTestSession(t, &fakeDB{exec: okExec}, Options{})
	if got := s.SubmitBatch(context.Background(), nil, 0); len(got) != 0 {
		t.Errorf("SubmitBatch(nil) = %d results, want 0", len(got))
	}
}

func TestSession_SwitchCatalog(t *testing.T) {
	var executed []string
	db := &fakeDB{exec: func(ctx context.Context, sqlText string) (*query.Response, error) {
		executed = append(executed, sqlText)
		if sqlText == "SET CATALOG MISSING" {
			return nil, &query.QueryError{Message: "catalog MISSING does not exist"}
		}
		return okExec(ctx, sqlText)
	}}
	s := newTestSession(t, db, Options{})
	ctx := context.Background()

	if res := s.SwitchCatalog(ctx, "X"); res.Failed() {
		t.Fatalf("SwitchCatalog(X) failed: %v", res.Messages)
	}
	if name, ok := s.Catalog(); !ok || name != "X" {
		t.Errorf("Catalog() = (%q, %v), want (X, true)", name, ok)
	}

	res := s.Submit(ctx, "SELECT BAD", 0)
	if !res.Failed() {
		t.Fatal("expected failure")
	}
	if res.Catalog != "X" {
		t.Errorf("failure catalog = %q, want X", res.Catalog)
	}
	if res.Messages[0] != "Catalog: X" {
		t.Errorf("first message = %q, want %q", res.Messages[0], "Catalog: X")
	}

	t.Run("FailureKeepsCatalog", func(t *testing.T) {
		if res := s.SwitchCatalog(ctx, "MISSING"); !res.Failed() {
			t.Fatal("expected SwitchCatalog(MISSING) to fail")
		}
		if name, _ := s.Catalog(); name != "X" {
			t.Errorf("Catalog() = %q, want X", name)
		}
	})

	t.Run("InvalidName", func(t *testing.T) {
		n := len(executed)
		res := s.SwitchCatalog(ctx, "  ")
		if !res.Failed() {
			t.Fatal("expected failure for blank name")
		}
		if len(executed) != n {
			t.Error("blank catalog name reached the database")
		}
	})

	t.Run("QuotedName", func(t *testing.T) {
		if res := s.SwitchCatalog(ctx, "my db"); res.Failed() {
			t.Fatalf("SwitchCatalog(my db) failed: %v", res.Messages)
		}
		if got := executed[len(executed)-1]; got != `SET CATALOG "my db"` {
			t.Errorf("executed %q", got)
		}
		if name, _ := s.Catalog(); name != "my db" {
			t.Errorf("Catalog() = %q, want %q", name, "my db")
		}
	})
}

func TestSession_CatalogFromStatement(t *testing.T) {
	s := newTestSession(t, &fakeDB{exec: okExec}, Options{})
	ctx := context.Background()

	tests := []struct {
		sql  string
		want string
	}{
		{sql: "set catalog Sales", want: "Sales"},
		{sql: "USE DATABASE finance;", want: "finance"},
		{sql: "SET CATALOG BAD", want: "finance"},
		{sql: "SELECT 1", want: "finance"},
		{sql: "USE other.main", want: "other"},
	}
	for _, tt := range tests {
		s.Submit(ctx, tt.sql, 0)
		if got, _ := s.Catalog(); got != tt.want {
			t.Errorf("after %q Catalog() = %q, want %q", tt.sql, got, tt.want)
		}
	}
}

func TestSession_TimeoutCancel(t *testing.T) {
	db := &fakeDB{exec: func(ctx context.Context, sqlText string) (*query.Response, error) {
		if sqlText == "SELECT slow" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return okExec(ctx, sqlText)
	}}
	m := metrics.New(nil)
	s := newTestSession(t, db, Options{Metrics: m, TimeoutPolicy: TimeoutCancel})
	ctx := context.Background()

	res := s.Submit(ctx, "SELECT slow", 20*time.Millisecond)
	if res.ErrorKind != query.ErrorKindTimeout {
		t.Fatalf("ErrorKind = %q, want timeout", res.ErrorKind)
	}
	if !slices.Contains(res.Messages, "Error: statement timed out after 20 ms") {
		t.Errorf("messages %v lack the timeout limit", res.Messages)
	}
	if n := len(s.Inflight()); n != 0 {
		t.Errorf("Inflight() = %d after canceled timeout, want 0", n)
	}
	if got := testutil.ToFloat64(m.TimeoutsTotal); got != 1 {
		t.Errorf("timeouts_total = %v, want 1", got)
	}

	if res := s.Submit(ctx, "SELECT 1", 0); res.Failed() {
		t.Errorf("statement after timeout failed: %v", res.Messages)
	}
}

func TestSession_TimeoutAbandon(t *testing.T) {
	release := make(chan struct{})
	db := &fakeDB{exec: func(ctx context.Context, sqlText string) (*query.Response, error) {
		if sqlText == "SELECT slow" {
			<-release
			return &query.Response{}, nil
		}
		return okExec(ctx, sqlText)
	}}
	// The reaper logs after the test observes the execution gone.
	s := newTestSession(t, db, Options{TimeoutPolicy: TimeoutAbandon, Logger: zap.NewNop()})
	ctx := context.Background()

	start := time.Now()
	res := s.Submit(ctx, "SELECT slow", 20*time.Millisecond)
	if res.ErrorKind != query.ErrorKindTimeout {
		t.Fatalf("ErrorKind = %q, want timeout", res.ErrorKind)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout returned after %v", elapsed)
	}

	inflight := s.Inflight()
	if len(inflight) != 1 || inflight[0].Status != ExecutionAbandoned {
		t.Fatalf("Inflight() = %+v, want one abandoned execution", inflight)
	}
	if res.Handle != inflight[0].Handle {
		t.Errorf("result handle = %q, want %q", res.Handle, inflight[0].Handle)
	}

	// The worker moves on while the abandoned statement is still running.
	if res := s.Submit(ctx, "SELECT 1", time.Second); res.Failed() {
		t.Errorf("statement after abandon failed: %v", res.Messages)
	}

	close(release)
	deadline := time.Now().Add(2 * time.Second)
	for len(s.Inflight()) > 0 {
		if time.Now().After(deadline) {
			t.Fatal("abandoned execution was never reaped")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSession_TimeoutCancelGraceAbandonsConnection(t *testing.T) {
	release := make(chan struct{})
	var closes atomic.Int32
	db := &fakeDB{
		exec: func(ctx context.Context, sqlText string) (*query.Response, error) {
			if sqlText == "SELECT stuck" {
				// Ignores ctx like a driver without cancellation support.
				<-release
				return &query.Response{}, nil
			}
			return okExec(ctx, sqlText)
		},
		close: func() error {
			closes.Add(1)
			return nil
		},
	}
	s := newTestSession(t, db, Options{TimeoutPolicy: TimeoutCancel, CancelGrace: 20 * time.Millisecond, Logger: zap.NewNop()})
	ctx := context.Background()

	start := time.Now()
	res := s.Submit(ctx, "SELECT stuck", 20*time.Millisecond)
	if res.ErrorKind != query.ErrorKindTimeout {
		t.Fatalf("ErrorKind = %q, want timeout", res.ErrorKind)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout returned after %v", elapsed)
	}
	inflight := s.Inflight()
	if len(inflight) != 1 || inflight[0].Status != ExecutionAbandoned {
		t.Fatalf("Inflight() = %+v, want one abandoned execution", inflight)
	}
	if res.Handle != inflight[0].Handle {
		t.Errorf("result handle = %q, want %q", res.Handle, inflight[0].Handle)
	}

	// The stuck statement keeps its connection; the next one gets a new one.
	if res := s.Submit(ctx, "SELECT 1", time.Second); res.Failed() {
		t.Fatalf("statement after grace failed: %v", res.Messages)
	}
	if got := db.opens.Load(); got != 2 {
		t.Errorf("opens = %d, want 2", got)
	}
	if got := closes.Load(); got != 0 {
		t.Errorf("closes = %d before the stuck statement returned, want 0", got)
	}

	close(release)
	deadline := time.Now().Add(2 * time.Second)
	for len(s.Inflight()) > 0 || closes.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stuck execution was never reaped")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSession_ResultCarriesHandle(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	db := &fakeDB{exec: func(ctx context.Context, sqlText string) (*query.Response, error) {
		if sqlText == "SELECT wait" {
			close(started)
			<-release
		}
		return okExec(ctx, sqlText)
	}}
	s := newTestSession(t, db, Options{})
	ctx := context.Background()

	resCh := make(chan query.Result, 1)
	go func() { resCh <- s.Submit(ctx, "SELECT wait", 0) }()
	<-started
	inflight := s.Inflight()
	if len(inflight) != 1 {
		t.Fatalf("Inflight() = %d, want 1", len(inflight))
	}
	close(release)

	res := <-resCh
	if res.Failed() {
		t.Fatalf("Submit() failed: %v", res.Messages)
	}
	if res.Handle == "" || res.Handle != inflight[0].Handle {
		t.Errorf("result handle = %q, want %q", res.Handle, inflight[0].Handle)
	}

	other := s.Submit(ctx, "SELECT 1", 0)
	if other.Handle == "" || other.Handle == res.Handle {
		t.Errorf("second handle = %q, want a fresh non-empty handle", other.Handle)
	}
}

func TestSession_Cancel(t *testing.T) {
	closed := make(chan struct{})
	var closeOnce sync.Once
	db := &fakeDB{
		exec: func(ctx context.Context, sqlText string) (*query.Response, error) {
			if sqlText == "SELECT slow" {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-closed:
					return nil, &query.TransportError{Err: connection.ErrConnClosed}
				}
			}
			return okExec(ctx, sqlText)
		},
		close: func() error {
			closeOnce.Do(func() { close(closed) })
			return nil
		},
	}
	s := newTestSession(t, db, Options{})
	ctx := context.Background()

	if res := s.SwitchCatalog(ctx, "X"); res.Failed() {
		t.Fatalf("SwitchCatalog() failed: %v", res.Messages)
	}

	resCh := make(chan query.Result, 1)
	go func() { resCh <- s.Submit(ctx, "SELECT slow", 5*time.Second) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(s.Inflight()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("statement never started")
		}
		time.Sleep(time.Millisecond)
	}

	if err := s.Cancel(); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	res := <-resCh
	if res.ErrorKind != query.ErrorKindCanceled {
		t.Errorf("ErrorKind = %q, want canceled", res.ErrorKind)
	}
	if _, ok := s.Catalog(); ok {
		t.Error("catalog still set after Cancel")
	}
	if n := len(s.Inflight()); n != 0 {
		t.Errorf("Inflight() = %d after Cancel", n)
	}

	if res := s.Submit(ctx, "SELECT 1", 0); res.Failed() {
		t.Errorf("statement after Cancel failed: %v", res.Messages)
	}
	if got := db.opens.Load(); got != 2 {
		t.Errorf("opens = %d, want 2", got)
	}
}

func TestSession_CancelCloseError(t *testing.T) {
	closeErr := errors.New("boom")
	db := &fakeDB{exec: okExec, close: func() error { return closeErr }}
	s := newTestSession(t, db, Options{})

	if err := s.Cancel(); err != nil {
		t.Errorf("Cancel() without connection error = %v", err)
	}
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Cancel(); !errors.Is(err, closeErr) {
		t.Errorf("Cancel() error = %v, want %v", err, closeErr)
	}
}

func TestSession_TransportErrorReconnects(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	db := &fakeDB{exec: func(ctx context.Context, sqlText string) (*query.Response, error) {
		if fail.CompareAndSwap(true, false) {
			return nil, &query.TransportError{Err: sql.ErrConnDone}
		}
		return okExec(ctx, sqlText)
	}}
	s := newTestSession(t, db, Options{})
	ctx := context.Background()

	if res := s.Submit(ctx, "SELECT 1", 0); res.ErrorKind != query.ErrorKindTransport {
		t.Fatalf("ErrorKind = %q, want transport", res.ErrorKind)
	}
	if res := s.Submit(ctx, "SELECT 1", 0); res.Failed() {
		t.Fatalf("second Submit() failed: %v", res.Messages)
	}
	if got := db.opens.Load(); got != 2 {
		t.Errorf("opens = %d, want 2", got)
	}
}

func TestSession_OpenRetries(t *testing.T) {
	var attempts atomic.Int32
	opener := connection.OpenerFunc(func(context.Context) (connection.Conn, error) {
		if attempts.Add(1) < 3 {
			return nil, &query.TransportError{Err: errors.New("connection refused")}
		}
		return &connection.FuncConn{ExecuteFn: okExec}, nil
	})

	t.Run("Succeeds", func(t *testing.T) {
		attempts.Store(0)
		s := newTestSession(t, opener, Options{ConnectRetries: 3, ConnectBackoff: time.Millisecond})
		if err := s.Open(context.Background()); err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if got := attempts.Load(); got != 3 {
			t.Errorf("attempts = %d, want 3", got)
		}
	})

	t.Run("GivesUp", func(t *testing.T) {
		attempts.Store(0)
		s := newTestSession(t, opener, Options{ConnectRetries: 0})
		err := s.Open(context.Background())
		if err == nil {
			t.Fatal("expected Open() to fail")
		}
		var te *query.TransportError
		if !errors.As(err, &te) {
			t.Errorf("Open() error = %v, want TransportError", err)
		}

		res := s.Submit(context.Background(), "SELECT 1", 0)
		if res.ErrorKind != query.ErrorKindTransport {
			t.Errorf("Submit() ErrorKind = %q, want transport", res.ErrorKind)
		}
	})
}

func TestSession_InitialCatalog(t *testing.T) {
	var executed []string
	db := &fakeDB{exec: func(ctx context.Context, sqlText string) (*query.Response, error) {
		executed = append(executed, sqlText)
		return okExec(ctx, sqlText)
	}}
	s := newTestSession(t, db, Options{Catalog: "SALES"})

	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"SET CATALOG SALES"}, executed); diff != "" {
		t.Errorf("executed mismatch (-want +got):\n%s", diff)
	}
	if name, ok := s.Catalog(); !ok || name != "SALES" {
		t.Errorf("Catalog() = (%q, %v), want (SALES, true)", name, ok)
	}
}

func TestSession_Closed(t *testing.T) {
	s := newTestSession(t, &fakeDB{exec: okExec}, Options{})
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	res := s.Submit(context.Background(), "SELECT 1", 0)
	if res.ErrorKind != query.ErrorKindTransport {
		t.Errorf("ErrorKind = %q, want transport", res.ErrorKind)
	}
	if err := s.Open(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Open() error = %v, want %v", err, ErrSessionClosed)
	}
}

func TestSession_CallerContextCanceled(t *testing.T) {
	s := newTestSession(t, &fakeDB{exec: okExec}, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := s.Submit(ctx, "SELECT 1", 0)
	if res.ErrorKind != query.ErrorKindCanceled {
		t.Errorf("ErrorKind = %q, want canceled", res.ErrorKind)
	}
}

func TestSession_DuckDB(t *testing.T) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		t.Fatalf("failed to open duckdb: %v", err)
	}
	defer db.Close()

	s := newTestSession(t, connection.NewSQLOpener(db, connection.DialectDuckDB), Options{PreviewLimit: 2})
	ctx := context.Background()

	results := s.SubmitBatch(ctx, []string{
		"CREATE TEMP TABLE t (id INTEGER, name VARCHAR)",
		"INSERT INTO t VALUES (1, 'a'), (2, 'b'), (3, 'c')",
		"SELECT id, name FROM t ORDER BY id",
	}, 0)
	for i, res := range results {
		if res.Failed() {
			t.Fatalf("statement %d failed: %v", i, res.Messages)
		}
	}

	insert := results[1]
	if insert.RowsAffected == nil || *insert.RowsAffected != 3 {
		t.Errorf("RowsAffected = %v, want 3", insert.RowsAffected)
	}

	sel := results[2]
	if sel.TotalRows != 3 || len(sel.Rows) != 2 || !sel.Truncated {
		t.Errorf("preview = %d of %d (truncated %v), want 2 of 3", len(sel.Rows), sel.TotalRows, sel.Truncated)
	}
	if diff := cmp.Diff([]string{"id", "name"}, sel.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}

	res := s.Submit(ctx, "SELECT * FROM missing_table", 0)
	if res.ErrorKind != query.ErrorKindQuery {
		t.Errorf("ErrorKind = %q, want query", res.ErrorKind)
	}
	if res.Code == "" {
		t.Error("expected an error code from duckdb")
	}
}
