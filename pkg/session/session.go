// Package session owns database sessions: one connection, one catalog and one
// serial execution queue per session, plus a manager that tracks them by ID.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nnnkkk7/sqlrunner/pkg/connection"
	"github.com/nnnkkk7/sqlrunner/pkg/metrics"
	"github.com/nnnkkk7/sqlrunner/pkg/query"
)

var (
	// ErrSessionClosed is returned when a closed session is used.
	ErrSessionClosed = errors.New("session is closed")
	// ErrSessionCanceled marks executions cut short by Session.Cancel.
	ErrSessionCanceled = fmt.Errorf("session canceled: %w", context.Canceled)
	// ErrInvalidCatalog is returned for catalog names that cannot be switched to.
	ErrInvalidCatalog = errors.New("invalid catalog name")
)

// TimeoutPolicy decides what happens to a statement that exceeds its timeout.
type TimeoutPolicy string

const (
	// TimeoutCancel cancels the execution and waits for the driver to return
	// before the next statement starts. A driver that ignores cancellation for
	// longer than Options.CancelGrace loses its connection instead.
	TimeoutCancel TimeoutPolicy = "cancel"
	// TimeoutAbandon returns the timeout failure at once and leaves the
	// statement running; its outcome is logged and discarded.
	TimeoutAbandon TimeoutPolicy = "abandon"
)

// Valid reports whether p is a known policy.
func (p TimeoutPolicy) Valid() bool {
	return p == TimeoutCancel || p == TimeoutAbandon
}

// Default option values.
const (
	DefaultQueryTimeout   = 30 * time.Second
	DefaultPreviewLimit   = 1000
	DefaultConnectRetries = 3
	DefaultConnectBackoff = 200 * time.Millisecond
	DefaultCancelGrace    = 2 * time.Second
)

// Options configures a session.
type Options struct {
	// QueryTimeout applies when a submission does not set its own timeout.
	QueryTimeout time.Duration
	// PreviewLimit caps the rows returned per statement. 0 means unlimited.
	PreviewLimit  int
	TimeoutPolicy TimeoutPolicy
	// CancelGrace bounds how long a timed out statement may take to unwind
	// under TimeoutCancel.
	CancelGrace time.Duration
	// Catalog, when set, is selected on every fresh connection.
	Catalog string
	// ConnectRetries is the number of retries after a failed connect.
	ConnectRetries int
	ConnectBackoff time.Duration

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = DefaultQueryTimeout
	}
	if o.PreviewLimit < 0 {
		o.PreviewLimit = 0
	}
	if !o.TimeoutPolicy.Valid() {
		o.TimeoutPolicy = TimeoutCancel
	}
	if o.CancelGrace <= 0 {
		o.CancelGrace = DefaultCancelGrace
	}
	if o.ConnectRetries < 0 {
		o.ConnectRetries = 0
	}
	if o.ConnectBackoff <= 0 {
		o.ConnectBackoff = DefaultConnectBackoff
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.New(nil)
	}
	return o
}

// Session is the lifetime owner of one connection, its catalog and its
// execution queue. Statements submitted to a session run one at a time in
// submission order.
type Session struct {
	ID        string
	CreatedAt time.Time

	opener  connection.Opener
	opts    Options
	lg      *zap.Logger
	metrics *metrics.Metrics

	catalog Catalog
	queue   *Queue
	tracker *Tracker

	connMu sync.Mutex
	conn   connection.Conn
	closed bool

	lastAccess atomic.Int64
}

// New creates a session. No connection is opened until Open or the first
// submission.
func New(opener connection.Opener, opts Options) *Session {
	opts = opts.withDefaults()
	id := uuid.New().String()
	lg := opts.Logger.Named("session").With(zap.String("session", id))

	s := &Session{
		ID:        id,
		CreatedAt: time.Now(),
		opener:    opener,
		opts:      opts,
		lg:        lg,
		metrics:   opts.Metrics,
		queue:     NewQueue(lg.Named("queue")),
		tracker:   NewTracker(opts.Metrics.InflightStatements),
	}
	s.touch()
	return s
}

// Open establishes the connection now instead of on the first submission.
// It is the only way to observe a connect failure as an error.
func (s *Session) Open(ctx context.Context) error {
	_, err := s.connection(ctx)
	return err
}

// Submit runs one statement after every previously submitted statement has
// settled, and returns its result. A timeout of zero uses the session default.
// Submit never fails: every error is reported as a failure result.
func (s *Session) Submit(ctx context.Context, sqlText string, timeout time.Duration) query.Result {
	s.touch()
	if timeout <= 0 {
		timeout = s.opts.QueryTimeout
	}

	resCh := make(chan query.Result, 1)
	s.metrics.QueueDepth.Inc()
	err := s.queue.Enqueue(func() {
		s.metrics.QueueDepth.Dec()
		resCh <- s.execute(ctx, sqlText, timeout)
	})
	if err != nil {
		s.metrics.QueueDepth.Dec()
		return s.record(query.Failure(sqlText, s.catalog.Name(), 0, &query.TransportError{Err: ErrSessionClosed}))
	}
	return <-resCh
}

// SubmitBatch submits statements one after another, waiting for each, and
// returns their results in input order. A failing statement does not stop the
// batch. The last result carries a summary line.
func (s *Session) SubmitBatch(ctx context.Context, statements []string, timeout time.Duration) []query.Result {
	start := time.Now()
	results := make([]query.Result, 0, len(statements))
	for _, stmt := range statements {
		results = append(results, s.Submit(ctx, stmt, timeout))
	}
	if n := len(results); n > 0 {
		results[n-1].AppendMessage(fmt.Sprintf("Executed %d statement(s) in %d ms", n, time.Since(start).Milliseconds()))
	}
	return results
}

// SwitchCatalog selects name as the current catalog. The catalog only changes
// when the database accepts the switch.
func (s *Session) SwitchCatalog(ctx context.Context, name string) query.Result {
	stmt := query.SetCatalogSQL(name)
	if err := ValidateCatalogName(name); err != nil {
		return s.record(query.Failure(stmt, s.catalog.Name(), 0, &query.QueryError{Message: err.Error(), Err: err}))
	}
	res := s.Submit(ctx, stmt, 0)
	if !res.Failed() {
		s.catalog.Set(name)
	}
	return res
}

// ValidateCatalogName checks that name can be used as a catalog.
func ValidateCatalogName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidCatalog)
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: name must not contain NUL", ErrInvalidCatalog)
	}
	return nil
}

// Catalog returns the current catalog and whether one is set.
func (s *Session) Catalog() (string, bool) {
	return s.catalog.Get()
}

// Inflight returns the statements still running on the connection.
func (s *Session) Inflight() []Execution {
	return s.tracker.List()
}

// Cancel closes the connection, forgets in-flight statements and resets the
// catalog. Statements still running fail and their outcome is discarded. The
// next submission opens a new connection.
func (s *Session) Cancel() error {
	s.connMu.Lock()
	conn := s.conn
	s.conn = nil
	s.connMu.Unlock()

	cleared := s.tracker.Clear()
	s.catalog.Reset()
	s.lg.Info("session canceled", zap.Int("inflight", cleared))

	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}

// Close cancels the session and stops its queue. Statements still queued
// complete with a failure.
func (s *Session) Close() error {
	s.connMu.Lock()
	if s.closed {
		s.connMu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.connMu.Unlock()

	s.tracker.Clear()
	s.catalog.Reset()

	var err error
	if conn != nil {
		if cerr := conn.Close(); cerr != nil {
			err = fmt.Errorf("failed to close connection: %w", cerr)
		}
	}
	s.queue.Close()
	s.lg.Debug("session closed")
	return err
}

// LastAccessed returns the time of the most recent submission.
func (s *Session) LastAccessed() time.Time {
	return time.Unix(0, s.lastAccess.Load())
}

// QueueDepth returns the number of statements waiting to run.
func (s *Session) QueueDepth() int {
	return s.queue.Len()
}

func (s *Session) touch() {
	s.lastAccess.Store(time.Now().UnixNano())
}

// connection returns the live connection, opening one if needed.
func (s *Session) connection(ctx context.Context) (connection.Conn, error) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.conn != nil {
		return s.conn, nil
	}

	var conn connection.Conn
	op := func() error {
		c, err := s.opener.Open(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		conn = c
		return nil
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.opts.ConnectBackoff
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.opts.ConnectRetries)), ctx)
	notify := func(err error, d time.Duration) {
		s.lg.Warn("failed to open connection, retrying", zap.Error(err), zap.Duration("backoff", d))
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	s.catalog.Reset()
	if name := s.opts.Catalog; name != "" {
		if _, err := conn.Execute(ctx, query.SetCatalogSQL(name)); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to select catalog %q: %w", name, err)
		}
		s.catalog.Set(name)
	}
	s.conn = conn
	s.lg.Debug("connection opened")
	return conn, nil
}

// dropConnection forgets conn after a transport failure so that the next
// submission reconnects.
func (s *Session) dropConnection(conn connection.Conn) {
	if !s.detachConnection(conn) {
		return
	}
	if err := conn.Close(); err != nil {
		s.lg.Warn("failed to close broken connection", zap.Error(err))
	}
}

// detachConnection forgets conn without closing it. It reports false when conn
// is no longer the session's connection.
func (s *Session) detachConnection(conn connection.Conn) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn != conn {
		return false
	}
	s.conn = nil
	s.catalog.Reset()
	return true
}

type outcome struct {
	resp *query.Response
	err  error
}

// execute runs on the queue worker.
func (s *Session) execute(ctx context.Context, sqlText string, timeout time.Duration) query.Result {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return s.record(query.Failure(sqlText, s.catalog.Name(), 0, err))
	}

	conn, err := s.connection(ctx)
	if err != nil {
		if ctx.Err() == nil {
			err = &query.TransportError{Err: err}
		}
		return s.record(query.Failure(sqlText, s.catalog.Name(), time.Since(start), err))
	}
	catalog := s.catalog.Name()

	parent := ctx
	if s.opts.TimeoutPolicy == TimeoutAbandon {
		parent = context.WithoutCancel(ctx)
	}
	execCtx, cancel := context.WithCancel(parent)
	exec := s.tracker.Start(sqlText, catalog, cancel)

	outCh := make(chan outcome, 1)
	go func() {
		resp, err := conn.Execute(execCtx, sqlText)
		outCh <- outcome{resp: resp, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-outCh:
		cancel()
		if !s.tracker.Finish(exec.Handle) && out.err != nil {
			out.err = ErrSessionCanceled
		}
		return s.settle(conn, exec.Handle, sqlText, catalog, start, out)
	case <-timer.C:
	}

	timeoutErr := &query.TimeoutError{Limit: timeout}
	lg := s.lg.With(zap.String("handle", exec.Handle), zap.Duration("timeout", timeout))
	if s.opts.TimeoutPolicy == TimeoutAbandon {
		s.tracker.Abandon(exec.Handle)
		lg.Warn("statement timed out, abandoning")
		go s.reap(exec, outCh, cancel, nil)
	} else {
		lg.Warn("statement timed out, canceling")
		cancel()
		grace := time.NewTimer(s.opts.CancelGrace)
		defer grace.Stop()
		select {
		case <-outCh:
			s.tracker.Finish(exec.Handle)
		case <-grace.C:
			// The statement still owns conn, so the next one gets a fresh connection.
			lg.Warn("driver ignored cancellation, abandoning connection", zap.Duration("grace", s.opts.CancelGrace))
			s.tracker.Abandon(exec.Handle)
			s.detachConnection(conn)
			go s.reap(exec, outCh, cancel, conn)
		}
	}
	res := query.Failure(sqlText, catalog, time.Since(start), timeoutErr)
	res.Handle = exec.Handle
	return s.record(res)
}

// reap waits for an abandoned execution and discards its outcome. A non-nil
// conn was detached from the session and is closed once the statement returns.
func (s *Session) reap(exec *Execution, outCh <-chan outcome, cancel context.CancelFunc, conn connection.Conn) {
	out := <-outCh
	cancel()
	lg := s.lg.With(zap.String("handle", exec.Handle), zap.Duration("elapsed", time.Since(exec.StartedOn)))
	if conn != nil {
		if err := conn.Close(); err != nil {
			lg.Warn("failed to close abandoned connection", zap.Error(err))
		}
	}
	if !s.tracker.Finish(exec.Handle) {
		lg.Debug("discarded outcome of canceled statement", zap.Error(out.err))
		return
	}
	lg.Info("abandoned statement finished", zap.Error(out.err))
}

func (s *Session) settle(conn connection.Conn, handle, sqlText, catalog string, start time.Time, out outcome) query.Result {
	res := query.Normalize(query.NormalizeInput{
		Response:     out.resp,
		Err:          out.err,
		Statement:    sqlText,
		Elapsed:      time.Since(start),
		Catalog:      catalog,
		PreviewLimit: s.opts.PreviewLimit,
	})
	res.Handle = handle
	switch {
	case res.ErrorKind == query.ErrorKindTransport:
		s.lg.Warn("connection failed, will reconnect", zap.Error(out.err))
		s.dropConnection(conn)
	case !res.Failed():
		if name, ok := query.ParseCatalogSwitch(sqlText); ok {
			s.catalog.Set(name)
		}
	}
	return s.record(res)
}

func (s *Session) record(res query.Result) query.Result {
	s.metrics.ObserveResult(res)
	if res.Failed() {
		s.lg.Debug("statement failed", zap.String("statement", res.Statement), zap.String("kind", string(res.ErrorKind)))
	}
	return res
}
