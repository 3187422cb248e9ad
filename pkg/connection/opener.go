package connection

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nnnkkk7/sqlrunner/pkg/query"
)

// SQLOpener opens connections from a database/sql pool.
//
// Every Open pins one dedicated *sql.Conn, so the catalog and other session
// state set by one statement are seen by the next statement of the same
// session.
type SQLOpener struct {
	db         *sql.DB
	translator *Translator
	mapper     *TypeMapper
}

// NewSQLOpener creates an opener over db, translating statements for dialect.
func NewSQLOpener(db *sql.DB, dialect Dialect) *SQLOpener {
	return &SQLOpener{
		db:         db,
		translator: NewTranslator(dialect),
		mapper:     NewTypeMapper(),
	}
}

// DB returns the underlying database pool.
func (o *SQLOpener) DB() *sql.DB {
	return o.db
}

// Open checks out a dedicated connection and verifies it is alive.
func (o *SQLOpener) Open(ctx context.Context) (Conn, error) {
	c, err := o.db.Conn(ctx)
	if err != nil {
		return nil, &query.TransportError{Err: fmt.Errorf("failed to open connection: %w", err)}
	}
	if err := c.PingContext(ctx); err != nil {
		_ = c.Close()
		return nil, &query.TransportError{Err: fmt.Errorf("failed to ping connection: %w", err)}
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	return &sqlConn{
		conn:       c,
		translator: o.translator,
		mapper:     o.mapper,
		baseCtx:    baseCtx,
		cancel:     cancel,
	}, nil
}

type sqlConn struct {
	conn       *sql.Conn
	translator *Translator
	mapper     *TypeMapper

	// baseCtx is cancelled by Close so running statements are interrupted.
	baseCtx   context.Context
	cancel    context.CancelFunc
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func (c *sqlConn) Execute(ctx context.Context, sqlText string) (*query.Response, error) {
	if c.closed.Load() {
		return nil, &query.TransportError{Err: ErrConnClosed}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.baseCtx, cancel)
	defer stop()

	translated := c.translator.Translate(sqlText)

	var (
		resp *query.Response
		err  error
	)
	if query.IsQuery(sqlText) {
		resp, err = c.query(ctx, translated)
	} else {
		resp, err = c.exec(ctx, translated)
	}
	if err != nil {
		if c.closed.Load() {
			return nil, &query.TransportError{Err: fmt.Errorf("%w: %v", ErrConnClosed, err)}
		}
		return nil, TranslateError(err)
	}
	return resp, nil
}

func (c *sqlConn) query(ctx context.Context, sqlText string) (*query.Response, error) {
	rows, err := c.conn.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	columnTypes := c.mapper.InferColumnTypes(columns, rows)

	var resultRows [][]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make([]interface{}, len(columns))
		for i, val := range values {
			row[i] = convertValue(val)
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &query.Response{
		Columns:     columns,
		ColumnTypes: columnTypes,
		Rows:        resultRows,
	}, nil
}

func (c *sqlConn) exec(ctx context.Context, sqlText string) (*query.Response, error) {
	result, err := c.conn.ExecContext(ctx, sqlText)
	if err != nil {
		return nil, err
	}

	resp := &query.Response{}
	if n, err := result.RowsAffected(); err == nil {
		resp.RowsAffected = n
		resp.HasRowsAffected = true
	}
	return resp, nil
}

// Close interrupts any running statement and discards the physical
// connection, so that its session state never returns to the pool.
func (c *sqlConn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()
		// Raw waits for the interrupted statement to unwind. Returning
		// ErrBadConn makes database/sql close the driver connection.
		err := c.conn.Raw(func(interface{}) error { return driver.ErrBadConn })
		if err != nil && !errors.Is(err, driver.ErrBadConn) && !errors.Is(err, sql.ErrConnDone) {
			c.closeErr = err
			return
		}
		if err := c.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			c.closeErr = err
		}
	})
	return c.closeErr
}

// convertValue converts database values to JSON-friendly Go types.
func convertValue(val interface{}) interface{} {
	switch v := val.(type) {
	case nil:
		return nil
	case []byte:
		return string(v)
	default:
		return v
	}
}
