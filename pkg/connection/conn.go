// Package connection provides the database connection collaborator used by
// sessions: an opener that produces single-session handles, and the adapters
// that translate driver results and errors into the canonical query shapes.
package connection

import (
	"context"
	"errors"

	"github.com/nnnkkk7/sqlrunner/pkg/query"
)

// ErrConnClosed is returned when a closed connection is used.
var ErrConnClosed = errors.New("connection is closed")

// Conn is one live database session. Execute may be called from a single
// goroutine at a time; Close may be called concurrently with Execute and makes
// any running or later Execute fail.
type Conn interface {
	Execute(ctx context.Context, sql string) (*query.Response, error)
	Close() error
}

// Opener opens new connections.
type Opener interface {
	Open(ctx context.Context) (Conn, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context) (Conn, error)

// Open calls f(ctx).
func (f OpenerFunc) Open(ctx context.Context) (Conn, error) {
	return f(ctx)
}

// FuncConn adapts an execute function to the Conn interface. CloseFn is
// optional.
type FuncConn struct {
	ExecuteFn func(ctx context.Context, sql string) (*query.Response, error)
	CloseFn   func() error
}

// Execute calls ExecuteFn.
func (c *FuncConn) Execute(ctx context.Context, sql string) (*query.Response, error) {
	return c.ExecuteFn(ctx, sql)
}

// Close calls CloseFn when it is set.
func (c *FuncConn) Close() error {
	if c.CloseFn == nil {
		return nil
	}
	return c.CloseFn()
}
