package query

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrEmptyInput is returned when a buffer holds nothing executable.
var ErrEmptyInput = errors.New("no executable statement in input")

// TimeoutError reports that a statement exceeded its time limit. The statement
// may still be running on the server.
type TimeoutError struct {
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("statement timed out after %d ms", e.Limit.Milliseconds())
}

// TransportError reports a connection-level failure such as a refused or reset
// connection, or use of a connection that has been closed.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("connection error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// QueryError reports that the database rejected or failed a statement.
// Code, Detail, Hint and Position are optional; Position is 1-based and 0 when
// unknown.
type QueryError struct {
	Message  string
	Code     string
	Detail   string
	Hint     string
	Position int
	Err      error
}

func (e *QueryError) Error() string {
	return e.Message
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// KindOf maps an execution error onto the error taxonomy. Unknown errors are
// treated as query errors.
func KindOf(err error) ErrorKind {
	var (
		timeoutErr   *TimeoutError
		transportErr *TransportError
	)
	switch {
	case errors.As(err, &timeoutErr):
		return ErrorKindTimeout
	case errors.Is(err, ErrEmptyInput):
		return ErrorKindEmptyInput
	case errors.As(err, &transportErr):
		return ErrorKindTransport
	case errors.Is(err, context.Canceled):
		return ErrorKindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorKindTimeout
	default:
		return ErrorKindQuery
	}
}
