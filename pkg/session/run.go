package session

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/nnnkkk7/sqlrunner/pkg/query"
	"github.com/nnnkkk7/sqlrunner/pkg/scanner"
)

// RunMode selects which statements of a buffer Run executes.
type RunMode string

const (
	// RunAll executes every statement of the buffer in order.
	RunAll RunMode = "all"
	// RunCursor executes only the statement under the cursor.
	RunCursor RunMode = "cursor"
)

// ErrInvalidRequest wraps every RunRequest validation failure.
var ErrInvalidRequest = errors.New("invalid run request")

// RunRequest asks a session to execute part or all of an editor buffer.
type RunRequest struct {
	Text string
	Mode RunMode
	// CursorOffset is a character offset into Text. Only used by RunCursor.
	CursorOffset int
	// Timeout applies to each statement. Zero uses the session default.
	Timeout time.Duration
}

// Validate checks the request fields. An empty Mode means RunAll.
func (r RunRequest) Validate() error {
	switch r.Mode {
	case "", RunAll:
	case RunCursor:
		if n := utf8.RuneCountInString(r.Text); r.CursorOffset < 0 || r.CursorOffset > n {
			return fmt.Errorf("%w: cursor offset %d outside [0, %d]", ErrInvalidRequest, r.CursorOffset, n)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, r.Mode)
	}
	if r.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidRequest)
	}
	return nil
}

// Run splits req.Text into statements and executes either all of them or the
// one under the cursor. The only error it returns is a validation error;
// execution problems, including a buffer with nothing to run, come back as
// failure results.
func (s *Session) Run(ctx context.Context, req RunRequest) ([]query.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	stmts := scanner.SplitOrWhole(req.Text)
	if len(stmts) == 0 {
		return []query.Result{s.record(query.Failure("", s.catalog.Name(), 0, query.ErrEmptyInput))}, nil
	}

	if req.Mode == RunCursor {
		stmt := scanner.Resolve(stmts, req.Text, req.CursorOffset)
		return s.SubmitBatch(ctx, []string{stmt.Text}, req.Timeout), nil
	}
	return s.SubmitBatch(ctx, scanner.Texts(stmts), req.Timeout), nil
}
