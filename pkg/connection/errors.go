package connection

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/duckdb/duckdb-go/v2"
	"github.com/snowflakedb/gosnowflake"

	"github.com/nnnkkk7/sqlrunner/pkg/query"
)

// sqlStater is implemented by driver errors that expose a SQLSTATE code.
type sqlStater interface {
	SQLState() string
}

// TranslateError converts a driver error into the query error taxonomy.
// Connection-level failures become *query.TransportError and database
// rejections become *query.QueryError with whatever diagnostics the driver
// exposes. Context errors are returned unchanged.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var transportErr *query.TransportError
	if errors.As(err, &transportErr) {
		return err
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, ErrConnClosed) {
		return &query.TransportError{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &query.TransportError{Err: err}
	}

	var sfErr *gosnowflake.SnowflakeError
	if errors.As(err, &sfErr) {
		return fromSnowflakeError(sfErr)
	}

	var duckErr *duckdb.Error
	if errors.As(err, &duckErr) {
		return fromDuckDBMessage(duckErr.Error(), err)
	}

	var stater sqlStater
	if errors.As(err, &stater) {
		return &query.QueryError{Message: err.Error(), Code: stater.SQLState(), Err: err}
	}

	return &query.QueryError{Message: err.Error(), Err: err}
}

func fromSnowflakeError(sfErr *gosnowflake.SnowflakeError) *query.QueryError {
	qe := &query.QueryError{
		Message: sfErr.Message,
		Err:     sfErr,
	}
	if qe.Message == "" {
		qe.Message = sfErr.Error()
	}
	if sfErr.Number != 0 {
		qe.Code = fmt.Sprintf("%06d", sfErr.Number)
	}

	var details []string
	if sfErr.SQLState != "" {
		details = append(details, "SQLSTATE "+sfErr.SQLState)
	}
	if sfErr.QueryID != "" {
		details = append(details, "query ID "+sfErr.QueryID)
	}
	qe.Detail = strings.Join(details, ", ")
	return qe
}

// fromDuckDBMessage splits a DuckDB error message into its parts. DuckDB
// messages look like:
//
//	Catalog Error: Table with name t does not exist!
//	Did you mean "s"?
//
//	LINE 1: SELECT * FROM t
//	                      ^
func fromDuckDBMessage(msg string, err error) *query.QueryError {
	lines := strings.Split(strings.TrimRight(msg, "\n"), "\n")
	qe := &query.QueryError{Message: strings.TrimSpace(lines[0]), Err: err}

	if prefix, _, ok := strings.Cut(qe.Message, ": "); ok && strings.HasSuffix(prefix, " Error") {
		qe.Code = strings.ToUpper(strings.ReplaceAll(strings.TrimSuffix(prefix, " Error"), " ", "_"))
	}

	for i := 1; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		switch {
		case line == "":
		case strings.HasPrefix(line, "Did you mean"):
			qe.Hint = line
		case strings.HasPrefix(lines[i], "LINE "):
			qe.Detail = line
			if i+1 < len(lines) {
				qe.Position = caretPosition(lines[i], lines[i+1])
				i++
			}
		default:
			if qe.Detail == "" {
				qe.Detail = line
			} else {
				qe.Detail += " " + line
			}
		}
	}
	return qe
}

// caretPosition returns the 1-based column the caret line points at within the
// source shown on a "LINE 1: ..." line, or 0 if it cannot tell.
func caretPosition(sourceLine, caretLine string) int {
	if !strings.HasPrefix(sourceLine, "LINE 1: ") {
		return 0
	}
	caret := strings.IndexByte(caretLine, '^')
	offset := caret - len("LINE 1: ")
	if caret < 0 || offset < 0 {
		return 0
	}
	return offset + 1
}
