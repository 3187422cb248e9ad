package query

import (
	"errors"
	"fmt"
	"time"

	"github.com/nnnkkk7/sqlrunner/pkg/scanner"
)

// NormalizeInput carries everything the normalizer needs about one execution.
type NormalizeInput struct {
	Response     *Response
	Err          error
	Statement    string
	Elapsed      time.Duration
	Catalog      string
	PreviewLimit int // 0 means unlimited
}

// Normalize turns a response or an execution error into a Result. It never
// fails; errors become failure results.
func Normalize(in NormalizeInput) Result {
	res := Result{
		Statement: scanner.Normalize(in.Statement),
		Catalog:   in.Catalog,
		Elapsed:   in.Elapsed,
		ElapsedMs: in.Elapsed.Milliseconds(),
	}
	if res.Catalog != "" {
		res.AppendMessage("Catalog: " + res.Catalog)
	}
	res.AppendMessage("Statement: " + res.Statement)
	res.AppendMessage(fmt.Sprintf("Elapsed: %d ms", res.ElapsedMs))

	if in.Err != nil {
		normalizeFailure(&res, in.Err)
		return res
	}
	normalizeSuccess(&res, in.Response, in.Statement, in.PreviewLimit)
	return res
}

// Failure builds a failure result for err without any response.
func Failure(statement, catalog string, elapsed time.Duration, err error) Result {
	return Normalize(NormalizeInput{
		Err:       err,
		Statement: statement,
		Elapsed:   elapsed,
		Catalog:   catalog,
	})
}

func normalizeSuccess(res *Result, resp *Response, statement string, previewLimit int) {
	res.Status = StatusSuccess
	if resp == nil {
		resp = &Response{}
	}

	res.Columns = resp.Columns
	if len(res.Columns) == 0 && len(resp.ColumnTypes) > 0 {
		res.Columns = make([]string, len(resp.ColumnTypes))
		for i, ct := range resp.ColumnTypes {
			res.Columns[i] = ct.Name
		}
	}
	res.ColumnTypes = resp.ColumnTypes

	rows := resp.Rows
	res.TotalRows = len(rows)
	if previewLimit > 0 && len(rows) > previewLimit {
		rows = rows[:previewLimit]
		res.Truncated = true
	}
	res.Rows = rows

	if !IsQuery(statement) && resp.HasRowsAffected {
		affected := resp.RowsAffected
		res.RowsAffected = &affected
		res.AppendMessage(fmt.Sprintf("Rows affected: %d", affected))
	} else if len(res.Columns) > 0 {
		res.AppendMessage(fmt.Sprintf("Rows: %d", res.TotalRows))
	}
	if res.Truncated {
		res.AppendMessage(fmt.Sprintf("Showing first %d of %d rows", len(res.Rows), res.TotalRows))
	}
}

func normalizeFailure(res *Result, err error) {
	res.Status = StatusFailure
	res.ErrorKind = KindOf(err)

	var qe *QueryError
	if !errors.As(err, &qe) {
		res.AppendMessage("Error: " + err.Error())
		return
	}

	res.AppendMessage("Error: " + qe.Message)
	res.Code, res.Detail, res.Hint, res.Position = qe.Code, qe.Detail, qe.Hint, qe.Position
	if qe.Code != "" {
		res.AppendMessage("Code: " + qe.Code)
	}
	if qe.Detail != "" {
		res.AppendMessage("Detail: " + qe.Detail)
	}
	if qe.Hint != "" {
		res.AppendMessage("Hint: " + qe.Hint)
	}
	if qe.Position > 0 {
		res.AppendMessage(fmt.Sprintf("Position: %d", qe.Position))
	}
}
