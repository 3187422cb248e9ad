// Package query normalizes statement outcomes into one result shape and
// classifies SQL statements.
package query

import (
	"time"
)

// Status tags a Result as a success or a failure.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// ErrorKind classifies why a statement failed.
type ErrorKind string

const (
	ErrorKindTimeout    ErrorKind = "timeout"
	ErrorKindTransport  ErrorKind = "transport"
	ErrorKindQuery      ErrorKind = "query"
	ErrorKindEmptyInput ErrorKind = "empty_input"
	ErrorKindCanceled   ErrorKind = "canceled"
)

// ColumnType describes one result column.
type ColumnType struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Length    int64  `json:"length,omitempty"`
	Precision int64  `json:"precision,omitempty"`
	Scale     int64  `json:"scale,omitempty"`
	Nullable  bool   `json:"nullable"`
}

// Response is the canonical shape a connection hands back after executing a
// statement. Drivers translate their native results into it.
type Response struct {
	Columns         []string
	ColumnTypes     []ColumnType
	Rows            [][]interface{}
	RowsAffected    int64
	HasRowsAffected bool
}

// Result is the outcome of one statement, successful or not.
//
// Success results carry columns and rows; failure results carry the error kind
// and whatever structured diagnostics the database supplied. Both carry the
// same leading message lines so they can be rendered uniformly.
type Result struct {
	// Handle matches Execution.Handle while the statement runs. It is empty
	// when the statement never reached a connection.
	Handle    string        `json:"handle,omitempty"`
	Status    Status        `json:"status"`
	Statement string        `json:"statement"`
	Catalog   string        `json:"catalog,omitempty"`
	Elapsed   time.Duration `json:"-"`
	ElapsedMs int64         `json:"elapsedMs"`
	Messages  []string      `json:"messages"`

	Columns      []string        `json:"columns,omitempty"`
	ColumnTypes  []ColumnType    `json:"columnTypes,omitempty"`
	Rows         [][]interface{} `json:"rows,omitempty"`
	TotalRows    int             `json:"totalRows,omitempty"`
	Truncated    bool            `json:"truncated,omitempty"`
	RowsAffected *int64          `json:"rowsAffected,omitempty"`

	ErrorKind ErrorKind `json:"errorKind,omitempty"`
	Code      string    `json:"code,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Hint      string    `json:"hint,omitempty"`
	Position  int       `json:"position,omitempty"`
}

// Failed reports whether the result is a failure.
func (r *Result) Failed() bool {
	return r.Status == StatusFailure
}

// AppendMessage adds a message line to the result.
func (r *Result) AppendMessage(msg string) {
	r.Messages = append(r.Messages, msg)
}
