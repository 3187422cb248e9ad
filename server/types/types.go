// Package types provides API request/response types for the sqlrunner HTTP API.
package types

import (
	"errors"
	"time"
	"unicode/utf8"

	"github.com/nnnkkk7/sqlrunner/pkg/query"
	"github.com/nnnkkk7/sqlrunner/pkg/scanner"
	"github.com/nnnkkk7/sqlrunner/pkg/session"
)

// ParamError reports an invalid request field.
type ParamError struct {
	Param  string
	Reason string
}

func (e *ParamError) Error() string {
	return e.Param + ": " + e.Reason
}

func invalid(param, reason string) error {
	return &ParamError{Param: param, Reason: reason}
}

func timeoutFromMs(ms int64) (time.Duration, error) {
	if ms < 0 {
		return 0, invalid("timeoutMs", "must not be negative")
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// Scanner API Types

// ScanRequest is the body of POST /api/v1/scan.
type ScanRequest struct {
	Text string `json:"text"`
}

// ScanResponse lists the statements found in a buffer.
type ScanResponse struct {
	Statements []scanner.Statement `json:"statements"`
}

// ResolveRequest is the body of POST /api/v1/resolve.
type ResolveRequest struct {
	Text   string `json:"text"`
	Cursor int    `json:"cursor"`
}

// Validate checks the request fields.
func (r *ResolveRequest) Validate() error {
	if r.Cursor < 0 || r.Cursor > utf8.RuneCountInString(r.Text) {
		return invalid("cursor", "outside the text")
	}
	return nil
}

// ResolveResponse holds the statement under the cursor.
type ResolveResponse struct {
	Statement scanner.Statement `json:"statement"`
}

// Session API Types

// CreateSessionRequest is the optional body of POST /api/v1/sessions.
type CreateSessionRequest struct {
	Catalog string `json:"catalog,omitempty"`
	Connect bool   `json:"connect,omitempty"`
}

// SessionResponse describes a session.
type SessionResponse struct {
	SessionID      string              `json:"sessionId"`
	Catalog        string              `json:"catalog,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
	LastAccessedAt time.Time           `json:"lastAccessedAt"`
	QueueDepth     int                 `json:"queueDepth"`
	Inflight       []session.Execution `json:"inflight"`
}

// NewSessionResponse builds a SessionResponse from s.
func NewSessionResponse(s *session.Session) SessionResponse {
	catalog, _ := s.Catalog()
	inflight := s.Inflight()
	if inflight == nil {
		inflight = []session.Execution{}
	}
	return SessionResponse{
		SessionID:      s.ID,
		Catalog:        catalog,
		CreatedAt:      s.CreatedAt,
		LastAccessedAt: s.LastAccessed(),
		QueueDepth:     s.QueueDepth(),
		Inflight:       inflight,
	}
}

// RunRequest is the body of POST /api/v1/sessions/{id}/run.
type RunRequest struct {
	Text      string `json:"text"`
	Mode      string `json:"mode,omitempty"` // "all" (default) or "cursor"
	Cursor    int    `json:"cursor,omitempty"`
	TimeoutMs int64  `json:"timeoutMs,omitempty"`
}

// ToSession validates the request and converts it for Session.Run.
func (r *RunRequest) ToSession() (session.RunRequest, error) {
	timeout, err := timeoutFromMs(r.TimeoutMs)
	if err != nil {
		return session.RunRequest{}, err
	}
	req := session.RunRequest{
		Text:         r.Text,
		Mode:         session.RunMode(r.Mode),
		CursorOffset: r.Cursor,
		Timeout:      timeout,
	}
	if err := req.Validate(); err != nil {
		if errors.Is(err, session.ErrInvalidRequest) {
			return session.RunRequest{}, invalid("request", err.Error())
		}
		return session.RunRequest{}, err
	}
	return req, nil
}

// StatementRequest is the body of POST /api/v1/sessions/{id}/statements.
type StatementRequest struct {
	Statement string `json:"statement"`
	TimeoutMs int64  `json:"timeoutMs,omitempty"`
}

// Timeout validates the request and returns its timeout.
func (r *StatementRequest) Timeout() (time.Duration, error) {
	if r.Statement == "" {
		return 0, invalid("statement", "is required")
	}
	return timeoutFromMs(r.TimeoutMs)
}

// BatchRequest is the body of POST /api/v1/sessions/{id}/batch.
type BatchRequest struct {
	Statements []string `json:"statements"`
	TimeoutMs  int64    `json:"timeoutMs,omitempty"`
}

// Timeout validates the request and returns its timeout.
func (r *BatchRequest) Timeout() (time.Duration, error) {
	if len(r.Statements) == 0 {
		return 0, invalid("statements", "must not be empty")
	}
	return timeoutFromMs(r.TimeoutMs)
}

// CatalogRequest is the body of POST /api/v1/sessions/{id}/catalog.
type CatalogRequest struct {
	Catalog string `json:"catalog"`
}

// Validate checks the request fields.
func (r *CatalogRequest) Validate() error {
	if err := session.ValidateCatalogName(r.Catalog); err != nil {
		return invalid("catalog", err.Error())
	}
	return nil
}

// ResultResponse wraps one statement result.
type ResultResponse struct {
	Result query.Result `json:"result"`
}

// ResultsResponse wraps the results of several statements, in execution order.
type ResultsResponse struct {
	Results []query.Result `json:"results"`
}

// CancelResponse reports a canceled session.
type CancelResponse struct {
	SessionID string `json:"sessionId"`
	Canceled  bool   `json:"canceled"`
}
