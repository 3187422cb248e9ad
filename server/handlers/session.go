package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nnnkkk7/sqlrunner/pkg/session"
	"github.com/nnnkkk7/sqlrunner/server/apierror"
	"github.com/nnnkkk7/sqlrunner/server/types"
)

// SessionHandler handles session lifecycle and statement execution requests.
// Statement failures are part of a successful response; only malformed
// requests and unknown sessions produce error responses.
type SessionHandler struct {
	sessions *session.Manager
	lg       *zap.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(sessions *session.Manager, lg *zap.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, lg: lg}
}

// CreateSession handles POST /api/v1/sessions.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req types.CreateSessionRequest
	if apiErr := decodeBody(w, r, &req, true); apiErr != nil {
		sendError(w, h.lg, apiErr)
		return
	}

	s, err := h.sessions.Create(r.Context(), session.CreateOptions{Catalog: req.Catalog, Connect: req.Connect})
	if err != nil {
		if errors.Is(err, session.ErrInvalidCatalog) {
			sendError(w, h.lg, apierror.NewInvalidParameterError("catalog", err.Error()))
			return
		}
		h.lg.Warn("failed to create session", zap.Error(err))
		sendError(w, h.lg, apierror.NewConnectionError(err))
		return
	}
	writeJSON(w, h.lg, http.StatusCreated, types.NewSessionResponse(s))
}

// GetSession handles GET /api/v1/sessions/{id}.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, h.lg, http.StatusOK, types.NewSessionResponse(s))
}

// CloseSession handles DELETE /api/v1/sessions/{id}.
func (h *SessionHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.sessions.Close(id); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			sendError(w, h.lg, apierror.NewSessionNotFoundError(id))
			return
		}
		// The session is gone either way; report the close failure.
		h.lg.Warn("failed to close session", zap.String("session", id), zap.Error(err))
		sendError(w, h.lg, apierror.WrapError(apierror.CodeInternalError, "Failed to close session", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Run handles POST /api/v1/sessions/{id}/run.
func (h *SessionHandler) Run(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req types.RunRequest
	if apiErr := decodeBody(w, r, &req, false); apiErr != nil {
		sendError(w, h.lg, apiErr)
		return
	}
	runReq, err := req.ToSession()
	if err != nil {
		sendError(w, h.lg, validationError(err))
		return
	}

	results, err := s.Run(r.Context(), runReq)
	if err != nil {
		sendError(w, h.lg, apierror.NewInvalidParameterError("request", err.Error()))
		return
	}
	writeJSON(w, h.lg, http.StatusOK, types.ResultsResponse{Results: results})
}

// SubmitStatement handles POST /api/v1/sessions/{id}/statements.
func (h *SessionHandler) SubmitStatement(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req types.StatementRequest
	if apiErr := decodeBody(w, r, &req, false); apiErr != nil {
		sendError(w, h.lg, apiErr)
		return
	}
	timeout, err := req.Timeout()
	if err != nil {
		sendError(w, h.lg, validationError(err))
		return
	}

	res := s.Submit(r.Context(), req.Statement, timeout)
	writeJSON(w, h.lg, http.StatusOK, types.ResultResponse{Result: res})
}

// SubmitBatch handles POST /api/v1/sessions/{id}/batch.
func (h *SessionHandler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req types.BatchRequest
	if apiErr := decodeBody(w, r, &req, false); apiErr != nil {
		sendError(w, h.lg, apiErr)
		return
	}
	timeout, err := req.Timeout()
	if err != nil {
		sendError(w, h.lg, validationError(err))
		return
	}

	results := s.SubmitBatch(r.Context(), req.Statements, timeout)
	writeJSON(w, h.lg, http.StatusOK, types.ResultsResponse{Results: results})
}

// SwitchCatalog handles POST /api/v1/sessions/{id}/catalog.
func (h *SessionHandler) SwitchCatalog(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	var req types.CatalogRequest
	if apiErr := decodeBody(w, r, &req, false); apiErr != nil {
		sendError(w, h.lg, apiErr)
		return
	}
	if err := req.Validate(); err != nil {
		sendError(w, h.lg, validationError(err))
		return
	}

	res := s.SwitchCatalog(r.Context(), req.Catalog)
	writeJSON(w, h.lg, http.StatusOK, types.ResultResponse{Result: res})
}

// Cancel handles POST /api/v1/sessions/{id}/cancel.
func (h *SessionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if err := s.Cancel(); err != nil {
		h.lg.Warn("failed to cancel session", zap.String("session", s.ID), zap.Error(err))
		sendError(w, h.lg, apierror.WrapError(apierror.CodeInternalError, "Failed to cancel session", err))
		return
	}
	writeJSON(w, h.lg, http.StatusOK, types.CancelResponse{SessionID: s.ID, Canceled: true})
}

func (h *SessionHandler) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := chi.URLParam(r, "id")
	s, err := h.sessions.Get(id)
	if err != nil {
		sendError(w, h.lg, apierror.NewSessionNotFoundError(id))
		return nil, false
	}
	return s, true
}
