package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/nnnkkk7/sqlrunner/pkg/scanner"
	"github.com/nnnkkk7/sqlrunner/server/types"
)

// ScanHandler serves the stateless statement-splitting endpoints.
type ScanHandler struct {
	lg *zap.Logger
}

// NewScanHandler creates a new scan handler.
func NewScanHandler(lg *zap.Logger) *ScanHandler {
	return &ScanHandler{lg: lg}
}

// Scan handles POST /api/v1/scan.
func (h *ScanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var req types.ScanRequest
	if apiErr := decodeBody(w, r, &req, false); apiErr != nil {
		sendError(w, h.lg, apiErr)
		return
	}

	stmts := scanner.Scan(req.Text)
	if stmts == nil {
		stmts = []scanner.Statement{}
	}
	writeJSON(w, h.lg, http.StatusOK, types.ScanResponse{Statements: stmts})
}

// Resolve handles POST /api/v1/resolve.
func (h *ScanHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req types.ResolveRequest
	if apiErr := decodeBody(w, r, &req, false); apiErr != nil {
		sendError(w, h.lg, apiErr)
		return
	}
	if err := req.Validate(); err != nil {
		sendError(w, h.lg, validationError(err))
		return
	}

	stmt := scanner.Resolve(scanner.SplitOrWhole(req.Text), req.Text, req.Cursor)
	writeJSON(w, h.lg, http.StatusOK, types.ResolveResponse{Statement: stmt})
}
