package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/nnnkkk7/sqlrunner/server/apierror"
	"github.com/nnnkkk7/sqlrunner/server/types"
)

// maxBodyBytes bounds request bodies. Editor buffers can be large but not
// unbounded.
const maxBodyBytes = 8 << 20

// decodeBody decodes a JSON request body into v. An empty body is allowed
// only when allowEmpty is set.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}, allowEmpty bool) *apierror.APIError {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return apierror.NewInvalidBodyError(err)
	}
	return nil
}

// validationError converts a request validation error to an APIError.
func validationError(err error) *apierror.APIError {
	var pe *types.ParamError
	if errors.As(err, &pe) {
		return apierror.NewInvalidParameterError(pe.Param, pe.Reason)
	}
	return apierror.FromError(err)
}

func writeJSON(w http.ResponseWriter, lg *zap.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		lg.Warn("failed to write response", zap.Error(err))
	}
}

func sendError(w http.ResponseWriter, lg *zap.Logger, apiErr *apierror.APIError) {
	writeJSON(w, lg, apiErr.Status(), apiErr.ToResponse())
}
