// Package apierror defines the error bodies returned by the HTTP API.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// System Errors (000xxx)
	CodeInternalError    = "000001"
	CodeInvalidParameter = "000002"
	CodeInvalidBody      = "000003"

	// Session Errors (390xxx)
	CodeSessionNotFound  = "390144"
	CodeConnectionFailed = "390201"
)

// SQLState represents SQL standard error states.
const (
	SQLStateInvalidParameter   = "22023"
	SQLStateConnectionNotExist = "08003"
	SQLStateConnectionFailed   = "08001"
	SQLStateGeneralError       = "HY000"
)

// GetSQLState returns the SQL state for a given error code
func GetSQLState(code string) string {
	mapping := map[string]string{
		CodeInvalidParameter: SQLStateInvalidParameter,
		CodeInvalidBody:      SQLStateInvalidParameter,
		CodeSessionNotFound:  SQLStateConnectionNotExist,
		CodeConnectionFailed: SQLStateConnectionFailed,
	}

	if state, ok := mapping[code]; ok {
		return state
	}
	return SQLStateGeneralError
}

// HTTPStatus returns the HTTP status used for a given error code.
func HTTPStatus(code string) int {
	switch code {
	case CodeInvalidParameter, CodeInvalidBody:
		return http.StatusBadRequest
	case CodeSessionNotFound:
		return http.StatusNotFound
	case CodeConnectionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// APIError is an error reported to API clients.
type APIError struct {
	Code     string                 `json:"code"`
	Message  string                 `json:"message"`
	SQLState string                 `json:"sqlState,omitempty"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// WithData adds data to the error.
func (e *APIError) WithData(key string, value interface{}) *APIError {
	if e.Data == nil {
		e.Data = make(map[string]interface{})
	}
	e.Data[key] = value
	return e
}

// Is checks if this error matches another error by code.
func (e *APIError) Is(target error) bool {
	var apiErr *APIError
	if errors.As(target, &apiErr) {
		return e.Code == apiErr.Code
	}
	return false
}

// Status returns the HTTP status for the error.
func (e *APIError) Status() int {
	return HTTPStatus(e.Code)
}

// ErrorResponse represents the JSON response structure for errors.
// This is the unified response type used by all handlers.
type ErrorResponse struct {
	Success  bool                   `json:"success"`
	Message  string                 `json:"message"`
	Code     string                 `json:"code"`
	SQLState string                 `json:"sqlState,omitempty"`
	Data     map[string]interface{} `json:"data,omitempty"`
}

// ToResponse converts the APIError to an ErrorResponse.
func (e *APIError) ToResponse() *ErrorResponse {
	var data map[string]interface{}
	if len(e.Data) > 0 {
		data = make(map[string]interface{}, len(e.Data))
		for k, v := range e.Data {
			data[k] = v
		}
	}

	return &ErrorResponse{
		Success:  false,
		Message:  e.Message,
		Code:     e.Code,
		SQLState: e.SQLState,
		Data:     data,
	}
}

// New creates a new APIError with the given code and message.
func New(code, message string) *APIError {
	return &APIError{
		Code:     code,
		Message:  message,
		SQLState: GetSQLState(code),
	}
}

// NewSessionNotFoundError creates a session not found error.
func NewSessionNotFoundError(sessionID string) *APIError {
	return New(CodeSessionNotFound, "Session not found").WithData("sessionId", sessionID)
}

// NewInvalidParameterError creates an invalid parameter error.
func NewInvalidParameterError(paramName, reason string) *APIError {
	message := fmt.Sprintf("Invalid parameter '%s': %s", paramName, reason)
	return New(CodeInvalidParameter, message).WithData("paramName", paramName)
}

// NewInvalidBodyError creates an error for a request body that cannot be decoded.
func NewInvalidBodyError(err error) *APIError {
	return New(CodeInvalidBody, "Invalid request body").WithData("originalError", err.Error())
}

// NewConnectionError creates an error for a failed database connect.
func NewConnectionError(err error) *APIError {
	return WrapError(CodeConnectionFailed, "Failed to connect to database", err)
}

// NewInternalError creates an internal error.
func NewInternalError(message string) *APIError {
	return New(CodeInternalError, message)
}

// WrapError wraps a standard Go error into an APIError.
func WrapError(code, message string, err error) *APIError {
	return New(code, message).WithData("originalError", err.Error())
}

// FromError converts a standard error to an APIError.
// If the error is already an APIError, it returns it as-is.
// If the error is nil, it returns nil.
// Otherwise, it wraps it as an internal error.
func FromError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	return New(CodeInternalError, err.Error())
}
