package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/carelink-solutions/carelink-auth/pkg/errors"
	"github.com/carelink-solutions/carelink-auth/pkg/logger"
	"github.com/carelink-solutions/carelink-auth/pkg/validator"
)

// ErrorResponse is the body written for every failed request.
type ErrorResponse struct {
	Status    int               `json:"status"`
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// MessageResponse is the body of endpoints that only acknowledge an action.
type MessageResponse struct {
	Message string `json:"message"`
}

// WriteJSON writes v as JSON with the given status code. Encoding errors are
// dropped because the header has already been sent.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteMessage writes {"message": msg}.
func WriteMessage(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, MessageResponse{Message: msg})
}

// WriteError maps err onto an ErrorResponse. Server-side failures are logged
// with the request-scoped logger and never expose their cause to the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		l = fallback
	}

	resp := ErrorResponse{RequestID: logger.CorrelationIDFromContext(r.Context())}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		resp.Status, resp.Code, resp.Message = appErr.Status, appErr.Code, appErr.Message
	} else {
		resp.Status = apperrors.HTTPStatus(err)
		resp.Code, resp.Message = codeForStatus(resp.Status, err)
	}

	var fe fieldErrors
	if errors.As(err, &fe) {
		resp.Fields = fe.Fields()
	}

	if resp.Status >= http.StatusInternalServerError {
		l.ErrorContext(r.Context(), "request failed",
			slog.Int("status", resp.Status),
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	WriteJSON(w, resp.Status, resp)
}

// fieldErrors is implemented by errors that can name the offending fields.
type fieldErrors interface {
	Fields() map[string]string
}

func codeForStatus(status int, err error) (string, string) {
	switch status {
	case http.StatusNotFound:
		return "NOT_FOUND", "resource not found"
	case http.StatusConflict:
		return "ALREADY_EXISTS", "resource already exists"
	case http.StatusBadRequest:
		return "INVALID_INPUT", err.Error()
	case http.StatusUnauthorized:
		return "UNAUTHORIZED", "authentication required"
	case http.StatusForbidden:
		return "FORBIDDEN", "access denied"
	case http.StatusGatewayTimeout:
		return "UPSTREAM_TIMEOUT", "a dependency did not respond in time"
	default:
		return "INTERNAL_ERROR", "an internal error occurred"
	}
}

// WriteValidationError writes a 400 with per-field messages when err comes
// from the validator, and a plain INVALID_INPUT otherwise.
func WriteValidationError(w http.ResponseWriter, r *http.Request, err error) {
	resp := ErrorResponse{
		Status:    http.StatusBadRequest,
		RequestID: logger.CorrelationIDFromContext(r.Context()),
	}

	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		resp.Code = "VALIDATION_ERROR"
		resp.Message = "request validation failed"
		resp.Fields = valErr.Fields()
	} else {
		resp.Code = "INVALID_INPUT"
		resp.Message = err.Error()
	}

	WriteJSON(w, http.StatusBadRequest, resp)
}
