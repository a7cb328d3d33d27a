package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/igorsal/pr-sentinel/internal/interfaces"
	pkgerrors "github.com/igorsal/pr-sentinel/pkg/errors"
)

// ErrorResponse represents a structured error response
type ErrorResponse struct {
	Error     ErrorDetail `json:"error"`
	RequestID string      `json:"request_id,omitempty"`
}

type ErrorDetail struct {
	Type    string         `json:"type"`
	Message string         `json:"message"`
	Code    string         `json:"code,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// WriteJSON writes v as a JSON body with the given status
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// WriteError writes err as a structured error response. AppErrors keep their
// status and type; anything else becomes a 500 without leaking details.
func WriteError(w http.ResponseWriter, r *http.Request, logger interfaces.Logger, err error) {
	statusCode := http.StatusInternalServerError
	resp := ErrorResponse{
		Error: ErrorDetail{
			Type:    string(pkgerrors.ErrorTypeInternal),
			Message: "Internal server error",
		},
		RequestID: RequestIDFrom(r.Context()),
	}

	if appErr, ok := pkgerrors.AsAppError(err); ok {
		statusCode = appErr.StatusCode
		resp.Error = ErrorDetail{
			Type:    string(appErr.Type),
			Message: appErr.Message,
			Code:    appErr.Code,
			Context: appErr.Context,
		}
	}

	fields := []interface{}{
		"method", r.Method,
		"path", r.URL.Path,
		"status_code", statusCode,
		"error_type", resp.Error.Type,
		"request_id", resp.RequestID,
	}
	if statusCode >= http.StatusInternalServerError {
		logger.Error("Request error", err, fields...)
	} else {
		logger.Warn("Request rejected", append(fields, "error", err.Error())...)
	}

	if encodeErr := WriteJSON(w, statusCode, resp); encodeErr != nil {
		logger.Error("Failed to encode error response", encodeErr)
	}
}

// PanicRecoveryMiddleware recovers from panics and converts them to errors
func PanicRecoveryMiddleware(logger interfaces.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if recovery := recover(); recovery != nil {
					logger.Error("Panic recovered",
						pkgerrors.NewInternalError("panic recovered"),
						"method", r.Method,
						"path", r.URL.Path,
						"remote_addr", r.RemoteAddr,
						"panic", recovery,
					)
					WriteError(w, r, logger, pkgerrors.NewInternalError("Internal server error"))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
