package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/diagnosis/buildhub/pkg/apperr"
	"github.com/diagnosis/buildhub/pkg/logger"
)

// ErrorResponse represents a structured JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Common error codes
const (
	CodeInvalidInput      = "INVALID_INPUT"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeNotFound          = "NOT_FOUND"
	CodeRateLimit         = "RATE_LIMIT_EXCEEDED"
	CodeInternalError     = "INTERNAL_ERROR"
	CodeExpiredCode       = "EXPIRED_CODE"
	CodeInvalidCode       = "INVALID_CODE"
	CodeInvalidToken      = "INVALID_TOKEN"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeTooManyAttempts   = "TOO_MANY_ATTEMPTS"
	CodeEmailExists       = "EMAIL_EXISTS"
)

func JSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

// Message writes the {"message": ...} body used by the neutral auth replies.
func Message(w http.ResponseWriter, statusCode int, message string) {
	JSON(w, statusCode, map[string]string{"message": message})
}

// WriteError writes a structured JSON error response
func WriteError(w http.ResponseWriter, statusCode int, message string, code string) {
	JSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}

// StatusFor maps an error kind to its HTTP status and default code.
func StatusFor(kind apperr.Kind) (int, string) {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest, CodeInvalidInput
	case apperr.KindInvalidCode:
		return http.StatusBadRequest, CodeInvalidCode
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized, CodeUnauthorized
	case apperr.KindInvalidToken:
		return http.StatusUnauthorized, CodeInvalidToken
	case apperr.KindForbidden:
		return http.StatusForbidden, CodeForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound, CodeNotFound
	case apperr.KindInvalidTransition:
		return http.StatusConflict, CodeInvalidTransition
	case apperr.KindExpired:
		return http.StatusGone, CodeExpiredCode
	case apperr.KindTooManyAttempts:
		return http.StatusTooManyRequests, CodeTooManyAttempts
	default:
		return http.StatusInternalServerError, CodeInternalError
	}
}

// FromError writes err as a structured response. Errors without a kind are
// logged and reported as a generic 500 so internals never reach the client.
func FromError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		logger.ErrorContext(r.Context(), "request failed", "error", err, "path", r.URL.Path)
		InternalError(w, "Internal server error")
		return
	}
	status, code := StatusFor(ae.Kind)
	if ae.Code != "" {
		code = ae.Code
	}
	WriteError(w, status, ae.Message, code)
}

// Convenience functions for common errors
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidInput)
}

func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message, CodeUnauthorized)
}

func Forbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, message, CodeForbidden)
}

func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message, CodeNotFound)
}

func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, message, CodeInternalError)
}

func RateLimit(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, message, CodeRateLimit)
}
