package response

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/showroomhq/testdrive-core/internal/domain"
)

// ErrorResponse represents a structured JSON error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// WriteError writes a structured JSON error response
func WriteError(w http.ResponseWriter, statusCode int, message string, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errResp := ErrorResponse{
		Error: message,
		Code:  code,
	}

	if err := json.NewEncoder(w).Encode(errResp); err != nil {
		log.Printf("failed to encode error response: %v", err)
	}
}

// WriteJSON writes a JSON payload with the given status code
func WriteJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// Common error codes
const (
	CodeInvalidInput    = "INVALID_INPUT"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeNotFound        = "NOT_FOUND"
	CodeRateLimit       = "RATE_LIMIT_EXCEEDED"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeSlotUnavailable = "SLOT_UNAVAILABLE"
	CodeNotOwner        = "NOT_OWNER"
	CodeHoldExpired     = "HOLD_EXPIRED"
	CodeAlreadyHeld     = "ALREADY_HELD"
)

// CodeFor maps a domain error to its wire error code. Unrecognized errors
// map to INTERNAL_ERROR; domain errors are always surfaced as typed
// responses, never raw faults.
func CodeFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrSlotUnavailable):
		return CodeSlotUnavailable
	case errors.Is(err, domain.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, domain.ErrNotOwner):
		return CodeNotOwner
	case errors.Is(err, domain.ErrExpired):
		return CodeHoldExpired
	case errors.Is(err, domain.ErrAlreadyHeld):
		return CodeAlreadyHeld
	default:
		return CodeInternalError
	}
}

// StatusFor maps a domain error to an HTTP status for the REST surface.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSlotUnavailable), errors.Is(err, domain.ErrAlreadyHeld):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrExpired):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// Convenience functions for common errors
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message, CodeInvalidInput)
}

func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message, CodeUnauthorized)
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

// DomainError writes the typed response for a domain error.
func DomainError(w http.ResponseWriter, err error) {
	WriteError(w, StatusFor(err), err.Error(), CodeFor(err))
}
