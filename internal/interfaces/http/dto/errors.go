package dto

import (
	"net/http"
	"strings"

	"github.com/wasteline/backend/internal/domain/shared"
)

// Error codes produced by the HTTP layer itself. Domain codes pass through unchanged.
const (
	ErrCodeInternal   = "INTERNAL_ERROR"
	ErrCodeBadRequest = "BAD_REQUEST"
	ErrCodeValidation = shared.CodeValidation
	ErrCodeNotFound   = shared.CodeNotFound
	ErrCodeConflict   = "CONFLICT"
	// ErrCodeJobRunning is returned when a manual generator run overlaps a scheduled one
	ErrCodeJobRunning   = "JOB_ALREADY_RUNNING"
	ErrCodeUnavailable  = "SERVICE_UNAVAILABLE"
	ErrCodeBodyTooLarge = "REQUEST_TOO_LARGE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:   http.StatusInternalServerError,
	ErrCodeBadRequest: http.StatusBadRequest,
	ErrCodeConflict:   http.StatusConflict,
	ErrCodeJobRunning: http.StatusConflict,

	ErrCodeUnavailable:  http.StatusServiceUnavailable,
	ErrCodeBodyTooLarge: http.StatusRequestEntityTooLarge,

	shared.CodeValidation:   http.StatusBadRequest,
	shared.CodeInvalidInput: http.StatusBadRequest,
	shared.CodeNotFound:     http.StatusNotFound,

	// Conflicts: the ledger already holds this fact, or someone else is writing it
	shared.CodeAlreadyExists:       http.StatusConflict,
	shared.CodeConcurrencyConflict: http.StatusConflict,
	"DUPLICATE_TRANS_ID":           http.StatusConflict,
	"INVOICE_NUMBER_TAKEN":         http.StatusConflict,

	shared.CodeInvalidState: http.StatusUnprocessableEntity,

	shared.CodeTransientFailure:   http.StatusServiceUnavailable,
	"INVOICE_NUMBER_EXHAUSTED":    http.StatusServiceUnavailable,
	shared.CodeInvariantViolation: http.StatusInternalServerError,
	shared.CodeNotificationFailed: http.StatusInternalServerError,
}

// GetHTTPStatus returns the HTTP status code for an error code. Unlisted
// INVALID_* codes are business-rule rejections (422); anything else is a 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	if strings.HasPrefix(code, "INVALID_") {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
