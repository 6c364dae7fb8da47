package shared

import "errors"

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target carries the same code, so wrapped copies of
// sentinel errors still match with errors.Is.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Error codes shared across layers
const (
	CodeNotFound            = "NOT_FOUND"
	CodeAlreadyExists       = "ALREADY_EXISTS"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeValidation          = "VALIDATION_ERROR"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodeTransientFailure    = "TRANSIENT_FAILURE"
	CodeInvariantViolation  = "INVARIANT_VIOLATION"
	CodeNotificationFailed  = "NOTIFICATION_FAILED"
	CodeInvalidState        = "INVALID_STATE"
)

// Common domain errors
var (
	ErrNotFound            = NewDomainError(CodeNotFound, "Resource not found")
	ErrAlreadyExists       = NewDomainError(CodeAlreadyExists, "Resource already exists")
	ErrInvalidInput        = NewDomainError(CodeInvalidInput, "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError(CodeConcurrencyConflict, "Resource was modified by another process")
	ErrTransientFailure    = NewDomainError(CodeTransientFailure, "Ledger is busy, retry later")
	ErrInvariantViolation  = NewDomainError(CodeInvariantViolation, "Ledger invariant violated")
	ErrNotificationFailed  = NewDomainError(CodeNotificationFailed, "Notification delivery failed")
	ErrInvalidState        = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
)

// NewInvariantViolation reports a would-be write that breaks a ledger invariant
func NewInvariantViolation(message string) *DomainError {
	return NewDomainError(CodeInvariantViolation, message)
}

// IsConcurrencyConflict reports whether err signals lost-update or lock contention
func IsConcurrencyConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsInvariantViolation reports whether err is an invariant fault
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrInvariantViolation)
}
