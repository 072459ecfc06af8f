// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All business errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes grouped by the kind of failure a caller has to handle.
const (
	// Infrastructure errors (5xx)
	CodeInternal            = "INTERNAL_ERROR"
	CodeInvariantViolation  = "INVARIANT_VIOLATION"
	CodeCollaboratorFailure = "COLLABORATOR_FAILURE"

	// Validation errors (400)
	CodeValidation = "VALIDATION_ERROR"

	// Validation errors raised by business rules (422)
	CodeInsufficientStock  = "INSUFFICIENT_STOCK"
	CodeOverFulfillment    = "OVER_FULFILLMENT"
	CodeAllocationMismatch = "ALLOCATION_MISMATCH"
	CodePeriodClosed       = "PERIOD_CLOSED"
	CodeGuardRejected      = "GUARD_REJECTED"

	// Lifecycle errors (409)
	CodeInvalidState           = "INVALID_STATE"
	CodeDependencyConflict     = "DEPENDENCY_CONFLICT"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeResourceBusy           = "RESOURCE_BUSY"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"
)

// AppError is the standard error type for the platform.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, quantities, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Validation ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewFieldValidation creates a validation error bound to a single field.
func NewFieldValidation(field, message string) *AppError {
	return NewValidation(message).WithDetail("field", field)
}

// NewBusinessRule creates a business rule violation error (422).
// Business rule violations are reported to callers as validation failures.
func NewBusinessRule(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewInsufficientStock creates a stock shortage error
func NewInsufficientStock(itemID, locationID string, requested, available string) *AppError {
	return &AppError{
		Code:       CodeInsufficientStock,
		Message:    "Insufficient stock",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"item_id":     itemID,
			"location_id": locationID,
			"requested":   requested,
			"available":   available,
		},
	}
}

// NewPeriodClosed creates error when trying to modify closed period
func NewPeriodClosed(period string) *AppError {
	return &AppError{
		Code:       CodePeriodClosed,
		Message:    fmt.Sprintf("Period %s is closed for modifications", period),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"period": period},
	}
}

// --- Lifecycle ---

// NewState creates an error for a transition requested from an illegal status.
func NewState(status, action string) *AppError {
	return &AppError{
		Code:       CodeInvalidState,
		Message:    fmt.Sprintf("cannot %s a document in status %s", action, status),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"status": status, "action": action},
	}
}

// NewDependencyConflict creates an error for a reversal blocked by downstream consumption.
func NewDependencyConflict(message string) *AppError {
	return &AppError{
		Code:       CodeDependencyConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// NewConcurrentModification creates an optimistic locking error
func NewConcurrentModification(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeConcurrentModification,
		Message:    "Record was modified by another user. Please refresh and try again.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewResourceBusy creates an error for a lock that could not be acquired in time.
func NewResourceBusy(keys []string) *AppError {
	return &AppError{
		Code:       CodeResourceBusy,
		Message:    "Another transition is in progress on a shared resource",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"resources": keys},
	}
}

// --- Infrastructure ---

// NewCollaboratorFailure wraps a failing external collaborator (numbering, journal, master data).
func NewCollaboratorFailure(collaborator string, cause error) *AppError {
	return &AppError{
		Code:       CodeCollaboratorFailure,
		Message:    fmt.Sprintf("%s service failed", collaborator),
		HTTPStatus: http.StatusBadGateway,
		Details:    map[string]any{"collaborator": collaborator},
		Err:        cause,
	}
}

// NewInvariantViolation reports a broken internal invariant. It is a programming error,
// never a user mistake, and must carry enough details to diagnose it from logs.
func NewInvariantViolation(message string) *AppError {
	return &AppError{
		Code:       CodeInvariantViolation,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

func hasCode(err error, codes ...string) bool {
	appErr, ok := AsAppError(err)
	if !ok {
		return false
	}
	for _, c := range codes {
		if appErr.Code == c {
			return true
		}
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

// IsValidation reports plain and business-rule validation failures.
func IsValidation(err error) bool {
	return hasCode(err, CodeValidation, CodeInsufficientStock, CodeOverFulfillment,
		CodeAllocationMismatch, CodePeriodClosed, CodeGuardRejected)
}

// IsState checks if error is CodeInvalidState
func IsState(err error) bool {
	return hasCode(err, CodeInvalidState)
}

// IsDependencyConflict reports downstream conflicts, lost optimistic locks and busy resources.
func IsDependencyConflict(err error) bool {
	return hasCode(err, CodeDependencyConflict, CodeConcurrentModification, CodeResourceBusy)
}

// IsConcurrentModification checks if error is CodeConcurrentModification
func IsConcurrentModification(err error) bool {
	return hasCode(err, CodeConcurrentModification)
}

// IsCollaboratorFailure checks if error is CodeCollaboratorFailure
func IsCollaboratorFailure(err error) bool {
	return hasCode(err, CodeCollaboratorFailure)
}

// IsInvariantViolation checks if error is CodeInvariantViolation
func IsInvariantViolation(err error) bool {
	return hasCode(err, CodeInvariantViolation)
}
