// Package errors provides standardized error types for the domain layer.
// These errors provide consistent error handling across all services
// and enable proper error categorization for HTTP responses.
package errors

import (
	"errors"
	"fmt"
)

// Standard error categories
var (
	// ErrNotFound indicates the requested settlement or batch was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates invalid input was provided
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateTip indicates the transaction hash was already recorded
	// for the source chain (replayed webhook delivery)
	ErrDuplicateTip = errors.New("duplicate tip")

	// ErrIllegalTransition indicates a state-machine move not permitted
	// from the settlement's current status
	ErrIllegalTransition = errors.New("illegal status transition")

	// ErrConcurrentRun indicates a processing run is already active for
	// the settlement id
	ErrConcurrentRun = errors.New("concurrent run")

	// ErrExternalFailure indicates a conversion or bridge provider
	// error or timeout
	ErrExternalFailure = errors.New("external provider failure")

	// ErrInternal indicates an internal error
	ErrInternal = errors.New("internal error")
)

// DomainError represents a domain-specific error with additional context
type DomainError struct {
	Err       error
	Code      string
	Message   string
	Details   map[string]interface{}
	Retryable bool
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target
func (e *DomainError) Is(target error) bool {
	if e.Err != nil {
		return errors.Is(e.Err, target)
	}
	return false
}

// WithDetails adds details to the error
func (e *DomainError) WithDetails(details map[string]interface{}) *DomainError {
	e.Details = details
	return e
}

// ValidationError creates a validation error for a malformed or missing field
func ValidationError(field, message string) *DomainError {
	return &DomainError{
		Err:     ErrInvalidInput,
		Code:    "VALIDATION_ERROR",
		Message: message,
		Details: map[string]interface{}{
			"field": field,
		},
	}
}

// DuplicateTipError creates a duplicate tip error carrying the settlement id
// the original tip was grouped into
func DuplicateTipError(txHash string, chainID int64, settlementID string) *DomainError {
	return &DomainError{
		Err:     ErrDuplicateTip,
		Code:    "DUPLICATE_TIP",
		Message: fmt.Sprintf("tip %s on chain %d already recorded", txHash, chainID),
		Details: map[string]interface{}{
			"settlement_id": settlementID,
		},
	}
}

// NotFoundError creates a not found error
func NotFoundError(resource, id string) *DomainError {
	return &DomainError{
		Err:     ErrNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s %s not found", resource, id),
	}
}

// IllegalTransitionError creates an illegal transition error
func IllegalTransitionError(from, to string) *DomainError {
	return &DomainError{
		Err:     ErrIllegalTransition,
		Code:    "ILLEGAL_TRANSITION",
		Message: fmt.Sprintf("cannot transition settlement from %s to %s", from, to),
	}
}

// ConcurrentRunError creates a concurrent run error
func ConcurrentRunError(settlementID string) *DomainError {
	return &DomainError{
		Err:     ErrConcurrentRun,
		Code:    "CONCURRENT_RUN",
		Message: fmt.Sprintf("settlement %s is already being processed", settlementID),
	}
}

// ExternalFailureError wraps a provider error. Marked retryable because the
// settlement remains inspectable and eligible for manual retry.
func ExternalFailureError(provider string, err error) *DomainError {
	de := &DomainError{
		Err:       ErrExternalFailure,
		Code:      "EXTERNAL_FAILURE",
		Message:   fmt.Sprintf("%s provider failure", provider),
		Retryable: true,
	}
	if err != nil {
		de.Details = map[string]interface{}{
			"cause": err.Error(),
		}
	}
	return de
}

// InternalError creates an internal error
func InternalError(message string, err error) *DomainError {
	return &DomainError{
		Err:     ErrInternal,
		Code:    "INTERNAL_ERROR",
		Message: message,
		Details: map[string]interface{}{
			"cause": err.Error(),
		},
	}
}

// Error helpers for common patterns

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidInput checks if an error is an invalid input error
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsDuplicateTip checks if an error is a duplicate tip error
func IsDuplicateTip(err error) bool {
	return errors.Is(err, ErrDuplicateTip)
}

// IsIllegalTransition checks if an error is an illegal transition error
func IsIllegalTransition(err error) bool {
	return errors.Is(err, ErrIllegalTransition)
}

// IsConcurrentRun checks if an error is a concurrent run error
func IsConcurrentRun(err error) bool {
	return errors.Is(err, ErrConcurrentRun)
}

// IsExternalFailure checks if an error is an external provider failure
func IsExternalFailure(err error) bool {
	return errors.Is(err, ErrExternalFailure)
}

// GetErrorCode extracts the error code from a domain error
func GetErrorCode(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return "UNKNOWN_ERROR"
}

// GetErrorDetails extracts details from a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
