package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeValidation represents malformed or incomplete caller input.
	// Never retried; surfaced before any network call.
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeThrottling represents a rate-limit signal from the remote store
	ErrorTypeThrottling ErrorType = "throttling"
	// ErrorTypeRemote represents a permanent remote store failure
	ErrorTypeRemote ErrorType = "remote"
	// ErrorTypeNotFound represents a missing entity
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeExtraction represents malformed text-extraction output
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
)

// BaseError is the base error type with common fields
type BaseError struct {
	Type      ErrorType
	Message   string
	Timestamp time.Time
	Err       error // Wrapped error
}

// Error implements the error interface
func (e *BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error for error unwrapping
func (e *BaseError) Unwrap() error {
	return e.Err
}

// NewBaseError creates a new base error
func NewBaseError(errType ErrorType, message string, err error) *BaseError {
	return &BaseError{
		Type:      errType,
		Message:   message,
		Timestamp: time.Now(),
		Err:       err,
	}
}

// Validation Errors

// ErrValidationFailed is returned when caller input fails validation
type ErrValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewValidationFailed(field, reason string) *ErrValidationFailed {
	return &ErrValidationFailed{
		BaseError: NewBaseError(ErrorTypeValidation, fmt.Sprintf("validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// Throttling Errors

// ErrThrottled is returned when the remote store reports a rate limit
type ErrThrottled struct {
	*BaseError
	Operation string
	Attempt   int
}

func NewThrottled(operation string, attempt int, err error) *ErrThrottled {
	return &ErrThrottled{
		BaseError: NewBaseError(ErrorTypeThrottling, fmt.Sprintf("rate limited: %s (attempt %d)", operation, attempt), err),
		Operation: operation,
		Attempt:   attempt,
	}
}

// Remote Errors

// ErrRemoteFatal is returned when the remote store fails permanently,
// including a throttled operation that exhausted its retry ceiling
type ErrRemoteFatal struct {
	*BaseError
	Operation string
	Attempts  int
}

func NewRemoteFatal(operation string, attempts int, err error) *ErrRemoteFatal {
	return &ErrRemoteFatal{
		BaseError: NewBaseError(ErrorTypeRemote, fmt.Sprintf("remote operation failed: %s after %d attempts", operation, attempts), err),
		Operation: operation,
		Attempts:  attempts,
	}
}

// Not Found Errors

// ErrNodeNotFound is returned when a node cannot be located for mutation.
// Reads treat not-found as an empty result instead of raising this.
type ErrNodeNotFound struct {
	*BaseError
	NodeID       string
	PartitionKey string
}

func NewNodeNotFound(nodeID, partitionKey string) *ErrNodeNotFound {
	return &ErrNodeNotFound{
		BaseError:    NewBaseError(ErrorTypeNotFound, fmt.Sprintf("node not found: %s (pk: %s)", nodeID, partitionKey), nil),
		NodeID:       nodeID,
		PartitionKey: partitionKey,
	}
}

// Extraction Errors

// ErrExtractionFailed is returned when the text-extraction collaborator
// returns output that cannot be repaired into a usable result
type ErrExtractionFailed struct {
	*BaseError
	ChunkIndex int
}

func NewExtractionFailed(chunkIndex int, err error) *ErrExtractionFailed {
	return &ErrExtractionFailed{
		BaseError:  NewBaseError(ErrorTypeExtraction, fmt.Sprintf("extraction failed for chunk %d", chunkIndex), err),
		ChunkIndex: chunkIndex,
	}
}

// Config Errors

// ErrConfigMissingRequired is returned when a required config value is missing
type ErrConfigMissingRequired struct {
	*BaseError
	Field string
}

func NewConfigMissingRequired(field string) *ErrConfigMissingRequired {
	return &ErrConfigMissingRequired{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("missing required config: %s", field), nil),
		Field:     field,
	}
}

// Helper functions

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	for err != nil {
		if baseErr, ok := err.(*BaseError); ok {
			return baseErr.Type == errType
		}
		if typed, ok := err.(interface{ base() *BaseError }); ok {
			return typed.base().Type == errType
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

func (e *ErrValidationFailed) base() *BaseError      { return e.BaseError }
func (e *ErrThrottled) base() *BaseError             { return e.BaseError }
func (e *ErrRemoteFatal) base() *BaseError           { return e.BaseError }
func (e *ErrNodeNotFound) base() *BaseError          { return e.BaseError }
func (e *ErrExtractionFailed) base() *BaseError      { return e.BaseError }
func (e *ErrConfigMissingRequired) base() *BaseError { return e.BaseError }

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	// Only throttling is recovered locally; validation, not-found and
	// permanent remote failures are surfaced immediately
	return IsErrorType(err, ErrorTypeThrottling)
}
