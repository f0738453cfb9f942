package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeValidation represents malformed input, self-follow or kind/type mismatch
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeNotFound represents a missing actor, target, post or comment
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeConflict represents a transaction that lost a race with a concurrent writer
	ErrorTypeConflict ErrorType = "conflict"
	// ErrorTypeStore represents adapter I/O failures
	ErrorTypeStore ErrorType = "store"
	// ErrorTypeTimeout represents an expired per-operation store deadline
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeMalformedThread represents structural corruption found while building a thread
	ErrorTypeMalformedThread ErrorType = "malformed_thread"
	// ErrorTypeConfig represents configuration errors
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeContext represents context cancellation errors
	ErrorTypeContext ErrorType = "context"
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

// Base lets typed errors expose their embedded BaseError to errors.As
func (e *BaseError) Base() *BaseError {
	return e
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

// ErrValidation is returned for input the engine rejects outright
type ErrValidation struct {
	*BaseError
	Field  string
	Reason string
}

func NewValidation(field, reason string) *ErrValidation {
	return &ErrValidation{
		BaseError: NewBaseError(ErrorTypeValidation, fmt.Sprintf("invalid %s: %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

// ErrInvalidRelation is returned for self-follow or a kind applied to the wrong node types
type ErrInvalidRelation struct {
	*BaseError
	Kind   string
	Reason string
}

func NewInvalidRelation(kind, reason string) *ErrInvalidRelation {
	return &ErrInvalidRelation{
		BaseError: NewBaseError(ErrorTypeValidation, fmt.Sprintf("invalid %s relation: %s", kind, reason), nil),
		Kind:      kind,
		Reason:    reason,
	}
}

// Not Found Errors

// ErrNotFound is returned when a referenced node does not exist
type ErrNotFound struct {
	*BaseError
	Entity string
	ID     string
}

func NewNotFound(entity, id string) *ErrNotFound {
	return &ErrNotFound{
		BaseError: NewBaseError(ErrorTypeNotFound, fmt.Sprintf("%s not found: %s", entity, id), nil),
		Entity:    entity,
		ID:        id,
	}
}

// Conflict Errors

// ErrConflict is returned by a single transaction attempt that lost a race
type ErrConflict struct {
	*BaseError
	Key string
}

func NewConflict(key string, err error) *ErrConflict {
	return &ErrConflict{
		BaseError: NewBaseError(ErrorTypeConflict, fmt.Sprintf("concurrent update on %s", key), err),
		Key:       key,
	}
}

// ErrConflictRetryExhausted is returned when every attempt of an operation lost a race
type ErrConflictRetryExhausted struct {
	*BaseError
	Operation string
	Attempts  int
}

func NewConflictRetryExhausted(operation string, attempts int, err error) *ErrConflictRetryExhausted {
	return &ErrConflictRetryExhausted{
		BaseError: NewBaseError(ErrorTypeConflict, fmt.Sprintf("%s still conflicting after %d attempts", operation, attempts), err),
		Operation: operation,
		Attempts:  attempts,
	}
}

// Store Errors

// ErrStoreFailed is returned when the graph store reports an I/O failure
type ErrStoreFailed struct {
	*BaseError
	Operation string
	Retryable bool
}

func NewStoreFailed(operation string, retryable bool, err error) *ErrStoreFailed {
	return &ErrStoreFailed{
		BaseError: NewBaseError(ErrorTypeStore, fmt.Sprintf("store operation failed: %s", operation), err),
		Operation: operation,
		Retryable: retryable,
	}
}

// ErrStoreTimeout is returned when a store call exceeds its deadline
type ErrStoreTimeout struct {
	*BaseError
	Operation string
	Timeout   time.Duration
}

func NewStoreTimeout(operation string, timeout time.Duration, err error) *ErrStoreTimeout {
	return &ErrStoreTimeout{
		BaseError: NewBaseError(ErrorTypeTimeout, fmt.Sprintf("store timeout: %s (timeout: %v)", operation, timeout), err),
		Operation: operation,
		Timeout:   timeout,
	}
}

// Thread Errors

// ErrMalformedThread is returned when comment records do not form a forest
type ErrMalformedThread struct {
	*BaseError
	PostID     string
	CommentIDs []string
}

func NewMalformedThread(postID string, commentIDs []string) *ErrMalformedThread {
	return &ErrMalformedThread{
		BaseError:  NewBaseError(ErrorTypeMalformedThread, fmt.Sprintf("reply cycle in thread of post %s: %v", postID, commentIDs), nil),
		PostID:     postID,
		CommentIDs: commentIDs,
	}
}

// Context Errors

// ErrContextCancelled is returned when context is cancelled
type ErrContextCancelled struct {
	*BaseError
	Operation string
}

func NewContextCancelled(operation string, err error) *ErrContextCancelled {
	return &ErrContextCancelled{
		BaseError: NewBaseError(ErrorTypeContext, fmt.Sprintf("context cancelled: %s", operation), err),
		Operation: operation,
	}
}

// Config Errors

// ErrConfigValidationFailed is returned when configuration validation fails
type ErrConfigValidationFailed struct {
	*BaseError
	Field  string
	Reason string
}

func NewConfigValidationFailed(field, reason string) *ErrConfigValidationFailed {
	return &ErrConfigValidationFailed{
		BaseError: NewBaseError(ErrorTypeConfig, fmt.Sprintf("config validation failed: %s - %s", field, reason), nil),
		Field:     field,
		Reason:    reason,
	}
}

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

type baser interface {
	Base() *BaseError
}

// TypeOf returns the category of the outermost BaseError in the chain, or "" if none
func TypeOf(err error) ErrorType {
	var b baser
	if stderrors.As(err, &b) {
		return b.Base().Type
	}
	return ""
}

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errType ErrorType) bool {
	return err != nil && TypeOf(err) == errType
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var storeErr *ErrStoreFailed
	if stderrors.As(err, &storeErr) {
		return storeErr.Retryable
	}
	switch TypeOf(err) {
	case ErrorTypeConflict, ErrorTypeTimeout:
		return true
	}
	return false
}

// HTTPStatus maps an error to the status code the API layer responds with
func HTTPStatus(err error) int {
	switch TypeOf(err) {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeConflict:
		return http.StatusConflict
	case ErrorTypeStore:
		return http.StatusServiceUnavailable
	case ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
