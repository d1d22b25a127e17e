package engine

import (
	"errors"
	"fmt"
)

// ErrorClass classifies engine errors for retry and escalation decisions.
type ErrorClass string

const (
	// ErrorClassNotFound indicates a referenced entity (typically the
	// account) does not exist. Fatal to the calling operation, never
	// retried.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassDataIntegrity indicates an identity tuple resolved to more
	// than one item. Signals corrupted state; surfaced to the caller and
	// never auto-repaired.
	ErrorClassDataIntegrity ErrorClass = "data_integrity"

	// ErrorClassTransient indicates a connectivity or pool failure on a
	// read path. Eligible for retry.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassConstraint indicates a storage-level constraint violation
	// (e.g. duplicate ARN), surfaced as-is and never interpreted.
	ErrorClassConstraint ErrorClass = "constraint"

	// ErrorClassRetryExhausted indicates a retried read failed on every
	// attempt. Wraps the last underlying error.
	ErrorClassRetryExhausted ErrorClass = "retry_exhausted"
)

// DatastoreError is a classified engine error.
type DatastoreError struct {
	// Class is the error classification.
	Class ErrorClass

	// Message is the human-readable error message.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *DatastoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.Err.Error())
	}
	return fmt.Sprintf("[%s] %s", e.Class, e.Message)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *DatastoreError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *DatastoreError) Is(target error) bool {
	t, ok := target.(*DatastoreError)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// NewNotFoundError creates a not-found error.
func NewNotFoundError(message string) *DatastoreError {
	return &DatastoreError{Class: ErrorClassNotFound, Message: message}
}

// NewDataIntegrityError creates a data-integrity error.
func NewDataIntegrityError(message string) *DatastoreError {
	return &DatastoreError{Class: ErrorClassDataIntegrity, Message: message}
}

// NewTransientError creates a transient storage error.
func NewTransientError(message string, err error) *DatastoreError {
	return &DatastoreError{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewConstraintError creates a constraint-violation error.
func NewConstraintError(message string, err error) *DatastoreError {
	return &DatastoreError{Class: ErrorClassConstraint, Message: message, Err: err}
}

// NewRetryExhaustedError creates a retry-exhausted error wrapping the last
// underlying failure.
func NewRetryExhaustedError(message string, err error) *DatastoreError {
	return &DatastoreError{Class: ErrorClassRetryExhausted, Message: message, Err: err}
}

func hasClass(err error, class ErrorClass) bool {
	var e *DatastoreError
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}

// IsNotFound returns true if the error is classified as not-found.
func IsNotFound(err error) bool {
	return hasClass(err, ErrorClassNotFound)
}

// IsDataIntegrity returns true if the error signals a corrupted identity.
func IsDataIntegrity(err error) bool {
	return hasClass(err, ErrorClassDataIntegrity)
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	return hasClass(err, ErrorClassTransient)
}

// IsConstraint returns true if the error is a storage constraint violation.
func IsConstraint(err error) bool {
	return hasClass(err, ErrorClassConstraint)
}

// IsRetryExhausted returns true if a retried read failed on every attempt.
func IsRetryExhausted(err error) bool {
	return hasClass(err, ErrorClassRetryExhausted)
}
