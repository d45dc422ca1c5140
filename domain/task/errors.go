package task

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested task does not exist.
	ErrNotFound = errors.New("task not found")
	// ErrValidation indicates a validator rejected the task.
	ErrValidation = errors.New("task validation failed")
	// ErrInvalidStatus indicates an unknown status value.
	ErrInvalidStatus = errors.New("invalid task status")
	// ErrPersistence indicates the store failed to complete an operation.
	ErrPersistence = errors.New("task persistence failed")
	// ErrConflict indicates a serializable transaction lost a race and was rolled back.
	ErrConflict = errors.New("task update conflict")
)

// ValidationError is returned when a validator rejects a task. Reason is
// the human-readable message surfaced to callers.
type ValidationError struct {
	Rule   string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a ValidationError for the given rule.
func NewValidationError(rule, reason string) *ValidationError {
	return &ValidationError{Rule: rule, Reason: reason}
}

// PersistenceError wraps a store-level failure with the operation name.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is makes every PersistenceError match ErrPersistence.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// WrapPersistence wraps err as a PersistenceError. Nil, ErrNotFound and
// errors that already are persistence errors pass through unchanged.
func WrapPersistence(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrPersistence) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
