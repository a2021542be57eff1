package engine

import (
	"errors"
	"fmt"
)

// ActionError is a failed task or exit action.
//
// Action errors are logged and recorded in the journal; they never stop the
// scheduler.
type ActionError struct {
	// Code identifies the error category.
	Code ActionErrorCode

	// Root is the root tree the task belongs to.
	Root string

	// Task is the task name.
	Task string

	// Err is what the action returned, or the recovered panic.
	Err error
}

// ActionErrorCode categorizes action failures.
type ActionErrorCode string

const (
	// ErrCodeActionFailed indicates the action returned an error.
	ErrCodeActionFailed ActionErrorCode = "ACTION_FAILED"

	// ErrCodeActionPanicked indicates the action panicked.
	ErrCodeActionPanicked ActionErrorCode = "ACTION_PANICKED"

	// ErrCodeExitFailed indicates a context's exit action failed.
	ErrCodeExitFailed ActionErrorCode = "EXIT_FAILED"
)

// Error implements the error interface.
func (e *ActionError) Error() string {
	return fmt.Sprintf("%s: task %s (root=%s): %v", e.Code, e.Task, e.Root, e.Err)
}

// Unwrap returns the action's error.
func (e *ActionError) Unwrap() error { return e.Err }

// IsActionError returns true if the error is an action failure.
// Uses errors.As to handle wrapped errors.
func IsActionError(err error) bool {
	var ae *ActionError
	return errors.As(err, &ae)
}

// IsPanicError returns true if the error is a recovered action panic.
func IsPanicError(err error) bool {
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae.Code == ErrCodeActionPanicked
	}
	return false
}
