package tree

import (
	"errors"
	"fmt"
)

// BuildErrorCode categorizes tree validation failures.
type BuildErrorCode string

const (
	// ErrCodeDuplicateName indicates two nodes in one tree share a name.
	ErrCodeDuplicateName BuildErrorCode = "DUPLICATE_NAME"

	// ErrCodeEmptyName indicates a node without a name.
	ErrCodeEmptyName BuildErrorCode = "EMPTY_NAME"

	// ErrCodeMissingAction indicates a task (or exit task) without an action.
	ErrCodeMissingAction BuildErrorCode = "MISSING_ACTION"

	// ErrCodeInvalidCondition indicates a condition that failed to bind.
	ErrCodeInvalidCondition BuildErrorCode = "INVALID_CONDITION"

	// ErrCodeNilNode indicates a nil child.
	ErrCodeNilNode BuildErrorCode = "NIL_NODE"
)

// BuildError is returned by Build when a tree is malformed.
type BuildError struct {
	Code BuildErrorCode

	// Node is the offending node's name, or the parent's name for a nil child.
	Node string

	Message string

	Err error
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	msg := fmt.Sprintf("%s: %s (node=%q)", e.Code, e.Message, e.Node)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *BuildError) Unwrap() error { return e.Err }

// IsBuildError reports whether err wraps a BuildError.
func IsBuildError(err error) bool {
	var be *BuildError
	return errors.As(err, &be)
}
