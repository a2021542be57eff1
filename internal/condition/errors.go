package condition

import (
	"errors"
	"fmt"
)

// TriggerErrorCode categorizes predicate infrastructure faults.
type TriggerErrorCode string

const (
	// ErrCodeUnknownPin indicates a pin predicate names a pin that was never
	// registered in the world state.
	ErrCodeUnknownPin TriggerErrorCode = "UNKNOWN_PIN"

	// ErrCodeUnbound indicates a stateful predicate was evaluated without
	// going through Bind.
	ErrCodeUnbound TriggerErrorCode = "UNBOUND_CONDITION"

	// ErrCodeInvalidCondition indicates a malformed predicate tree.
	ErrCodeInvalidCondition TriggerErrorCode = "INVALID_CONDITION"
)

// TriggerError is a predicate evaluation fault. A predicate that is merely
// not satisfied returns false, never a TriggerError.
type TriggerError struct {
	Code    TriggerErrorCode
	Message string
	Pin     int
}

// Error implements the error interface.
func (e *TriggerError) Error() string {
	if e.Code == ErrCodeUnknownPin {
		return fmt.Sprintf("%s: %s (pin=%d)", e.Code, e.Message, e.Pin)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsTriggerError reports whether err wraps a TriggerError.
func IsTriggerError(err error) bool {
	var te *TriggerError
	return errors.As(err, &te)
}
