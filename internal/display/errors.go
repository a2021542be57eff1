package display

import (
	"errors"
	"fmt"
)

// DriverError is a display I/O failure that survived the reconnect.
type DriverError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *DriverError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("display %s failed", e.Op)
	}
	return fmt.Sprintf("display %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *DriverError) Unwrap() error { return e.Err }

// IsDriverError reports whether err wraps a DriverError.
func IsDriverError(err error) bool {
	var de *DriverError
	return errors.As(err, &de)
}
