package world

import (
	"errors"
	"fmt"
)

// IOError is a pin or display failure. During Initialize it is fatal.
type IOError struct {
	Op  string
	Pin int
	Err error
}

// Error implements the error interface.
func (e *IOError) Error() string {
	if e.Pin >= 0 {
		return fmt.Sprintf("%s pin %d: %v", e.Op, e.Pin, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *IOError) Unwrap() error { return e.Err }

// ConfigError is a configuration or parsing failure.
type ConfigError struct {
	Path    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", e.Path, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return "config: " + msg
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error { return e.Err }

// IsIOError reports whether err wraps an IOError.
func IsIOError(err error) bool {
	var ie *IOError
	return errors.As(err, &ie)
}

// IsConfigError reports whether err wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
