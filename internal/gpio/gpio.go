// Package gpio abstracts the digital pins the scheduler reads and drives.
//
// Drivers speak logical levels: true means "active". Mapping active to an
// electrical level (the boards this targets are wired active-low behind
// pull-ups) is the driver's job, so conditions and actions never see it.
package gpio

import (
	"fmt"
	"time"
)

// Snapshot is the scheduler's view of one pin.
type Snapshot struct {
	Current    bool      `json:"current_state"`
	Last       bool      `json:"last_state"`
	LastChange time.Time `json:"last_change"`
}

// String renders the snapshot for state dumps.
func (s Snapshot) String() string {
	return fmt.Sprintf("Current state: %t, Last state: %t, Last change: %.3f",
		s.Current, s.Last, float64(s.LastChange.UnixNano())/1e9)
}

// InputLine is an opened input pin.
type InputLine interface {
	Read() (bool, error)
	Close() error
}

// OutputLine is an opened output pin.
type OutputLine interface {
	Write(active bool) error
	Close() error
}

// Driver opens pins. Inputs are opened pulled-up with debounced reads,
// outputs are opened driven to their inactive level.
type Driver interface {
	OpenInput(pin int) (InputLine, error)
	OpenOutput(pin int) (OutputLine, error)
}
