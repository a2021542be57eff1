package engine

import "time"

// Clock supplies the scheduler's notion of now.
//
// Every tick reads the clock once, so all conditions, gates and execution
// stamps within a tick agree on the time. Tests substitute a manual clock
// to step time deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }
