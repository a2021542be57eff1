package gpio

import (
	"fmt"
	"sync"
)

// Sim is an in-memory Driver. Tests, scenarios and `run --sim` use it to
// stand in for a real board. It is safe for concurrent use.
type Sim struct {
	mu      sync.Mutex
	levels  map[int]bool
	outputs map[int]bool
	opened  map[int]bool
	fail    map[int]error
	readErr map[int]error
}

// NewSim returns a Sim with every pin inactive.
func NewSim() *Sim {
	return &Sim{
		levels:  make(map[int]bool),
		outputs: make(map[int]bool),
		opened:  make(map[int]bool),
		fail:    make(map[int]error),
		readErr: make(map[int]error),
	}
}

// Set changes the level an input pin will report on its next read.
func (s *Sim) Set(pin int, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels[pin] = active
}

// Output returns the last level written to an output pin.
func (s *Sim) Output(pin int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outputs[pin]
}

// FailOpen makes the next OpenInput or OpenOutput of pin return err.
func (s *Sim) FailOpen(pin int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[pin] = err
}

// FailReads makes every read of input pin return err until called again
// with a nil err.
func (s *Sim) FailReads(pin int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.readErr, pin)
		return
	}
	s.readErr[pin] = err
}

// Opened reports whether pin has been opened in either direction.
func (s *Sim) Opened(pin int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened[pin]
}

// OpenInput implements Driver.
func (s *Sim) OpenInput(pin int) (InputLine, error) {
	if err := s.open(pin); err != nil {
		return nil, err
	}
	return &simInput{sim: s, pin: pin}, nil
}

// OpenOutput implements Driver.
func (s *Sim) OpenOutput(pin int) (OutputLine, error) {
	if err := s.open(pin); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.outputs[pin] = false
	s.mu.Unlock()
	return &simOutput{sim: s, pin: pin}, nil
}

func (s *Sim) open(pin int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.fail[pin]; ok {
		delete(s.fail, pin)
		return fmt.Errorf("pin %d: %w", pin, err)
	}
	s.opened[pin] = true
	return nil
}

type simInput struct {
	sim *Sim
	pin int
}

func (l *simInput) Read() (bool, error) {
	l.sim.mu.Lock()
	defer l.sim.mu.Unlock()
	if err, ok := l.sim.readErr[l.pin]; ok {
		return false, err
	}
	return l.sim.levels[l.pin], nil
}

func (l *simInput) Close() error { return nil }

type simOutput struct {
	sim *Sim
	pin int
}

func (l *simOutput) Write(active bool) error {
	l.sim.mu.Lock()
	defer l.sim.mu.Unlock()
	l.sim.outputs[l.pin] = active
	return nil
}

func (l *simOutput) Close() error { return nil }
