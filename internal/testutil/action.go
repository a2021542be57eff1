package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/taskdispatch/internal/world"
)

// ActionRecorder builds task actions that count their runs and can be
// held open, so tests can observe de-duplication and reaping.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ActionRecorder struct {
	mu      sync.Mutex
	calls   map[string]int
	order   []string
	gates   map[string]chan struct{}
	running map[string]int
	fail    map[string]error
}

// NewActionRecorder creates an empty recorder.
func NewActionRecorder() *ActionRecorder {
	return &ActionRecorder{
		calls:   make(map[string]int),
		gates:   make(map[string]chan struct{}),
		running: make(map[string]int),
		fail:    make(map[string]error),
	}
}

// Action returns an action that records a run under name.
func (r *ActionRecorder) Action(name string) func(context.Context, *world.World) error {
	return func(ctx context.Context, w *world.World) error {
		r.mu.Lock()
		r.calls[name]++
		r.order = append(r.order, name)
		r.running[name]++
		gate := r.gates[name]
		err := r.fail[name]
		r.mu.Unlock()

		if gate != nil {
			<-gate
		}

		r.mu.Lock()
		r.running[name]--
		r.mu.Unlock()
		return err
	}
}

// Hold makes future runs of name block until Release.
func (r *ActionRecorder) Hold(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gates[name] == nil {
		r.gates[name] = make(chan struct{})
	}
}

// Release unblocks every held run of name.
func (r *ActionRecorder) Release(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gate := r.gates[name]; gate != nil {
		close(gate)
		delete(r.gates, name)
	}
}

// Fail makes runs of name return an error.
func (r *ActionRecorder) Fail(name, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[name] = errors.New(msg)
}

// Calls returns how many times name started.
func (r *ActionRecorder) Calls(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[name]
}

// Running returns how many runs of name are in progress.
func (r *ActionRecorder) Running(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running[name]
}

// Order returns the names in the order their runs started.
func (r *ActionRecorder) Order() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
