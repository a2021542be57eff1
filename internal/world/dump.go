package world

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/taskdispatch/internal/gpio"
	"github.com/roach88/taskdispatch/internal/state"
)

// Snapshot is a point-in-time copy of the world for dumps and the journal.
type Snapshot struct {
	Time  time.Time      `json:"time"`
	RunID string         `json:"run_id"`
	PID   int            `json:"pid"`
	Pins  Pins           `json:"pins"`
	State map[string]any `json:"state"`
}

// Pins groups pin snapshots by direction.
type Pins struct {
	Input  map[int]gpio.Snapshot `json:"input"`
	Output map[int]gpio.Snapshot `json:"output"`
}

// Dump copies the current state.
func (w *World) Dump(now time.Time) Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	snap := Snapshot{
		Time:  now,
		RunID: w.runID,
		PID:   w.pid,
		Pins: Pins{
			Input:  make(map[int]gpio.Snapshot, len(w.inputs)),
			Output: make(map[int]gpio.Snapshot, len(w.outputs)),
		},
		State: make(map[string]any, len(w.state)),
	}
	for id, p := range w.inputs {
		snap.Pins.Input[id] = p.snap
	}
	for id, p := range w.outputs {
		snap.Pins.Output[id] = p.snap
	}
	for k, v := range w.state {
		snap.State[k] = state.ToAny(v)
	}
	return snap
}

// JSON renders the snapshot as indented JSON with sorted keys.
func (s Snapshot) JSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// DumpPath returns the dump file path for pid inside dir.
func DumpPath(dir string, pid int) string {
	return filepath.Join(dir, fmt.Sprintf("embedded_task_dispatcher_%d.log", pid))
}

// WriteDumpFile writes the current snapshot to DumpPath(dir, pid),
// replacing the previous dump, and returns the path.
func (w *World) WriteDumpFile(dir string, now time.Time) (string, error) {
	data, err := w.Dump(now).JSON()
	if err != nil {
		return "", fmt.Errorf("encode dump: %w", err)
	}
	path := DumpPath(dir, w.pid)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", &IOError{Op: "write dump", Pin: -1, Err: err}
	}
	return path, nil
}
