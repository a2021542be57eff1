package world

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/taskdispatch/internal/condition"
	"github.com/roach88/taskdispatch/internal/gpio"
	"github.com/roach88/taskdispatch/internal/state"
)

var t0 = time.Unix(1_700_000_000, 0)

func setupWorld(t *testing.T) (*World, *gpio.Sim) {
	t.Helper()
	sim := gpio.NewSim()
	w := New(WithDriver(sim), WithRunID("run-1"), WithPID(42))
	t.Cleanup(func() { w.Close() })
	return w, sim
}

func TestNew_Defaults(t *testing.T) {
	w := New(WithDriver(gpio.NewSim()))
	assert.Len(t, w.RunID(), 36)
	assert.Equal(t, os.Getpid(), w.PID())
	assert.NotNil(t, w.Logger())
}

func TestInitialize_SeedsStateAndExecuted(t *testing.T) {
	w, _ := setupWorld(t)
	w.Set("mode", state.String("manual"))

	reqs := []condition.Requirement{
		{Kind: condition.RequireState, Key: "mode", Default: state.String("")},
		{Kind: condition.RequireState, Key: "count", Default: state.Number(0)},
		{Kind: condition.RequireState, Key: "armed", Default: state.Bool(false)},
	}
	require.NoError(t, w.Initialize(reqs, []string{"root", "blink"}, t0))

	v, ok := w.Get("mode")
	require.True(t, ok)
	assert.Equal(t, state.String("manual"), v, "existing keys keep their value")

	v, _ = w.Get("count")
	assert.Equal(t, state.Number(0), v)
	v, _ = w.Get("armed")
	assert.Equal(t, state.Bool(false), v)

	v, _ = w.Get("blink_executed")
	assert.Equal(t, NeverExecuted, v)
	_, ok = w.Executed("blink")
	assert.False(t, ok)
}

func TestInitialize_OpensPins(t *testing.T) {
	w, sim := setupWorld(t)
	sim.Set(4, true)

	reqs := []condition.Requirement{
		{Kind: condition.RequirePin, Pin: 4},
		{Kind: condition.RequirePin, Pin: 17, Output: true},
		{Kind: condition.RequirePin, Pin: 4},
	}
	require.NoError(t, w.Initialize(reqs, nil, t0))

	in, ok := w.Pin(4, false)
	require.True(t, ok)
	assert.True(t, in.Current)
	assert.True(t, in.Last)

	out, ok := w.Pin(17, true)
	require.True(t, ok)
	assert.False(t, out.Current)
	assert.False(t, sim.Output(17))
	assert.Equal(t, t0, in.LastChange)
	assert.Equal(t, t0, out.LastChange)
	assert.Contains(t, out.String(), "Last change: 1700000000.000")

	_, ok = w.Pin(17, false)
	assert.False(t, ok, "directions are separate")
}

func TestInitialize_OpenFailureIsIOError(t *testing.T) {
	w, sim := setupWorld(t)
	sim.FailOpen(5, errors.New("busy"))

	err := w.Initialize([]condition.Requirement{{Kind: condition.RequirePin, Pin: 5, Output: true}}, nil, t0)
	require.Error(t, err)
	assert.True(t, IsIOError(err))

	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, 5, ioErr.Pin)
}

func TestInitialize_DisplayFailureIsIOError(t *testing.T) {
	sim := gpio.NewSim()
	w := New(WithDriver(sim), WithDisplay(filepath.Join(t.TempDir(), "none.sock")))
	err := w.Initialize(nil, nil, t0)
	assert.True(t, IsIOError(err))
}

func TestRefresh_TracksChanges(t *testing.T) {
	w, sim := setupWorld(t)
	require.NoError(t, w.Initialize([]condition.Requirement{{Kind: condition.RequirePin, Pin: 4}}, nil, t0))

	w.Refresh(t0)
	snap, _ := w.Pin(4, false)
	assert.False(t, snap.Current)
	assert.Equal(t, t0, snap.LastChange, "registration time")

	sim.Set(4, true)
	w.Refresh(t0.Add(time.Second))
	snap, _ = w.Pin(4, false)
	assert.True(t, snap.Current)
	assert.False(t, snap.Last)
	assert.Equal(t, t0.Add(time.Second), snap.LastChange)

	w.Refresh(t0.Add(2 * time.Second))
	snap, _ = w.Pin(4, false)
	assert.True(t, snap.Last)
	assert.Equal(t, t0.Add(time.Second), snap.LastChange, "no change, no stamp")
}

func TestRefresh_ReadErrorKeepsSnapshot(t *testing.T) {
	w, sim := setupWorld(t)
	sim.Set(4, true)
	require.NoError(t, w.Initialize([]condition.Requirement{{Kind: condition.RequirePin, Pin: 4}}, nil, t0))

	sim.FailReads(4, errors.New("bus error"))
	sim.Set(4, false)
	w.Refresh(t0.Add(time.Second))

	snap, _ := w.Pin(4, false)
	assert.True(t, snap.Current)
	assert.Equal(t, t0, snap.LastChange)
}

func TestCommandPin(t *testing.T) {
	w, sim := setupWorld(t)
	require.NoError(t, w.AddOutputPin(17, t0.Add(-time.Minute)))
	require.NoError(t, w.AddOutputPin(17, t0))

	require.NoError(t, w.CommandPin(17, true, t0))
	assert.True(t, sim.Output(17))
	snap, _ := w.Pin(17, true)
	assert.True(t, snap.Current)
	assert.Equal(t, t0, snap.LastChange)

	// Same level: no new stamp.
	require.NoError(t, w.CommandPin(17, true, t0.Add(time.Second)))
	snap, _ = w.Pin(17, true)
	assert.Equal(t, t0, snap.LastChange)

	err := w.CommandPin(99, true, t0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownPin)
}

func TestExecuted_RoundTrip(t *testing.T) {
	w, _ := setupWorld(t)

	_, ok := w.Executed("missing")
	assert.False(t, ok)

	w.MarkExecuted("blink", t0.Add(1500*time.Millisecond))
	got, ok := w.Executed("blink")
	require.True(t, ok)
	assert.True(t, got.Equal(t0.Add(1500*time.Millisecond)))

	v, _ := w.Get("blink_executed")
	assert.Equal(t, state.Number(1_700_000_001.5), v)
}

func TestExecuted_KeepsSubMillisecondTime(t *testing.T) {
	w, _ := setupWorld(t)
	stamp := t0.Add(1234567 * time.Nanosecond)
	w.MarkExecuted("x", stamp)

	got, ok := w.Executed("x")
	require.True(t, ok)
	assert.False(t, got.After(stamp))
	assert.Equal(t, t0.Add(1234*time.Microsecond), got)

	// A tick exactly one interval later must see the full interval.
	assert.GreaterOrEqual(t, stamp.Add(time.Second).Sub(got), time.Second)
}

func TestExecuted_NonNumberIsNeverExecuted(t *testing.T) {
	w, _ := setupWorld(t)
	w.Set("x_executed", state.String("yesterday"))
	_, ok := w.Executed("x")
	assert.False(t, ok)
}

func TestSet_NilDeletes(t *testing.T) {
	w, _ := setupWorld(t)
	w.Set("a", state.Bool(true))
	w.Set("b", state.Number(1))
	assert.Equal(t, []string{"a", "b"}, w.Keys())

	w.Set("a", nil)
	_, ok := w.Lookup("a")
	assert.False(t, ok)
}

func TestDisplay_NotConfigured(t *testing.T) {
	w, _ := setupWorld(t)
	_, err := w.Display()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoDisplay)
	assert.ErrorIs(t, w.PrepareDisplay("hi", true), ErrNoDisplay)
}

func TestDump(t *testing.T) {
	w, sim := setupWorld(t)
	sim.Set(4, true)
	require.NoError(t, w.Initialize([]condition.Requirement{
		{Kind: condition.RequirePin, Pin: 4},
		{Kind: condition.RequirePin, Pin: 17, Output: true},
		{Kind: condition.RequireState, Key: "mode", Default: state.String("idle")},
	}, []string{"root"}, t0))

	snap := w.Dump(t0)
	assert.Equal(t, "run-1", snap.RunID)
	assert.Equal(t, 42, snap.PID)
	assert.True(t, snap.Pins.Input[4].Current)
	assert.False(t, snap.Pins.Output[17].Current)
	assert.Equal(t, "idle", snap.State["mode"])
	assert.Equal(t, float64(-1), snap.State["root_executed"])

	data, err := snap.JSON()
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Contains(t, decoded, "pins")
	assert.Contains(t, decoded["pins"].(map[string]any)["input"], "4")
}

func TestWriteDumpFile(t *testing.T) {
	w, _ := setupWorld(t)
	w.Set("mode", state.String("auto"))
	dir := t.TempDir()

	path, err := w.WriteDumpFile(dir, t0)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "embedded_task_dispatcher_42.log"), path)

	w.Set("mode", state.String("manual"))
	_, err = w.WriteDumpFile(dir, t0.Add(time.Second))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"mode": "manual"`)
	assert.NotContains(t, string(data), `"auto"`)
}
