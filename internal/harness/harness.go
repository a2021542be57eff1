package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/roach88/taskdispatch/internal/compiler"
	"github.com/roach88/taskdispatch/internal/engine"
	"github.com/roach88/taskdispatch/internal/gpio"
	"github.com/roach88/taskdispatch/internal/state"
	"github.com/roach88/taskdispatch/internal/store"
	"github.com/roach88/taskdispatch/internal/testutil"
	"github.com/roach88/taskdispatch/internal/world"
)

// Start is the manual clock's reading when every scenario begins.
var Start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// settleTimeout bounds the wait for background actions after a tick.
const settleTimeout = 5 * time.Second

// Harness is the test execution engine.
// It runs one scenario against a real engine with a manual clock.
type Harness struct {
	scenario *Scenario
	clock    *testutil.ManualClock
	sim      *gpio.Sim
	world    *world.World
	engine   *engine.Engine
	store    *store.Store
	logger   *slog.Logger
	trace    *traceRecorder
}

// traceRecorder turns engine events into trace entries.
type traceRecorder struct {
	start    time.Time
	events   []TraceEvent
	failures []string
}

func (r *traceRecorder) OnTransition(ev engine.TransitionEvent) {
	r.events = append(r.events, TraceEvent{
		AtMS: ev.Time.Sub(r.start).Milliseconds(),
		Type: EventTransition,
		Root: ev.Root,
		Kind: string(ev.Kind),
		Node: ev.Node,
		Path: ev.Path,
	})
}

func (r *traceRecorder) OnFire(ev engine.FireEvent) {
	r.events = append(r.events, TraceEvent{
		AtMS: ev.Time.Sub(r.start).Milliseconds(),
		Type: EventFire,
		Root: ev.Root,
		Node: ev.Task,
		Exit: ev.Exit,
	})
}

func (r *traceRecorder) OnComplete(ev engine.CompleteEvent) {
	if ev.Err != nil {
		r.failures = append(r.failures, ev.Err.Error())
	}
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory journal and simulated board for
// isolation. An error is returned only when the scenario cannot run at
// all; failed expectations are reported in the Result.
//
// Execution flow:
// 1. Compile and validate the CUE trees
// 2. Seed state and input pins, initialize the engine
// 3. Run every step: apply inputs, tick, settle, check expectations
// 4. Evaluate assertions against the trace, final state and journal
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	h, err := setup(ctx, scenario)
	if err != nil {
		return nil, err
	}
	defer h.close()

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.runStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	result.Trace = h.trace.events
	result.Failures = append([]string(nil), h.trace.failures...)
	sort.Strings(result.Failures)
	h.collectFinal(result)

	actx := &AssertionContext{
		Store: h.store,
		Ctx:   ctx,
		RunID: h.world.RunID(),
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

func setup(ctx context.Context, scenario *Scenario) (*Harness, error) {
	src, filename := scenario.Source, scenario.Name+".cue"
	if scenario.Trees != "" {
		data, err := os.ReadFile(scenario.Trees)
		if err != nil {
			return nil, fmt.Errorf("read trees: %w", err)
		}
		src, filename = string(data), scenario.Trees
	}

	prog, err := compiler.CompileString(src, filename)
	if err != nil {
		return nil, fmt.Errorf("compile trees: %w", err)
	}
	if findings := compiler.Validate(prog); compiler.HasErrors(findings) {
		msgs := make([]string, 0, len(findings))
		for _, f := range findings {
			if f.Severity == compiler.SeverityError {
				msgs = append(msgs, f.Error())
			}
		}
		return nil, fmt.Errorf("validate trees: %s", strings.Join(msgs, "; "))
	}

	h := &Harness{
		scenario: scenario,
		clock:    testutil.NewManualClock(Start),
		sim:      gpio.NewSim(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
		trace:    &traceRecorder{start: Start, events: []TraceEvent{}},
	}

	arenas, err := prog.Build(compiler.WithClock(h.clock))
	if err != nil {
		return nil, fmt.Errorf("build trees: %w", err)
	}

	h.store, err = store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}

	for pin, level := range scenario.Pins {
		h.sim.Set(pin, level)
	}
	h.world = world.New(
		world.WithDriver(h.sim),
		world.WithLogger(h.logger),
		world.WithRunID("scenario-"+scenario.Name),
		world.WithPID(0),
	)
	if err := applyState(h.world, scenario.State); err != nil {
		h.close()
		return nil, fmt.Errorf("seed state: %w", err)
	}

	h.engine = engine.New(h.world, arenas,
		engine.WithClock(h.clock),
		engine.WithLogger(h.logger),
		engine.WithObserver(h.trace),
		engine.WithJournal(h.store),
	)
	if err := h.engine.Initialize(ctx); err != nil {
		h.close()
		return nil, err
	}
	for _, pin := range prog.OutputPins {
		if err := h.world.AddOutputPin(pin, h.clock.Now()); err != nil {
			h.close()
			return nil, err
		}
	}
	return h, nil
}

func (h *Harness) close() {
	if h.world != nil {
		h.world.Close()
	}
	if h.store != nil {
		h.store.Close()
	}
}

func (h *Harness) tickLen() time.Duration {
	if h.scenario.Tick > 0 {
		return h.scenario.Tick
	}
	return DefaultTick
}

func (h *Harness) runStep(ctx context.Context, index int, step Step, result *Result) error {
	h.clock.Advance(step.Advance)
	if err := applyState(h.world, step.Set); err != nil {
		return err
	}
	for pin, level := range step.Pins {
		h.sim.Set(pin, level)
	}

	ticks := step.Ticks
	if ticks == 0 {
		ticks = 1
	}
	mark := len(h.trace.events)
	for i := 0; i < ticks; i++ {
		if err := h.engine.Tick(ctx); err != nil {
			return err
		}
		sctx, cancel := context.WithTimeout(ctx, settleTimeout)
		err := h.engine.Settle(sctx)
		cancel()
		if err != nil {
			return fmt.Errorf("waiting for actions: %w", err)
		}
		h.clock.Advance(h.tickLen())
	}

	if step.Expect != nil {
		for _, msg := range h.checkExpect(step.Expect, h.trace.events[mark:]) {
			result.AddError(fmt.Sprintf("step %d: %s", index, msg))
		}
	}
	return nil
}

func (h *Harness) checkExpect(exp *Expect, events []TraceEvent) []string {
	var errs []string

	roots := make([]string, 0, len(exp.Paths))
	for root := range exp.Paths {
		roots = append(roots, root)
	}
	sort.Strings(roots)
	for _, root := range roots {
		got, ok := h.engine.ActivePath(root)
		if !ok {
			errs = append(errs, fmt.Sprintf("unknown root %q", root))
			continue
		}
		if want := exp.Paths[root]; !reflect.DeepEqual(got, want) {
			errs = append(errs, fmt.Sprintf("path of %s: expected %v, got %v", root, want, got))
		}
	}

	errs = append(errs, checkState(h.world, exp.State)...)

	pins := make([]int, 0, len(exp.Outputs))
	for pin := range exp.Outputs {
		pins = append(pins, pin)
	}
	sort.Ints(pins)
	for _, pin := range pins {
		snap, ok := h.world.Pin(pin, true)
		if !ok {
			errs = append(errs, fmt.Sprintf("output pin %d is not registered", pin))
			continue
		}
		if want := exp.Outputs[pin]; snap.Current != want {
			errs = append(errs, fmt.Sprintf("output pin %d: expected %t, got %t", pin, want, snap.Current))
		}
	}

	if exp.Fired != nil {
		var fired []string
		for _, ev := range events {
			if ev.Type == EventFire {
				fired = append(fired, ev.Node)
			}
		}
		if len(fired) != len(exp.Fired) || (len(fired) > 0 && !reflect.DeepEqual(fired, exp.Fired)) {
			errs = append(errs, fmt.Sprintf("fired: expected %v, got %v", exp.Fired, fired))
		}
	}
	return errs
}

func (h *Harness) collectFinal(result *Result) {
	for _, key := range h.world.Keys() {
		if strings.HasSuffix(key, "_executed") {
			continue
		}
		if v, ok := h.world.Get(key); ok {
			result.State[key] = state.ToAny(v)
		}
	}
	for _, root := range h.engine.Roots() {
		path, _ := h.engine.ActivePath(root)
		result.Paths[root] = path
	}
}

// applyState writes YAML-decoded values into the world.
func applyState(w *world.World, values map[string]any) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, err := state.FromAny(values[k])
		if err != nil {
			return fmt.Errorf("state %q: %w", k, err)
		}
		w.Set(k, v)
	}
	return nil
}

// checkState compares expected values with the world (subset match).
func checkState(w *world.World, expect map[string]any) []string {
	var errs []string
	keys := make([]string, 0, len(expect))
	for k := range expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		want, err := state.FromAny(expect[k])
		if err != nil {
			errs = append(errs, fmt.Sprintf("state %q: %v", k, err))
			continue
		}
		got, ok := w.Get(k)
		if !ok {
			errs = append(errs, fmt.Sprintf("state %q: expected %s, key missing", k, want))
			continue
		}
		if !state.Equal(got, want) {
			errs = append(errs, fmt.Sprintf("state %q: expected %s, got %s", k, want, got))
		}
	}
	return errs
}
