package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/taskdispatch/internal/condition"
	"github.com/roach88/taskdispatch/internal/store"
	"github.com/roach88/taskdispatch/internal/tree"
	"github.com/roach88/taskdispatch/internal/world"
)

// DefaultTickInterval is the pause between ticks.
const DefaultTickInterval = 250 * time.Millisecond

// DefaultMaxTransitionsPerTick bounds how many MoveTo/MoveOut steps one
// root may take in a single tick. Trees whose conditions flip-flop hit the
// bound instead of spinning forever.
const DefaultMaxTransitionsPerTick = 64

// Journal records finished actions and the run they belong to.
// *store.Store implements it.
type Journal interface {
	RecordRun(ctx context.Context, run store.Run) error
	RecordExecution(ctx context.Context, ex store.Execution) error
}

// Engine is the dispatcher.
//
// Thread-safety model:
//   - Tick(), Run(), Settle(), Initialize(): one goroutine at a time
//   - Stop(), ActivePath(), Roots(): safe from any goroutine
//
// INVARIANTS:
//   - roots order NEVER changes after construction
//   - inflight holds a name exactly while its action goroutine has not
//     been reaped
type Engine struct {
	world  *world.World
	roots  []*cursor
	clock  Clock
	logger *slog.Logger

	interval       time.Duration
	maxTransitions int
	observer       observers
	journal        Journal

	// Scheduler-only state.
	inflight    map[string]time.Time
	completions *completionQueue

	// mu guards cursor stacks for ActivePath readers.
	mu sync.Mutex

	stop     chan struct{}
	stopOnce sync.Once
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithClock sets the clock. Default: SystemClock.
func WithClock(c Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithTickInterval sets the pause between ticks in Run.
//
// Default: 250ms (DefaultTickInterval)
func WithTickInterval(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.interval = d
	}
}

// WithLogger sets the scheduler's logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithObserver adds an observer. May be given more than once.
func WithObserver(o Observer) EngineOption {
	return func(e *Engine) {
		e.observer = append(e.observer, o)
	}
}

// WithMaxTransitionsPerTick bounds path changes per root per tick.
//
// Default: 64 (DefaultMaxTransitionsPerTick)
func WithMaxTransitionsPerTick(n int) EngineOption {
	return func(e *Engine) {
		e.maxTransitions = n
	}
}

// WithJournal records every finished action to j.
func WithJournal(j Journal) EngineOption {
	return func(e *Engine) {
		e.journal = j
	}
}

// New creates an Engine over w and the given trees.
//
// Roots are ticked in the order given. Call Initialize before the first
// Tick so the world holds every key and pin the trees refer to.
func New(w *world.World, roots []*tree.Arena, opts ...EngineOption) *Engine {
	e := &Engine{
		world:          w,
		clock:          SystemClock{},
		logger:         slog.Default(),
		interval:       DefaultTickInterval,
		maxTransitions: DefaultMaxTransitionsPerTick,
		inflight:       make(map[string]time.Time),
		completions:    newCompletionQueue(),
		stop:           make(chan struct{}),
	}
	for _, arena := range roots {
		e.roots = append(e.roots, newCursor(arena))
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Initialize registers every state key, pin and execution stamp the trees
// need, then records the run in the journal. An error here is fatal: the
// loop must not start with missing resources.
func (e *Engine) Initialize(ctx context.Context) error {
	var (
		reqs  []condition.Requirement
		names []string
	)
	for _, c := range e.roots {
		reqs = append(reqs, c.arena.Requirements()...)
		names = append(names, c.arena.Names()...)
	}
	now := e.clock.Now()
	if err := e.world.Initialize(reqs, names, now); err != nil {
		return fmt.Errorf("initialize world: %w", err)
	}

	if e.journal != nil {
		run := store.Run{
			ID:        e.world.RunID(),
			PID:       e.world.PID(),
			StartedAt: now,
			Roots:     e.Roots(),
		}
		if err := e.journal.RecordRun(ctx, run); err != nil {
			return fmt.Errorf("journal run: %w", err)
		}
	}

	e.logger.Debug("environment initialized",
		"roots", len(e.roots),
		"state_keys", len(e.world.Keys()),
		"run_id", e.world.RunID(),
	)
	return nil
}

// Roots returns the root names in tick order.
func (e *Engine) Roots() []string {
	out := make([]string, len(e.roots))
	for i, c := range e.roots {
		out[i] = c.arena.Name()
	}
	return out
}

// ActivePath returns the active path of the named root, root first.
func (e *Engine) ActivePath(root string) ([]string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.roots {
		if c.arena.Name() == root {
			return c.path(), true
		}
	}
	return nil, false
}

// InFlight returns how many background actions have not been reaped.
// Scheduler goroutine only.
func (e *Engine) InFlight() int {
	return len(e.inflight)
}

// Tick runs one scheduling pass: refresh pins, walk every root, reap
// finished actions.
func (e *Engine) Tick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := e.clock.Now()
	e.world.Refresh(now)

	e.mu.Lock()
	for _, c := range e.roots {
		e.walk(ctx, c, now)
	}
	e.mu.Unlock()

	e.reap(ctx)
	return nil
}

// Run starts the polling loop.
// Blocks until context is cancelled or Stop() is called.
//
// Actions still running when Run returns keep running; call Settle to
// wait for them.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting",
		"roots", len(e.roots),
		"interval", e.interval,
		"run_id", e.world.RunID(),
	)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping: context cancelled")
			return ctx.Err()

		case <-e.stop:
			e.logger.Info("engine stopping: stop requested")
			return nil

		case <-timer.C:
			if err := e.Tick(ctx); err != nil {
				continue
			}
			timer.Reset(e.interval)
		}
	}
}

// Stop makes Run return after the current tick.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stop) })
}

// Settle waits until every background action has finished and been
// reaped, or ctx is done.
func (e *Engine) Settle(ctx context.Context) error {
	for {
		e.reap(ctx)
		if len(e.inflight) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.completions.Wait():
		}
	}
}
