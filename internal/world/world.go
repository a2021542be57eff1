package world

import (
	"errors"
	"log/slog"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/taskdispatch/internal/condition"
	"github.com/roach88/taskdispatch/internal/display"
	"github.com/roach88/taskdispatch/internal/gpio"
	"github.com/roach88/taskdispatch/internal/state"
)

// NeverExecuted is the "<name>_executed" value of a node that has not
// fired yet.
const NeverExecuted = state.Number(-1)

var (
	// ErrUnknownPin is wrapped by IOError when a pin was never registered.
	ErrUnknownPin = errors.New("pin not registered")

	// ErrNoDisplay is wrapped by IOError when no display socket is configured.
	ErrNoDisplay = errors.New("no display configured")
)

// ExecutedKey returns the state key holding name's last execution time.
func ExecutedKey(name string) string {
	return name + "_executed"
}

type pin struct {
	snap gpio.Snapshot
	in   gpio.InputLine
	out  gpio.OutputLine
}

// World is the shared state. The zero value is not usable; call New.
type World struct {
	mu      sync.RWMutex
	state   map[string]state.Value
	inputs  map[int]*pin
	outputs map[int]*pin

	driver      gpio.Driver
	displayPath string
	display     *display.Client

	logger *slog.Logger
	pid    int
	runID  string
}

// Option configures a World.
type Option func(*World)

// WithDriver sets the pin driver. Defaults to the Linux sysfs driver.
func WithDriver(d gpio.Driver) Option {
	return func(w *World) {
		w.driver = d
	}
}

// WithLogger sets the logger handed to actions. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(w *World) {
		w.logger = l
	}
}

// WithDisplay sets the display driver socket. The connection is opened by
// Initialize and reopened on demand by Display.
func WithDisplay(socketPath string) Option {
	return func(w *World) {
		w.displayPath = socketPath
	}
}

// WithRunID overrides the generated UUIDv7 run id.
func WithRunID(id string) Option {
	return func(w *World) {
		w.runID = id
	}
}

// WithPID overrides the process id used in dumps and dump file names.
func WithPID(pid int) Option {
	return func(w *World) {
		w.pid = pid
	}
}

// New returns an empty world.
func New(opts ...Option) *World {
	w := &World{
		state:   make(map[string]state.Value),
		inputs:  make(map[int]*pin),
		outputs: make(map[int]*pin),
		pid:     os.Getpid(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.driver == nil {
		w.driver = gpio.NewSysfs()
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.runID == "" {
		w.runID = uuid.Must(uuid.NewV7()).String()
	}
	return w
}

// Initialize registers everything the trees need before the first tick:
// state keys get their declared default if absent, pins are opened once,
// every name gets "<name>_executed" = -1, and the display (if configured)
// is connected. Pins opened here record now as their last change. Any open
// failure is returned as an IOError.
func (w *World) Initialize(reqs []condition.Requirement, names []string, now time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, req := range reqs {
		switch req.Kind {
		case condition.RequireState:
			if _, ok := w.state[req.Key]; !ok {
				def := req.Default
				if def == nil {
					def = state.String("")
				}
				w.state[req.Key] = def
				w.logger.Debug("state key registered", "key", req.Key, "default", def.String())
			}
		case condition.RequirePin:
			var err error
			if req.Output {
				err = w.openOutput(req.Pin, now)
			} else {
				err = w.openInput(req.Pin, now)
			}
			if err != nil {
				return err
			}
		}
	}

	for _, name := range names {
		key := ExecutedKey(name)
		if _, ok := w.state[key]; !ok {
			w.state[key] = NeverExecuted
		}
	}

	if w.displayPath != "" && w.display == nil {
		client, err := display.Dial(w.displayPath, true)
		if err != nil {
			return &IOError{Op: "open display", Pin: -1, Err: err}
		}
		w.display = client
	}
	return nil
}

// AddOutputPin opens an output pin no condition refers to, so actions can
// command it. Opening an already registered pin is a no-op.
func (w *World) AddOutputPin(id int, now time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.openOutput(id, now)
}

func (w *World) openOutput(id int, now time.Time) error {
	if _, ok := w.outputs[id]; ok {
		return nil
	}
	line, err := w.driver.OpenOutput(id)
	if err != nil {
		return &IOError{Op: "open output", Pin: id, Err: err}
	}
	if err := line.Write(false); err != nil {
		line.Close()
		return &IOError{Op: "reset output", Pin: id, Err: err}
	}
	w.outputs[id] = &pin{out: line, snap: gpio.Snapshot{LastChange: now}}
	w.logger.Debug("output pin registered", "pin", id)
	return nil
}

func (w *World) openInput(id int, now time.Time) error {
	if _, ok := w.inputs[id]; ok {
		return nil
	}
	line, err := w.driver.OpenInput(id)
	if err != nil {
		return &IOError{Op: "open input", Pin: id, Err: err}
	}
	active, err := line.Read()
	if err != nil {
		line.Close()
		return &IOError{Op: "read input", Pin: id, Err: err}
	}
	w.inputs[id] = &pin{in: line, snap: gpio.Snapshot{Current: active, Last: active, LastChange: now}}
	w.logger.Debug("input pin registered", "pin", id, "active", active)
	return nil
}

// Refresh samples every input pin. A pin whose level changed gets
// LastChange = now. Read failures are logged and leave the snapshot as is.
func (w *World) Refresh(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for id, p := range w.inputs {
		active, err := p.in.Read()
		if err != nil {
			w.logger.Warn("input pin read failed", "pin", id, "error", err)
			continue
		}
		p.snap.Last = p.snap.Current
		p.snap.Current = active
		if p.snap.Current != p.snap.Last {
			p.snap.LastChange = now
		}
	}
}

// CommandPin drives output pin id. The line is written and the snapshot
// stamped only when the level actually changes.
func (w *World) CommandPin(id int, active bool, now time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.outputs[id]
	if !ok {
		return &IOError{Op: "command output", Pin: id, Err: ErrUnknownPin}
	}
	if p.snap.Current == active {
		return nil
	}
	if err := p.out.Write(active); err != nil {
		return &IOError{Op: "command output", Pin: id, Err: err}
	}
	p.snap.Last = p.snap.Current
	p.snap.Current = active
	p.snap.LastChange = now
	return nil
}

// Lookup returns the value stored under key.
func (w *World) Lookup(key string) (state.Value, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	v, ok := w.state[key]
	return v, ok
}

// Get is Lookup.
func (w *World) Get(key string) (state.Value, bool) {
	return w.Lookup(key)
}

// Set stores v under key. A nil v deletes the key.
func (w *World) Set(key string, v state.Value) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if v == nil {
		delete(w.state, key)
		return
	}
	w.state[key] = v
}

// Keys returns the state keys in sorted order.
func (w *World) Keys() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	keys := make([]string, 0, len(w.state))
	for k := range w.state {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Pin returns the snapshot of an input (output=false) or output pin.
func (w *World) Pin(id int, output bool) (gpio.Snapshot, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	pins := w.inputs
	if output {
		pins = w.outputs
	}
	p, ok := pins[id]
	if !ok {
		return gpio.Snapshot{}, false
	}
	return p.snap, true
}

// Executed returns when name last fired. It reports false when the key is
// missing, not a number, or holds the never-executed sentinel.
func (w *World) Executed(name string) (time.Time, bool) {
	v, ok := w.Lookup(ExecutedKey(name))
	if !ok {
		return time.Time{}, false
	}
	n, isNumber := v.(state.Number)
	if !isNumber || n < 0 {
		return time.Time{}, false
	}
	us := math.Round(float64(n) * 1e6)
	return time.UnixMicro(int64(us)), true
}

// MarkExecuted records now as name's execution time, in unix seconds
// truncated to the microsecond. A float64 holds that precision exactly for
// current dates, and truncation keeps the stamp at or before now so the
// re-fire gate opens on the first tick a full interval later.
func (w *World) MarkExecuted(name string, now time.Time) {
	w.Set(ExecutedKey(name), state.Number(float64(now.UnixMicro())/1e6))
}

// Display returns the display client, reconnecting if a previous
// connection was dropped.
func (w *World) Display() (*display.Client, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.display != nil {
		return w.display, nil
	}
	if w.displayPath == "" {
		return nil, &IOError{Op: "display", Pin: -1, Err: ErrNoDisplay}
	}
	client, err := display.Dial(w.displayPath, true)
	if err != nil {
		return nil, &IOError{Op: "open display", Pin: -1, Err: err}
	}
	w.display = client
	return client, nil
}

// PrepareDisplay optionally clears the display, then writes msg at the
// top-left corner. An empty msg only clears.
func (w *World) PrepareDisplay(msg string, clear bool) error {
	client, err := w.Display()
	if err != nil {
		return err
	}
	if clear {
		if err := client.Clear(); err != nil {
			w.dropDisplay(client)
			return err
		}
	}
	if msg == "" {
		return nil
	}
	if err := client.Move(0, 0); err != nil {
		w.dropDisplay(client)
		return err
	}
	if err := client.Buffer(msg, true); err != nil {
		w.dropDisplay(client)
		return err
	}
	return nil
}

// dropDisplay forgets a client whose reconnect failed, so the next
// Display call dials afresh.
func (w *World) dropDisplay(client *display.Client) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.display == client {
		client.Close()
		w.display = nil
	}
}

// Logger returns the logger actions should use.
func (w *World) Logger() *slog.Logger { return w.logger }

// PID returns the process id.
func (w *World) PID() int { return w.pid }

// RunID returns this run's UUIDv7.
func (w *World) RunID() string { return w.runID }

// Close releases every pin line and the display connection.
func (w *World) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	for id, p := range w.inputs {
		if err := p.in.Close(); err != nil {
			errs = append(errs, &IOError{Op: "close input", Pin: id, Err: err})
		}
	}
	for id, p := range w.outputs {
		if err := p.out.Close(); err != nil {
			errs = append(errs, &IOError{Op: "close output", Pin: id, Err: err})
		}
	}
	if w.display != nil {
		if err := w.display.Close(); err != nil {
			errs = append(errs, &IOError{Op: "close display", Pin: -1, Err: err})
		}
		w.display = nil
	}
	w.inputs = make(map[int]*pin)
	w.outputs = make(map[int]*pin)
	return errors.Join(errs...)
}
