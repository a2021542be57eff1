package harness

// Trace event types.
const (
	EventTransition = "transition"
	EventFire       = "fire"
)

// TraceEvent is one transition or fire seen during a scenario.
type TraceEvent struct {
	// AtMS is the event time in milliseconds since the scenario start.
	AtMS int64    `json:"at_ms"`
	Type string   `json:"type"`
	Root string   `json:"root"`
	Kind string   `json:"kind,omitempty"`
	Node string   `json:"node"`
	Path []string `json:"path,omitempty"`
	Exit bool     `json:"exit,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every transition and fire in scheduler order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failed expectations and assertions.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Failures lists action errors, sorted. A failing action does not
	// fail the scenario by itself.
	Failures []string `json:"failures,omitempty"`

	// State is the final application state.
	State map[string]any `json:"state,omitempty"`

	// Paths is the final active path of every root.
	Paths map[string][]string `json:"paths,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]any),
		Paths:  make(map[string][]string),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Fired returns the tasks that fired, in order, exit actions included.
func (r *Result) Fired() []string {
	var out []string
	for _, ev := range r.Trace {
		if ev.Type == EventFire {
			out = append(out, ev.Node)
		}
	}
	return out
}
