package harness

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/taskdispatch/internal/state"
	"github.com/roach88/taskdispatch/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, formatEvent(event))
		}
	}

	return buf.String()
}

func formatEvent(ev TraceEvent) string {
	switch ev.Type {
	case EventTransition:
		return fmt.Sprintf("+%dms %s %s %s -> %v", ev.AtMS, ev.Root, ev.Kind, ev.Node, ev.Path)
	case EventFire:
		if ev.Exit {
			return fmt.Sprintf("+%dms %s fire %s (exit)", ev.AtMS, ev.Root, ev.Node)
		}
		return fmt.Sprintf("+%dms %s fire %s", ev.AtMS, ev.Root, ev.Node)
	default:
		return fmt.Sprintf("+%dms %s %s", ev.AtMS, ev.Type, ev.Node)
	}
}

// AssertionContext carries what assertions need beyond the result.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
	RunID string
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for _, a := range assertions {
		if err := evaluateAssertion(result, a, actx); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluateAssertion(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertFired:
		return assertFired(result.Trace, a)
	case AssertFiredOrder:
		return assertFiredOrder(result.Trace, a)
	case AssertFiredCount:
		return assertFiredCount(result.Trace, a)
	case AssertFinalState:
		return assertFinalState(result.State, a)
	case AssertFinalPath:
		return assertFinalPath(result.Paths, a)
	case AssertJournalCount:
		return assertJournalCount(actx, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertFired checks the task fired at least once.
func assertFired(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if ev.Type == EventFire && ev.Node == a.Task {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertFired,
		Expected: fmt.Sprintf("task %s to fire", a.Task),
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertFiredOrder checks tasks first fired in the given order.
// Tasks don't need to be consecutive.
func assertFiredOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, ev := range trace {
		if ev.Type != EventFire {
			continue
		}
		if _, seen := positions[ev.Node]; !seen {
			positions[ev.Node] = i + 1
		}
	}

	for _, task := range a.Tasks {
		if positions[task] == 0 {
			return &AssertionError{
				Type:     AssertFiredOrder,
				Expected: fmt.Sprintf("all tasks fired: %v", a.Tasks),
				Actual:   fmt.Sprintf("missing task: %s", task),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Tasks); i++ {
		prev, curr := a.Tasks[i-1], a.Tasks[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertFiredOrder,
				Expected: fmt.Sprintf("tasks in order: %v", a.Tasks),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertFiredCount checks the task fired exactly Count times.
func assertFiredCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Type == EventFire && ev.Node == a.Task {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertFiredCount,
			Expected: fmt.Sprintf("%d fires of %s", a.Count, a.Task),
			Actual:   fmt.Sprintf("%d fires", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks the final state with subset semantics.
func assertFinalState(final map[string]any, a Assertion) error {
	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		want, err := state.FromAny(a.Expect[key])
		if err != nil {
			return fmt.Errorf("final_state: key %q: %w", key, err)
		}
		raw, ok := final[key]
		if !ok {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("key %q = %s", key, want),
				Actual:   fmt.Sprintf("key %q not present", key),
			}
		}
		got, err := state.FromAny(raw)
		if err != nil || !state.Equal(got, want) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("key %q = %s (%s)", key, want, state.Kind(want)),
				Actual:   fmt.Sprintf("key %q = %v (%T)", key, raw, raw),
			}
		}
	}
	return nil
}

// assertFinalPath checks a root's active path at the end of the run.
func assertFinalPath(paths map[string][]string, a Assertion) error {
	got, ok := paths[a.Root]
	if !ok {
		return &AssertionError{
			Type:     AssertFinalPath,
			Expected: fmt.Sprintf("root %s with path %v", a.Root, a.Path),
			Actual:   "no such root",
		}
	}
	if !reflect.DeepEqual(got, a.Path) {
		return &AssertionError{
			Type:     AssertFinalPath,
			Expected: fmt.Sprintf("%v", a.Path),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

// assertJournalCount checks how many finished runs of a task the journal holds.
func assertJournalCount(actx *AssertionContext, a Assertion) error {
	if actx == nil || actx.Store == nil {
		return fmt.Errorf("journal_count: no journal available")
	}
	ctx := actx.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	execs, err := actx.Store.ReadExecutions(ctx, actx.RunID)
	if err != nil {
		return &AssertionError{
			Type:     AssertJournalCount,
			Expected: fmt.Sprintf("read executions of run %s", actx.RunID),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}

	count := 0
	for _, ex := range execs {
		if ex.Task == a.Task {
			count++
		}
	}
	if count != a.Count {
		return &AssertionError{
			Type:     AssertJournalCount,
			Expected: fmt.Sprintf("%d journaled runs of %s", a.Count, a.Task),
			Actual:   fmt.Sprintf("%d journaled runs", count),
		}
	}
	return nil
}
