package condition

import (
	"fmt"
	"time"

	"github.com/roach88/taskdispatch/internal/gpio"
	"github.com/roach88/taskdispatch/internal/state"
)

// Env is the read-only view of the world state that predicates consult.
// Callers hold whatever lock guards the underlying data for the duration
// of an Eval.
type Env interface {
	Lookup(key string) (state.Value, bool)
	Pin(id int, output bool) (gpio.Snapshot, bool)
}

// Eval evaluates c. A nil c is false.
//
// On the first iteration after a move every stateful predicate in c is
// rearmed first, including those a short-circuiting And or Or never
// reaches.
//
// Errors are reserved for infrastructure faults (unknown pin, unbound
// predicate). Logical "not satisfied" is always (false, nil).
func Eval(c Condition, env Env, rt RunningTree, cells *Cells, now time.Time) (bool, error) {
	if rt.FirstIterationAfterMove {
		Rearm(c, rt, cells, now)
	}
	return eval(c, env, rt, cells, now)
}

// Rearm resets the edge and delay bookkeeping of every stateful predicate
// in c. Literals always restart their delay. Pins restart it unless the
// node is active and was not returned to from a child, so a delay keeps
// measuring from context entry.
func Rearm(c Condition, rt RunningTree, cells *Cells, now time.Time) {
	switch v := c.(type) {
	case *Literal:
		if cell, ok := cells.cell(v.slot); ok {
			cell.ArmedAt = now
			cell.Armed = true
			cell.Fired = false
		}
	case *PinEquals:
		if cell, ok := cells.cell(v.slot); ok {
			cell.Fired = false
			if !rt.CurrentlyActive || rt.MovedInFromBack || !cell.Armed {
				cell.ArmedAt = now
				cell.Armed = true
			}
		}
	case *And:
		for _, child := range v.Children {
			Rearm(child, rt, cells, now)
		}
	case *Or:
		for _, child := range v.Children {
			Rearm(child, rt, cells, now)
		}
	case *Not:
		Rearm(v.Inner, rt, cells, now)
	}
}

func eval(c Condition, env Env, rt RunningTree, cells *Cells, now time.Time) (bool, error) {
	switch v := c.(type) {
	case nil:
		return false, nil
	case *Literal:
		return evalLiteral(v, cells, now)
	case *StateEquals:
		got, ok := env.Lookup(v.Key)
		if !ok {
			return false, nil
		}
		return state.Equal(got, v.Value), nil
	case *PinEquals:
		return evalPin(v, env, cells, now)
	case *Direction:
		if v.OnReturn {
			return rt.MovedInFromBack, nil
		}
		return !rt.MovedInFromBack, nil
	case *And:
		for _, child := range v.Children {
			ok, err := eval(child, env, rt, cells, now)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case *Or:
		for _, child := range v.Children {
			ok, err := eval(child, env, rt, cells, now)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case *Not:
		if v.Inner == nil {
			return false, nil
		}
		ok, err := eval(v.Inner, env, rt, cells, now)
		if err != nil {
			return false, err
		}
		return !ok, nil
	default:
		return false, &TriggerError{Code: ErrCodeInvalidCondition, Message: fmt.Sprintf("unknown condition type %T", c)}
	}
}

func evalLiteral(l *Literal, cells *Cells, now time.Time) (bool, error) {
	cell, ok := cells.cell(l.slot)
	if !ok {
		return false, &TriggerError{Code: ErrCodeUnbound, Message: "literal condition has no bookkeeping slot"}
	}

	if l.Delay > 0 && cell.Armed && now.Sub(cell.ArmedAt) < l.Delay {
		return false, nil
	}
	if l.Edge && cell.Fired {
		return false, nil
	}
	cell.Fired = true
	return true, nil
}

func evalPin(p *PinEquals, env Env, cells *Cells, now time.Time) (bool, error) {
	snap, ok := env.Pin(p.Pin, p.Output)
	if !ok {
		kind := "input"
		if p.Output {
			kind = "output"
		}
		return false, &TriggerError{
			Code:    ErrCodeUnknownPin,
			Message: fmt.Sprintf("pin not found in %s pin state", kind),
			Pin:     p.Pin,
		}
	}
	cell, ok := cells.cell(p.slot)
	if !ok {
		return false, &TriggerError{Code: ErrCodeUnbound, Message: "pin condition has no bookkeeping slot"}
	}

	since := snap.LastChange
	if cell.Armed && cell.ArmedAt.After(since) {
		since = cell.ArmedAt
	}

	if snap.Current != p.State || now.Sub(since) < p.Delay {
		cell.Fired = false
		return false, nil
	}
	if p.Edge && cell.Fired {
		return false, nil
	}
	cell.Fired = true
	return true, nil
}
