package condition

import (
	"time"

	"github.com/roach88/taskdispatch/internal/state"
)

// Condition is a sealed interface over the predicate variants.
type Condition interface {
	condition()
}

// unbound marks a stateful predicate that has not been through Bind.
const unbound = -1

// Literal is true unless its delay since rearm has not elapsed, or it is in
// edge mode and has already fired since rearm.
type Literal struct {
	Delay time.Duration
	Edge  bool
	slot  int
}

func (*Literal) condition() {}

// Always returns a Literal with no delay and no edge mode.
func Always() *Literal {
	return &Literal{slot: unbound}
}

// After sets the minimum time since rearm before the literal is true.
func (l *Literal) After(d time.Duration) *Literal {
	l.Delay = d
	return l
}

// OnEdge makes the literal fire at most once per rearm.
func (l *Literal) OnEdge() *Literal {
	l.Edge = true
	return l
}

// StateEquals is true when application-state Key exists and equals Value.
type StateEquals struct {
	Key   string
	Value state.Value
}

func (*StateEquals) condition() {}

// StateIs returns a StateEquals predicate.
func StateIs(key string, value state.Value) *StateEquals {
	return &StateEquals{Key: key, Value: value}
}

// PinEquals compares a digital pin against State.
//
// Delay is measured from the later of the node's rearm time and the pin's
// last physical change.
type PinEquals struct {
	Pin    int
	Output bool
	State  bool
	Delay  time.Duration
	Edge   bool
	slot   int
}

func (*PinEquals) condition() {}

// InputPin returns a predicate that is true while input pin is active.
func InputPin(pin int) *PinEquals {
	return &PinEquals{Pin: pin, State: true, slot: unbound}
}

// OutputPin returns a predicate that is true while output pin is active.
func OutputPin(pin int) *PinEquals {
	return &PinEquals{Pin: pin, Output: true, State: true, slot: unbound}
}

// WhenLow makes the predicate match the inactive state instead.
func (p *PinEquals) WhenLow() *PinEquals {
	p.State = false
	return p
}

// After sets the minimum time the pin must hold its state.
func (p *PinEquals) After(d time.Duration) *PinEquals {
	p.Delay = d
	return p
}

// OnEdge makes the predicate fire at most once per rearm.
func (p *PinEquals) OnEdge() *PinEquals {
	p.Edge = true
	return p
}

// Direction is true when the evaluated node was reached in the configured
// direction: back up from an exiting child (OnReturn) or on the way down.
type Direction struct {
	OnReturn bool
}

func (*Direction) condition() {}

// OnReturn returns a Direction that matches arrival from an exiting child.
func OnReturn() *Direction { return &Direction{OnReturn: true} }

// OnDescent returns a Direction that matches arrival from above.
func OnDescent() *Direction { return &Direction{OnReturn: false} }

// And is true when every child is true. It stops at the first false child.
type And struct {
	Children []Condition
}

func (*And) condition() {}

// All returns an And over conds.
func All(conds ...Condition) *And {
	return &And{Children: conds}
}

// With appends children.
func (a *And) With(conds ...Condition) *And {
	a.Children = append(a.Children, conds...)
	return a
}

// Or is true when any child is true. It stops at the first true child.
type Or struct {
	Children []Condition
}

func (*Or) condition() {}

// Any returns an Or over conds.
func Any(conds ...Condition) *Or {
	return &Or{Children: conds}
}

// With appends children.
func (o *Or) With(conds ...Condition) *Or {
	o.Children = append(o.Children, conds...)
	return o
}

// Not negates Inner. A nil Inner behaves as Always, so Not{} is false.
type Not struct {
	Inner Condition
}

func (*Not) condition() {}

// Negate returns a Not over c.
func Negate(c Condition) *Not {
	return &Not{Inner: c}
}
