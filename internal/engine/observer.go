package engine

import (
	"time"

	"github.com/roach88/taskdispatch/internal/condition"
)

// Observer receives scheduler events. Every method is called on the
// scheduler goroutine and must not block.
type Observer interface {
	OnTransition(TransitionEvent)
	OnFire(FireEvent)
	OnComplete(CompleteEvent)
}

// TransitionKind names a change of a root's active path.
type TransitionKind string

const (
	// TransitionMoveTo pushed a context onto the active path.
	TransitionMoveTo TransitionKind = "move_to"

	// TransitionMoveOut popped a context off the active path.
	TransitionMoveOut TransitionKind = "move_out"

	// TransitionReset re-seeded the active path after the root itself exited.
	TransitionReset TransitionKind = "reset"
)

// TransitionEvent reports one MoveTo or MoveOut.
type TransitionEvent struct {
	Time time.Time
	Root string
	Kind TransitionKind

	// Node is the context entered or left.
	Node string

	// Path is the active path after the transition.
	Path []string

	// State is the running-tree record the new top will be evaluated with.
	State condition.RunningTree
}

// FireEvent reports a task whose condition fired.
type FireEvent struct {
	Time time.Time
	Root string
	Task string
	Exit bool
}

// CompleteEvent reports a finished action. For background actions it is
// delivered when the action is reaped, not when it returns.
type CompleteEvent struct {
	Root     string
	Task     string
	Exit     bool
	Started  time.Time
	Finished time.Time
	Err      error
}

// NopObserver ignores every event. Embed it to implement only some methods.
type NopObserver struct{}

// OnTransition implements Observer.
func (NopObserver) OnTransition(TransitionEvent) {}

// OnFire implements Observer.
func (NopObserver) OnFire(FireEvent) {}

// OnComplete implements Observer.
func (NopObserver) OnComplete(CompleteEvent) {}

// observers fans events out in registration order.
type observers []Observer

func (o observers) OnTransition(ev TransitionEvent) {
	for _, obs := range o {
		obs.OnTransition(ev)
	}
}

func (o observers) OnFire(ev FireEvent) {
	for _, obs := range o {
		obs.OnFire(ev)
	}
}

func (o observers) OnComplete(ev CompleteEvent) {
	for _, obs := range o {
		obs.OnComplete(ev)
	}
}
