package tree

import (
	"context"
	"time"

	"github.com/roach88/taskdispatch/internal/condition"
	"github.com/roach88/taskdispatch/internal/world"
)

// Action is the work a Task performs when its condition fires.
// It runs on its own goroutine with shared access to the world state.
type Action func(ctx context.Context, w *world.World) error

// Node is a sealed interface over *Task and *Context.
type Node interface {
	// NodeName is the unique name used for de-duplication and the
	// "<name>_executed" timestamp.
	NodeName() string

	// MinDelay is the minimum re-fire interval. Contexts return 0.
	MinDelay() time.Duration

	// Entry is the condition that fires a task or enters a context.
	Entry() condition.Condition

	// Stay is the condition that keeps a context active. It falls back to
	// Entry when unset. Tasks return their entry condition.
	Stay() condition.Condition

	node()
}

// Task is a leaf node.
type Task struct {
	name   string
	when   condition.Condition
	action Action
	every  time.Duration
}

// NewTask returns a task with no condition and no action.
func NewTask(name string) *Task {
	return &Task{name: name}
}

// When sets the entry condition.
func (t *Task) When(c condition.Condition) *Task {
	t.when = c
	return t
}

// Do sets the action.
func (t *Task) Do(a Action) *Task {
	t.action = a
	return t
}

// Every sets the minimum re-fire interval.
func (t *Task) Every(d time.Duration) *Task {
	t.every = d
	return t
}

func (t *Task) node() {}

// NodeName implements Node.
func (t *Task) NodeName() string { return t.name }

// MinDelay implements Node.
func (t *Task) MinDelay() time.Duration { return t.every }

// Entry implements Node.
func (t *Task) Entry() condition.Condition { return t.when }

// Stay implements Node.
func (t *Task) Stay() condition.Condition { return t.when }

// Action returns the task's action.
func (t *Task) Action() Action { return t.action }

// Context is a container node.
type Context struct {
	name     string
	when     condition.Condition
	stay     condition.Condition
	children []Node
	onExit   *Task
}

// NewContext returns an empty context.
func NewContext(name string) *Context {
	return &Context{name: name}
}

// Root returns a context that is always entered and never left, holding
// children. Every root task tree handed to the dispatcher is one of these.
func Root(name string, children ...Node) *Context {
	return NewContext(name).
		When(condition.Always()).
		StayWhile(condition.Always()).
		Add(children...)
}

// When sets the entry condition.
func (c *Context) When(cond condition.Condition) *Context {
	c.when = cond
	return c
}

// StayWhile sets the condition that keeps the context active.
func (c *Context) StayWhile(cond condition.Condition) *Context {
	c.stay = cond
	return c
}

// Add appends children in evaluation order.
func (c *Context) Add(children ...Node) *Context {
	c.children = append(c.children, children...)
	return c
}

// OnExit sets the task whose action runs when the context is left.
// The task's own condition and interval are ignored.
func (c *Context) OnExit(t *Task) *Context {
	c.onExit = t
	return c
}

func (c *Context) node() {}

// NodeName implements Node.
func (c *Context) NodeName() string { return c.name }

// MinDelay implements Node.
func (c *Context) MinDelay() time.Duration { return 0 }

// Entry implements Node.
func (c *Context) Entry() condition.Condition { return c.when }

// Stay implements Node.
func (c *Context) Stay() condition.Condition {
	if c.stay == nil {
		return c.when
	}
	return c.stay
}

// Children returns the child nodes in evaluation order.
func (c *Context) Children() []Node { return c.children }

// ExitTask returns the exit task, or nil.
func (c *Context) ExitTask() *Task { return c.onExit }
