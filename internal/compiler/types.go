package compiler

import (
	"log/slog"
	"time"

	"cuelang.org/go/cue/token"

	"github.com/roach88/taskdispatch/internal/condition"
	"github.com/roach88/taskdispatch/internal/state"
)

// Program is a compiled tree definition file set: every root tree in
// declaration order plus the output pins declared outside any condition.
type Program struct {
	Trees      []NodeSpec
	OutputPins []int
}

// NodeKind distinguishes tasks from contexts.
type NodeKind int

const (
	KindTask NodeKind = iota + 1
	KindContext
)

func (k NodeKind) String() string {
	switch k {
	case KindTask:
		return "task"
	case KindContext:
		return "context"
	default:
		return "unknown"
	}
}

// NodeSpec is one declared node. Conditions are unbound; tree.Build binds
// them.
type NodeSpec struct {
	Kind NodeKind
	Name string
	When condition.Condition

	// Task only.
	Every time.Duration
	Do    []ActionSpec

	// Context only.
	Stay     condition.Condition
	Children []NodeSpec
	OnExit   *ExitSpec

	Pos token.Pos
}

// ExitSpec is a context's exit action.
type ExitSpec struct {
	Name string
	Do   []ActionSpec
}

// ActionKind names a declarative action step.
type ActionKind string

const (
	ActionSet     ActionKind = "set"
	ActionPin     ActionKind = "pin"
	ActionDisplay ActionKind = "display"
	ActionLog     ActionKind = "log"
)

// ActionSpec is one step of a task's action. Steps run in order; the first
// failing step ends the action.
type ActionSpec struct {
	Kind ActionKind

	// set
	Key   string
	Value state.Value

	// pin
	Pin    int
	Active bool

	// display
	Text      string
	Clear     bool
	At        *Position
	Backlight *bool

	// log
	Message string
	Level   slog.Level

	Pos token.Pos
}

// Position is a display cursor position.
type Position struct {
	X, Y int
}

// Walk calls fn for n and every node below it, parents first.
func (n *NodeSpec) Walk(fn func(*NodeSpec)) {
	fn(n)
	for i := range n.Children {
		n.Children[i].Walk(fn)
	}
}
