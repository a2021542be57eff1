package tree

import (
	"fmt"

	"github.com/roach88/taskdispatch/internal/condition"
)

// Bound is one arena entry: a node plus its position and bound conditions.
type Bound struct {
	Node Node

	// Parent is the index of the enclosing context, -1 for the root.
	Parent int

	// Children holds child indices in evaluation order. Empty for tasks.
	Children []int

	// Entry and Stay are the slot-bound copies of the node's conditions.
	// When a context has no stay condition, Stay is the same value as
	// Entry and shares its bookkeeping.
	Entry condition.Condition
	Stay  condition.Condition
}

// Arena is a frozen task tree addressed by stable index.
type Arena struct {
	nodes []Bound
	slots int
	names []string
	reqs  []condition.Requirement
}

// Build validates root and freezes it into an arena. Node names (exit
// tasks included) must be unique within the tree, every task must have an
// action, and every condition must bind.
//
// root is normally a context made with Root; a bare task is also accepted
// and simply fires whenever its condition holds.
func Build(root Node) (*Arena, error) {
	b := &builder{seen: make(map[string]bool)}
	if root == nil {
		return nil, &BuildError{Code: ErrCodeNilNode, Message: "root is nil"}
	}
	if _, err := b.add(root, -1); err != nil {
		return nil, err
	}
	return &Arena{
		nodes: b.nodes,
		slots: b.slots.Count(),
		names: b.names,
		reqs:  b.reqs,
	}, nil
}

type builder struct {
	nodes []Bound
	slots condition.Slots
	seen  map[string]bool
	names []string
	reqs  []condition.Requirement
}

func (b *builder) claim(name string) error {
	if name == "" {
		return &BuildError{Code: ErrCodeEmptyName, Message: "node has no name"}
	}
	if b.seen[name] {
		return &BuildError{Code: ErrCodeDuplicateName, Node: name, Message: "name already used in this tree"}
	}
	b.seen[name] = true
	b.names = append(b.names, name)
	return nil
}

func (b *builder) bind(name, which string, c condition.Condition) (condition.Condition, error) {
	bound, err := condition.Bind(c, &b.slots)
	if err != nil {
		return nil, &BuildError{
			Code:    ErrCodeInvalidCondition,
			Node:    name,
			Message: fmt.Sprintf("%s condition", which),
			Err:     err,
		}
	}
	b.reqs = append(b.reqs, condition.Requirements(bound)...)
	return bound, nil
}

func (b *builder) add(n Node, parent int) (int, error) {
	name := n.NodeName()
	if err := b.claim(name); err != nil {
		return 0, err
	}

	idx := len(b.nodes)
	b.nodes = append(b.nodes, Bound{Node: n, Parent: parent})

	entry, err := b.bind(name, "entry", n.Entry())
	if err != nil {
		return 0, err
	}
	b.nodes[idx].Entry = entry

	switch v := n.(type) {
	case *Task:
		if v.action == nil {
			return 0, &BuildError{Code: ErrCodeMissingAction, Node: name, Message: "task has no action"}
		}
		b.nodes[idx].Stay = entry

	case *Context:
		stay := entry
		if v.stay != nil {
			if stay, err = b.bind(name, "stay", v.stay); err != nil {
				return 0, err
			}
		}
		b.nodes[idx].Stay = stay

		if v.onExit != nil {
			if err := b.claim(v.onExit.name); err != nil {
				return 0, err
			}
			if v.onExit.action == nil {
				return 0, &BuildError{Code: ErrCodeMissingAction, Node: v.onExit.name, Message: "exit task has no action"}
			}
		}

		for _, child := range v.children {
			if child == nil {
				return 0, &BuildError{Code: ErrCodeNilNode, Node: name, Message: "context has a nil child"}
			}
			childIdx, err := b.add(child, idx)
			if err != nil {
				return 0, err
			}
			b.nodes[idx].Children = append(b.nodes[idx].Children, childIdx)
		}
	}
	return idx, nil
}

// Len returns the number of nodes.
func (a *Arena) Len() int { return len(a.nodes) }

// At returns the entry at index i. The root is at 0.
func (a *Arena) At(i int) *Bound { return &a.nodes[i] }

// Name returns the root's name.
func (a *Arena) Name() string { return a.nodes[0].Node.NodeName() }

// Slots returns how many condition cells a cursor over this tree needs.
func (a *Arena) Slots() int { return a.slots }

// Names lists every node and exit-task name in DFS order.
func (a *Arena) Names() []string {
	out := make([]string, len(a.names))
	copy(out, a.names)
	return out
}

// Requirements lists the world-state resources the tree's conditions need.
// Duplicates are kept; the world skips resources it already holds.
func (a *Arena) Requirements() []condition.Requirement {
	out := make([]condition.Requirement, len(a.reqs))
	copy(out, a.reqs)
	return out
}

// Path resolves a stack of indices to node names.
func (a *Arena) Path(stack []int) []string {
	out := make([]string, len(stack))
	for i, idx := range stack {
		out[i] = a.nodes[idx].Node.NodeName()
	}
	return out
}

// Lookup returns the index of the node called name. Exit tasks are not
// arena nodes; use Task to reach them.
func (a *Arena) Lookup(name string) (int, bool) {
	for i := range a.nodes {
		if a.nodes[i].Node.NodeName() == name {
			return i, true
		}
	}
	return 0, false
}

// Task returns the task called name, searching leaf tasks and the exit
// tasks of contexts.
func (a *Arena) Task(name string) (*Task, bool) {
	for i := range a.nodes {
		switch n := a.nodes[i].Node.(type) {
		case *Task:
			if n.NodeName() == name {
				return n, true
			}
		case *Context:
			if exit := n.ExitTask(); exit != nil && exit.NodeName() == name {
				return exit, true
			}
		}
	}
	return nil, false
}
