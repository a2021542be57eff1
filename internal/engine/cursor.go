package engine

import (
	"github.com/roach88/taskdispatch/internal/condition"
	"github.com/roach88/taskdispatch/internal/tree"
)

// transition is what evaluating the top of an active path yields.
type transition int

const (
	stay transition = iota
	moveOut
	moveTo
)

// decision is a transition plus, for moveTo, the arena index to push.
type decision struct {
	kind   transition
	target int
}

// cursor is one root's active path and its condition bookkeeping.
//
// INVARIANTS:
//   - stack is never empty; stack[0] is the root (index 0)
//   - rt.CurrentlyActive is always true: rt describes the top of stack
//   - cells is touched only by the scheduler goroutine
type cursor struct {
	arena *tree.Arena
	stack []int
	rt    condition.RunningTree
	cells *condition.Cells
}

func newCursor(arena *tree.Arena) *cursor {
	return &cursor{
		arena: arena,
		stack: []int{0},
		rt:    condition.NewRunningTree(),
		cells: condition.NewCells(arena.Slots()),
	}
}

func (c *cursor) top() int {
	return c.stack[len(c.stack)-1]
}

// settle ends this tick's walk. Both direction flags hold for one
// evaluation only.
func (c *cursor) settle() {
	c.rt.FirstIterationAfterMove = false
	c.rt.MovedInFromBack = false
}

func (c *cursor) push(idx int) {
	c.stack = append(c.stack, idx)
	c.rt = condition.RunningTree{FirstIterationAfterMove: true, CurrentlyActive: true}
}

// pop leaves the top context. It reports false when the top was the root,
// in which case the path is re-seeded instead.
func (c *cursor) pop() bool {
	if len(c.stack) == 1 {
		c.rt = condition.NewRunningTree()
		return false
	}
	c.stack = c.stack[:len(c.stack)-1]
	c.rt = condition.RunningTree{MovedInFromBack: true, FirstIterationAfterMove: true, CurrentlyActive: true}
	return true
}

func (c *cursor) path() []string {
	return c.arena.Path(c.stack)
}
