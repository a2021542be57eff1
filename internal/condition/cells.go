package condition

import "time"

// Cell is the edge/delay bookkeeping of one stateful predicate instance.
type Cell struct {
	ArmedAt time.Time
	Armed   bool
	Fired   bool
}

// Cells holds one Cell per bound slot. It is owned by a single goroutine.
type Cells struct {
	cells []Cell
}

// NewCells allocates bookkeeping for n slots.
func NewCells(n int) *Cells {
	return &Cells{cells: make([]Cell, n)}
}

// Len returns the number of slots.
func (c *Cells) Len() int {
	if c == nil {
		return 0
	}
	return len(c.cells)
}

// At returns a copy of the cell at slot, for inspection.
func (c *Cells) At(slot int) Cell {
	return c.cells[slot]
}

// Reset clears every cell.
func (c *Cells) Reset() {
	for i := range c.cells {
		c.cells[i] = Cell{}
	}
}

func (c *Cells) cell(slot int) (*Cell, bool) {
	if c == nil || slot < 0 || slot >= len(c.cells) {
		return nil, false
	}
	return &c.cells[slot], true
}

// Slots hands out bookkeeping slot numbers during Bind.
type Slots struct {
	n int
}

// Count returns how many slots have been handed out.
func (s *Slots) Count() int { return s.n }

func (s *Slots) next() int {
	slot := s.n
	s.n++
	return slot
}
