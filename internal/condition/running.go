package condition

// RunningTree describes where in the active path a predicate is evaluated.
type RunningTree struct {
	// MovedInFromBack is true when control returned to this node from a
	// child that exited.
	MovedInFromBack bool

	// FirstIterationAfterMove is true on the tick the active path changed.
	// It rearms edge and delay bookkeeping.
	FirstIterationAfterMove bool

	// CurrentlyActive is true only for the node at the top of the active
	// path. Children evaluated beneath it see false.
	CurrentlyActive bool
}

// NewRunningTree returns the record for a freshly seeded active path.
func NewRunningTree() RunningTree {
	return RunningTree{FirstIterationAfterMove: true, CurrentlyActive: true}
}

// ForChild derives the record used to evaluate a child of the active node.
func (rt RunningTree) ForChild() RunningTree {
	return RunningTree{
		FirstIterationAfterMove: rt.FirstIterationAfterMove,
	}
}
