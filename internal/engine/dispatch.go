package engine

import (
	"context"
	"time"

	"github.com/roach88/taskdispatch/internal/condition"
	"github.com/roach88/taskdispatch/internal/tree"
)

// walk applies transitions to c until the top of its active path stays.
// Called only from Tick, with e.mu held.
func (e *Engine) walk(ctx context.Context, c *cursor, now time.Time) {
	root := c.arena.Name()

	for steps := 0; ; steps++ {
		if steps >= e.maxTransitions {
			e.logger.Warn("transition limit reached, resuming next tick",
				"root", root,
				"limit", e.maxTransitions,
				"path", c.path(),
			)
			return
		}

		top := c.top()
		d := e.evaluate(ctx, c, top, c.rt, now)

		switch d.kind {
		case stay:
			c.settle()
			return

		case moveOut:
			left := c.arena.At(top).Node.NodeName()
			if !c.pop() {
				e.logger.Debug("root context left, re-seeding", "root", root)
				e.observer.OnTransition(TransitionEvent{
					Time: now, Root: root, Kind: TransitionReset,
					Node: left, Path: c.path(), State: c.rt,
				})
				return
			}
			e.logger.Debug("moving out of context", "root", root, "context", left)
			e.observer.OnTransition(TransitionEvent{
				Time: now, Root: root, Kind: TransitionMoveOut,
				Node: left, Path: c.path(), State: c.rt,
			})

		case moveTo:
			c.push(d.target)
			entered := c.arena.At(d.target).Node.NodeName()
			e.logger.Debug("moving to context", "root", root, "context", entered)
			e.observer.OnTransition(TransitionEvent{
				Time: now, Root: root, Kind: TransitionMoveTo,
				Node: entered, Path: c.path(), State: c.rt,
			})
		}
	}
}

// evaluate decides what node idx wants, given the running-tree record it
// is evaluated with. Children of the active context are evaluated
// recursively with rt.ForChild().
func (e *Engine) evaluate(ctx context.Context, c *cursor, idx int, rt condition.RunningTree, now time.Time) decision {
	b := c.arena.At(idx)
	name := b.Node.NodeName()

	// Re-fire gate.
	if e.gated(name, b.Node.MinDelay(), now) {
		return decision{kind: stay}
	}

	_, isContext := b.Node.(*tree.Context)
	pred := b.Entry
	if isContext && rt.CurrentlyActive {
		pred = b.Stay
	}

	ok, err := condition.Eval(pred, e.world, rt, c.cells, now)
	if err != nil {
		e.logger.Error("trigger failed",
			"root", c.arena.Name(),
			"node", name,
			"error", err,
		)
		return decision{kind: stay}
	}

	switch node := b.Node.(type) {
	case *tree.Task:
		if ok {
			e.fire(ctx, c.arena.Name(), node, now)
		}
		return decision{kind: stay}

	case *tree.Context:
		if !rt.CurrentlyActive {
			if ok {
				return decision{kind: moveTo, target: idx}
			}
			return decision{kind: stay}
		}
		if !ok {
			e.exit(ctx, c.arena.Name(), node, now)
			return decision{kind: moveOut}
		}
		childRT := rt.ForChild()
		for _, child := range b.Children {
			if d := e.evaluate(ctx, c, child, childRT, now); d.kind == moveTo {
				return d
			}
		}
	}
	return decision{kind: stay}
}

// gated reports whether name must be skipped: its action is still running,
// or it fired less than minDelay ago.
func (e *Engine) gated(name string, minDelay time.Duration, now time.Time) bool {
	if _, running := e.inflight[name]; running {
		return true
	}
	if minDelay <= 0 {
		return false
	}
	last, ok := e.world.Executed(name)
	return ok && now.Sub(last) < minDelay
}
