// Package condition implements the predicate language that gates task-tree
// nodes.
//
// Variants:
//   - Literal: always true, optionally after a delay since rearm and/or only
//     once per rearm (edge mode)
//   - StateEquals: a named application-state key equals a literal
//   - PinEquals: a digital pin is in a given state, with delay and edge modes
//   - Direction: the node was reached moving back up, or moving down
//   - And, Or, Not: boolean composition
//
// The set is closed. Eval dispatches with a type switch, and Requirements is
// total over it.
//
// # Bookkeeping
//
// Literal and PinEquals carry edge/delay bookkeeping. It does not live in
// the predicate. Bind copies a predicate tree and gives each stateful leaf
// a slot number; the caller owns a Cells value with one Cell per slot. The
// dispatcher keeps one Cells per root and is its only user, so nothing here
// locks.
//
// Bookkeeping is rearmed exactly when the RunningTree passed to Eval has
// FirstIterationAfterMove set.
package condition
