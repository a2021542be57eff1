// Package engine implements the dispatcher: a fixed-rate polling loop that
// walks every root task tree, moves each tree's active path up and down,
// and runs task actions in the background.
//
// ARCHITECTURE:
//
// Single Scheduler Goroutine:
// Tick (called directly, or repeatedly by Run) does all tree walking and
// owns every piece of scheduler state: the per-root cursors, their
// condition bookkeeping cells, and the in-flight action set. Only the
// cursor stacks sit behind a mutex, so ActivePath can be read elsewhere.
//
// Per-Tick Flow:
//  1. Refresh input pin snapshots in the world.
//  2. For each root in declared order, evaluate the node on top of the
//     active path and apply the resulting transition (Stay, MoveOut or
//     MoveTo), repeating until a Stay. One tick can therefore descend or
//     climb several levels.
//  3. Reap actions that finished since the last tick.
//
// Actions:
// A firing task stamps "<name>_executed", then its action runs on a new
// goroutine. While it runs, the task is gated: the scheduler will not start
// it again. Actions are never cancelled; they receive a context detached
// from the scheduler's.
//
// Exit actions of contexts run synchronously on the scheduler goroutine
// when the context is left.
//
// FAILURE MODEL:
//
// Condition errors and action errors are logged and never stop the loop.
// Only initialization (opening pins, the display) can fail fatally.
package engine
