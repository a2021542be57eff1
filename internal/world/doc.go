// Package world holds the process-wide state the dispatcher, conditions and
// actions share: application key/value state, input and output pin
// snapshots, the display handle, the logger, the pid and the run id.
//
// Every field is guarded by one sync.RWMutex. Conditions read through the
// Lookup and Pin methods; actions call the mutating methods. No lock is
// held across calls, so actions on other goroutines interleave per access.
//
// Scheduler bookkeeping lives in the same key space: "<name>_executed"
// holds the last time node name fired, as unix seconds, or -1 when it never
// has.
package world
