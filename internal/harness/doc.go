// Package harness runs task-tree scenarios against the real engine.
//
// A scenario compiles a CUE tree definition, seeds application state and
// simulated input pins, then drives the engine tick by tick on a manual
// clock. Pin levels and state can change between steps, and each step may
// check the active paths, state and output pins it leaves behind.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	trees: trees/greenhouse.cue    # or source: | inline CUE
//	tick: 250ms
//	state: { mode: auto }
//	pins: { 4: true }
//	steps:
//	  - set: { mode: manual }
//	    pins: { 4: false }
//	    advance: 2s
//	    ticks: 3
//	    expect:
//	      paths: { main: [main] }
//	      state: { fan: false }
//	      outputs: { 17: false }
//	      fired: [daytime_exit]
//	assertions:
//	  - type: fired_count
//	    task: fan_on
//	    count: 1
//
// # Assertion Types
//
//   - fired: the task fired at least once
//   - fired_order: the tasks first fired in the given order
//   - fired_count: the task fired exactly N times
//   - final_state: application state holds the given values
//   - final_path: a root's active path at the end
//   - journal_count: the journal recorded N finished runs of a task
//
// # Deterministic Testing
//
// Every scenario runs on a testutil.ManualClock starting at a fixed
// instant, with a gpio.Sim driver and an in-memory SQLite journal. The
// harness waits for background actions after every tick, so the trace of
// transitions and fires is identical across runs and can be compared
// against golden files.
package harness
