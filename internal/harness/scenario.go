package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultTick is the clock step between ticks when a scenario sets none.
const DefaultTick = 250 * time.Millisecond

// Scenario defines a task-tree test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files use it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Trees is the path of a CUE tree definition file, relative to the
	// scenario file.
	Trees string `yaml:"trees,omitempty"`

	// Source is inline CUE, used when Trees is empty.
	Source string `yaml:"source,omitempty"`

	// Tick is how far the clock moves after every tick.
	// Default: 250ms (DefaultTick)
	Tick time.Duration `yaml:"tick,omitempty"`

	// State seeds application state before initialization.
	State map[string]any `yaml:"state,omitempty"`

	// Pins seeds simulated input pin levels before initialization.
	Pins map[int]bool `yaml:"pins,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the finished run.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step changes the inputs, then ticks the engine.
type Step struct {
	// Set writes application state before ticking.
	Set map[string]any `yaml:"set,omitempty"`

	// Pins changes simulated input levels before ticking.
	Pins map[int]bool `yaml:"pins,omitempty"`

	// Advance moves the clock before the first tick of the step.
	Advance time.Duration `yaml:"advance,omitempty"`

	// Ticks is the number of ticks to run. Default: 1.
	Ticks int `yaml:"ticks,omitempty"`

	// Expect is checked after the step's last tick.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect is a set of checks made after a step.
type Expect struct {
	// Paths maps root names to their expected active path.
	Paths map[string][]string `yaml:"paths,omitempty"`

	// State holds expected application-state values (subset match).
	State map[string]any `yaml:"state,omitempty"`

	// Outputs holds expected output pin levels.
	Outputs map[int]bool `yaml:"outputs,omitempty"`

	// Fired is the exact list of tasks fired during this step.
	// Use an empty list to expect no fires.
	Fired []string `yaml:"fired,omitempty"`
}

// Assertion validates the finished run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "fired": Task fired at least once
	// - "fired_order": Tasks first fired in this order
	// - "fired_count": Task fired exactly Count times
	// - "final_state": Expect holds in the final application state
	// - "final_path": Root's final active path equals Path
	// - "journal_count": the journal holds Count executions of Task
	Type string `yaml:"type"`

	Task   string         `yaml:"task,omitempty"`
	Tasks  []string       `yaml:"tasks,omitempty"`
	Count  int            `yaml:"count,omitempty"`
	Root   string         `yaml:"root,omitempty"`
	Path   []string       `yaml:"path,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertFired        = "fired"
	AssertFiredOrder   = "fired_order"
	AssertFiredCount   = "fired_count"
	AssertFinalState   = "final_state"
	AssertFinalPath    = "final_path"
	AssertJournalCount = "journal_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A relative Trees path is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Trees != "" && !filepath.IsAbs(scenario.Trees) {
		scenario.Trees = filepath.Join(filepath.Dir(path), scenario.Trees)
	}
	if scenario.Trees != "" {
		if _, err := os.Stat(scenario.Trees); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: trees file not found: %s", scenario.Trees)
		}
	}
	return scenario, nil
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Trees == "" && s.Source == "" {
		return fmt.Errorf("one of trees or source is required")
	}
	if s.Trees != "" && s.Source != "" {
		return fmt.Errorf("trees and source are mutually exclusive")
	}

	if s.Tick < 0 {
		return fmt.Errorf("tick must not be negative")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Ticks < 0 {
			return fmt.Errorf("steps[%d]: ticks must not be negative", i)
		}
		if step.Advance < 0 {
			return fmt.Errorf("steps[%d]: advance must not be negative", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFired:
		if a.Task == "" {
			return fmt.Errorf("assertions[%d]: task is required for fired", index)
		}
	case AssertFiredOrder:
		if len(a.Tasks) == 0 {
			return fmt.Errorf("assertions[%d]: tasks list is required for fired_order", index)
		}
	case AssertFiredCount, AssertJournalCount:
		if a.Task == "" {
			return fmt.Errorf("assertions[%d]: task is required for %s", index, a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertFinalState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertFinalPath:
		if a.Root == "" || len(a.Path) == 0 {
			return fmt.Errorf("assertions[%d]: root and path are required for final_path", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
