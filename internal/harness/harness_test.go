package harness

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ModeSwitchGolden(t *testing.T) {
	scenario, err := LoadScenario("testdata/mode_switch.yaml")
	require.NoError(t, err)

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Failures)
	assert.Equal(t, []string{"blink", "auto_exit", "blink"}, result.Fired())
	assert.Equal(t, map[string][]string{"main": {"main", "auto"}}, result.Paths)
	assert.Equal(t, "auto", result.State["mode"])
	assert.NotContains(t, result.State, "blink_executed")
}

func TestRun_MinInterval(t *testing.T) {
	scenario := &Scenario{
		Name: "interval",
		Source: `
tree: main: children: [
	{task: "beat", when: {always: {}}, every: "1s", do: [{set: {key: "beats", value: true}}]},
]
`,
		Steps: []Step{{Ticks: 8}},
		Assertions: []Assertion{
			{Type: AssertFiredCount, Task: "beat", Count: 2},
			{Type: AssertFinalState, Expect: map[string]any{"beats": true}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	var at []int64
	for _, ev := range result.Trace {
		at = append(at, ev.AtMS)
	}
	assert.Equal(t, []int64{0, 1000}, at)
}

func TestRun_CustomTick(t *testing.T) {
	scenario := &Scenario{
		Name: "custom_tick",
		Source: `
tree: main: children: [
	{task: "beat", when: {always: {}}, every: "1s", do: [{log: "beat"}]},
]
`,
		Tick:  time.Second,
		Steps: []Step{{Ticks: 3}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.Equal(t, []string{"beat", "beat", "beat"}, result.Fired())
}

func TestRun_InputPinsAndAdvance(t *testing.T) {
	scenario := &Scenario{
		Name: "pins",
		Source: `
tree: main: children: [
	{task: "pressed", when: {pin: {id: 4, delay: "2s", edge: true}}, do: [{set: {key: "pressed", value: true}}]},
]
`,
		Pins: map[int]bool{4: false},
		Steps: []Step{
			{Pins: map[int]bool{4: true}, Expect: &Expect{Fired: []string{}}},
			{Advance: 2 * time.Second, Expect: &Expect{
				Fired: []string{"pressed"},
				State: map[string]any{"pressed": true},
			}},
			{Ticks: 3, Expect: &Expect{Fired: []string{}}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_FailedExpectations(t *testing.T) {
	scenario := &Scenario{
		Name: "wrong",
		Source: `
tree: main: children: [
	{task: "a", when: {always: {edge: true}}, do: [{set: {key: "x", value: 1}}]},
]
`,
		Steps: []Step{{Expect: &Expect{
			Paths: map[string][]string{"main": {"main", "nowhere"}, "ghost": {"ghost"}},
			State: map[string]any{"x": 2, "missing": "v"},
			Fired: []string{},
		}}},
		Assertions: []Assertion{
			{Type: AssertFired, Task: "b"},
			{Type: AssertFinalPath, Root: "main", Path: []string{"main"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)

	joined := strings.Join(result.Errors, "\n")
	assert.Contains(t, joined, `step 0: unknown root "ghost"`)
	assert.Contains(t, joined, "step 0: path of main: expected [main nowhere], got [main]")
	assert.Contains(t, joined, `state "missing": expected v, key missing`)
	assert.Contains(t, joined, `state "x": expected 2, got 1`)
	assert.Contains(t, joined, "fired: expected [], got [a]")
	assert.Contains(t, joined, "Assertion failed: fired")
}

func TestRun_ActionFailuresAreCollected(t *testing.T) {
	scenario := &Scenario{
		Name: "no_display",
		Source: `
tree: main: children: [
	{task: "greet", when: {always: {edge: true}}, do: [{display: {text: "hi"}}]},
]
`,
		Steps: []Step{{Ticks: 2}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass)
	require.Len(t, result.Failures, 1)
	assert.Contains(t, result.Failures[0], "greet")
}

func TestRun_SetupErrors(t *testing.T) {
	tests := []struct {
		name string
		s    *Scenario
		want string
	}{
		{
			name: "compile",
			s:    &Scenario{Name: "bad", Source: `tree: {}`, Steps: []Step{{}}},
			want: "compile trees",
		},
		{
			name: "validate",
			s: &Scenario{Name: "undeclared", Source: `
tree: main: children: [
	{task: "a", when: {always: {}}, do: [{pin: {id: 9, state: true}}]},
]
`, Steps: []Step{{}}},
			want: "validate trees",
		},
		{
			name: "missing file",
			s:    &Scenario{Name: "gone", Trees: "testdata/nope.cue", Steps: []Step{{}}},
			want: "read trees",
		},
		{
			name: "bad seed",
			s: &Scenario{
				Name:   "seed",
				Source: `tree: main: children: [{task: "a", when: {always: {}}, do: [{log: "x"}]}]`,
				State:  map[string]any{"list": []any{1}},
				Steps:  []Step{{}},
			},
			want: "seed state",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(tt.s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
