package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blinkTrees = `
tree: main: children: [
	{task: "blink", when: {always: {edge: true}}, do: [{pin: {id: 17, state: true}}]},
]
output_pins: [17]
`

const blinkScenario = `
name: blink
description: blink fires once on the first tick
trees: blink.cue
steps:
  - ticks: 3
    expect:
      outputs: { 17: true }
      fired: [blink]
assertions:
  - type: fired_count
    task: blink
    count: 1
`

const wrongScenario = `
name: wrong
description: expects a second blink that never comes
trees: blink.cue
steps:
  - ticks: 3
assertions:
  - type: fired_count
    task: blink
    count: 2
`

// writeScenarios lays out a scenario directory and returns it.
func writeScenarios(t *testing.T, scenarios map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blink.cue"), []byte(blinkTrees), 0644))
	for name, body := range scenarios {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(body), 0644))
	}
	return dir
}

func TestTestCommandPasses(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"blink": blinkScenario})

	out, err := execute(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ blink")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
}

func TestTestCommandFailure(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"blink": blinkScenario, "wrong": wrongScenario})

	out, err := execute(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong")
	assert.Contains(t, out, "1 fires")
	assert.Contains(t, out, "Test Summary: 1 passed, 1 failed, 2 total")
}

func TestTestCommandFilter(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"blink": blinkScenario, "wrong": wrongScenario})

	out, err := execute(NewTestCommand(&RootOptions{Format: "text"}), dir, "--filter", "bl*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 total")
}

func TestTestCommandGolden(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"blink": blinkScenario})
	goldenPath := filepath.Join(dir, "golden", "blink.golden")

	out, err := execute(NewTestCommand(&RootOptions{Format: "text"}), dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ blink")
	assert.Contains(t, out, "(golden updated)")

	data, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario_name": "blink"`)
	assert.Contains(t, string(data), `"node": "blink"`)

	out, err = execute(NewTestCommand(&RootOptions{Format: "json"}), dir)
	require.NoError(t, err)
	var resp struct {
		Data TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "matched", resp.Data.Scenarios[0].Golden)

	require.NoError(t, os.WriteFile(goldenPath, []byte("{}\n"), 0644))
	out, err = execute(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Contains(t, out, "golden file mismatch")
}

func TestTestCommandJSON(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"blink": blinkScenario, "wrong": wrongScenario})

	out, err := execute(NewTestCommand(&RootOptions{Format: "json"}), dir)
	require.Error(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 2, resp.Data.Total)
	assert.Equal(t, 1, resp.Data.Failed)
	for _, sr := range resp.Data.Scenarios {
		assert.Positive(t, sr.Events, sr.Name)
		assert.Empty(t, sr.Golden, sr.Name)
	}
}

func TestTestCommandMissingDir(t *testing.T) {
	_, err := execute(NewTestCommand(&RootOptions{Format: "text"}), filepath.Join(t.TempDir(), "none"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandLoadError(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"broken": "name: broken\n"})

	out, err := execute(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Contains(t, out, "Load error")
}
