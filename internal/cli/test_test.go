package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// harnessScenarios holds scenarios and goldens shared with the harness
// package tests.
var harnessScenarios = filepath.Join("..", "harness", "testdata", "scenarios")

const syncScenario = `
name: sync_only
description: a sync on a fresh thread
steps:
  - instruction: { command: sync, clientMutationId: s-1 }
assertions:
  - type: route_order
    routes: [router, sync]
`

func TestTestCommand_MissingDir(t *testing.T) {
	opts := &RootOptions{Format: "text"}
	_, err := execute(t, NewTestCommand(opts), filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommand_NoScenarios(t *testing.T) {
	opts := &RootOptions{Format: "text"}
	out, err := execute(t, NewTestCommand(opts), t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommand_HarnessScenarios(t *testing.T) {
	opts := &RootOptions{Format: "json"}
	out, err := execute(t, NewTestCommand(opts), harnessScenarios)
	require.NoError(t, err, out)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Data.Failed)
	assert.Equal(t, resp.Data.Total, resp.Data.Passed)
	assert.GreaterOrEqual(t, resp.Data.Total, 4)
	for _, sc := range resp.Data.Scenarios {
		assert.Positive(t, sc.Steps, sc.Name)
	}
}

func TestTestCommand_Filter(t *testing.T) {
	opts := &RootOptions{Format: "text"}
	out, err := execute(t, NewTestCommand(opts), harnessScenarios, "--filter", "bypass_*")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ bypass_cycles")
	assert.NotContains(t, out, "onboarding_lifecycle")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommand_VerboseSummary(t *testing.T) {
	opts := &RootOptions{Format: "text", Verbose: true}
	out, err := execute(t, NewTestCommand(opts), harnessScenarios, "--filter", "bypass_*")
	require.NoError(t, err)
	assert.Contains(t, out, "3 step(s), task working, aum $302.50")
}

func TestTestCommand_SkipsGoldenDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sync_only.yaml"), []byte(syncScenario), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "notes.yaml"), []byte("name: [\n"), 0644))

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "sync_only.yaml")}, files)
}

func TestTestCommand_BadFilter(t *testing.T) {
	opts := &RootOptions{Format: "text"}
	_, err := execute(t, NewTestCommand(opts), harnessScenarios, "--filter", "[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}

func TestTestCommand_UpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sync_only.yaml"), []byte(syncScenario), 0644))

	opts := &RootOptions{Format: "text"}
	out, err := execute(t, NewTestCommand(opts), dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ sync_only (golden updated)")

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "sync_only.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario_name":"sync_only"`)

	out, err = execute(t, NewTestCommand(opts), dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ sync_only")

	// A stale golden fails the run.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "sync_only.golden"), []byte(`{"scenario_name":"sync_only","trace":[]}`), 0644))
	out, err = execute(t, NewTestCommand(opts), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommand_FailingScenario(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.yaml"), []byte(`
name: wrong
description: expects a cycle that never runs
steps:
  - instruction: { command: sync }
assertions:
  - type: route_contains
    route: cycle
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: [\n"), 0644))

	opts := &RootOptions{Format: "json"}
	out, err := execute(t, NewTestCommand(opts), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeTestFailed, resp.Error.Code)
	assert.Equal(t, 2, resp.Data.Failed)
	require.Len(t, resp.Data.Scenarios, 2)
	assert.Equal(t, "broken.yaml", resp.Data.Scenarios[0].Name)
	assert.Contains(t, resp.Data.Scenarios[0].Errors[0], "failed to load scenario")
	assert.Equal(t, "wrong", resp.Data.Scenarios[1].Name)
}
