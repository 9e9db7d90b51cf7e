package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: volume-roundtrip
description: setVolume settles and volume updates
flow:
  - invoke: setVolume
    with: 0.25
    expect:
      status: success
assertions:
  - type: final_state
    expect:
      volume: 0.25
`

const failingScenario = `name: wrong-volume
description: asserts a volume the flow never sets
flow:
  - invoke: setVolume
    with: 0.25
assertions:
  - type: final_state
    expect:
      volume: 0.9
`

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestTestCommand_AllPass(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "volume.yaml", passingScenario)

	out, _, err := executeCommand(t, "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ volume-roundtrip")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommand_FailureSetsExitCode(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "wrong.yaml", failingScenario)

	out, _, err := executeCommand(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong-volume")
}

func TestTestCommand_MissingDirIsCommandError(t *testing.T) {
	_, _, err := executeCommand(t, "test", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommand_EmptyDir(t *testing.T) {
	out, _, err := executeCommand(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommand_Filter(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "volume.yaml", passingScenario)
	writeScenario(t, dir, "wrong.yaml", failingScenario)

	out, _, err := executeCommand(t, "test", dir, "--filter", "volume")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommand_GoldenUpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	file := writeScenario(t, dir, "volume.yaml", passingScenario)

	_, _, err := executeCommand(t, "test", dir, "--update")
	require.NoError(t, err)

	goldenPath := goldenFilePath(file)
	data, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario_name":"volume-roundtrip"`)

	// Deterministic runs reproduce the recorded trace exactly.
	out, _, err := executeCommand(t, "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ volume-roundtrip")
}

func TestTestCommand_GoldenMismatchFails(t *testing.T) {
	dir := t.TempDir()
	file := writeScenario(t, dir, "volume.yaml", passingScenario)

	goldenPath := goldenFilePath(file)
	require.NoError(t, os.MkdirAll(filepath.Dir(goldenPath), 0o755))
	require.NoError(t, os.WriteFile(goldenPath, []byte(`{"scenario_name":"volume-roundtrip","trace":[]}`), 0o644))

	out, _, err := executeCommand(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "does not match golden file")
}

func TestTestCommand_JSONOutput(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "volume.yaml", passingScenario)
	writeScenario(t, dir, "wrong.yaml", failingScenario)

	out, _, err := executeCommand(t, "--format", "json", "test", dir)
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
}

func TestFindScenarioFiles_SkipsGoldenDir(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "volume.yaml", passingScenario)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "stale.yaml"), []byte("x: 1"), 0o644))

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Contains(t, files[0], "volume.yaml")
}
