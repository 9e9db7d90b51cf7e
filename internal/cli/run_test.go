package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/playback/internal/trace"
)

func TestRunCommand_Pass(t *testing.T) {
	dir := t.TempDir()
	file := writeScenario(t, dir, "volume.yaml", passingScenario)

	out, _, err := executeCommand(t, "run", file)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ volume-roundtrip")
}

func TestRunCommand_FailureSetsExitCode(t *testing.T) {
	dir := t.TempDir()
	file := writeScenario(t, dir, "wrong.yaml", failingScenario)

	out, _, err := executeCommand(t, "run", file)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong-volume")
}

func TestRunCommand_MissingScenario(t *testing.T) {
	_, _, err := executeCommand(t, "run", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRunCommand_RecordsDatabase(t *testing.T) {
	dir := t.TempDir()
	file := writeScenario(t, dir, "volume.yaml", passingScenario)
	dbPath := filepath.Join(dir, "run.db")

	out, _, err := executeCommand(t, "run", file, "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Trace recorded to")

	ts, err := trace.Open(dbPath)
	require.NoError(t, err)
	defer ts.Close()

	n, err := ts.Count(context.Background())
	require.NoError(t, err)
	assert.Greater(t, n, 0)
}

func TestRunCommand_JSONOutput(t *testing.T) {
	dir := t.TempDir()
	file := writeScenario(t, dir, "volume.yaml", passingScenario)

	out, _, err := executeCommand(t, "--format", "json", "run", file)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestRunCommand_VerbosePrintsFinalState(t *testing.T) {
	dir := t.TempDir()
	file := writeScenario(t, dir, "volume.yaml", passingScenario)

	out, _, err := executeCommand(t, "--verbose", "run", file)
	require.NoError(t, err)
	assert.Contains(t, out, "Final state:")
	assert.Contains(t, out, "volume = 0.25")
}
