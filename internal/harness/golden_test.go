package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runGoldenScenario(t *testing.T, file string) {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", file))
	require.NoError(t, err)

	result, err := RunWithGolden(t, s)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestGolden_VolumeRoundtrip(t *testing.T) {
	runGoldenScenario(t, "volume-roundtrip.yaml")
}

func TestGolden_SeekRejected(t *testing.T) {
	runGoldenScenario(t, "seek-rejected.yaml")
}
