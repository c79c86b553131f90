package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().TPS, cfg.TPS)
}

func TestLoad_ParsesDurationSuffixesAndOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	content := `
tps: 250
duration: 90s
loadPattern: ramp-up
shutdown:
  drainTimeout: 2s
  forceTimeout: 4s
adaptive:
  initialTps: 20
  maxTps: 300
  minTps: 10
  rampIncrement: 15
  rampDecrement: 30
  rampInterval: 250ms
  sustainDuration: 10s
  stableIntervalsRequired: 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 250.0, cfg.TPS)
	assert.Equal(t, 90*time.Second, cfg.Duration.AsDuration())
	assert.Equal(t, "ramp-up", cfg.LoadPattern)
	assert.Equal(t, 2*time.Second, cfg.Shutdown.DrainTimeout.AsDuration())
	assert.Equal(t, 250*time.Millisecond, cfg.Adaptive.RampInterval.AsDuration())
	assert.Equal(t, 3, cfg.Adaptive.StableIntervalsRequired)
}

func TestLoad_RejectsMalformedDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("duration: not-a-duration\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverridesApplyAfterFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tps: 100\n"), 0o644))

	t.Setenv("VAJRAPULSE_TPS", "333")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 333.0, cfg.TPS)
}
