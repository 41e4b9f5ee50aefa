package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/chunkscan/internal/scan"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chunkscan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "*.nc", cfg.Scan.Pattern)
	assert.Zero(t, cfg.Scan.Parallelism)
	assert.Equal(t, scan.AllVariables, cfg.Scope())
	assert.False(t, cfg.Probe.Enabled)
	assert.Equal(t, 10, cfg.Probe.Repetitions)
	assert.Equal(t, 8.0, cfg.Probe.Longitude)
	assert.Equal(t, 45.0, cfg.Probe.Latitude)
	assert.Equal(t, int64(16<<20), cfg.Cache.Size)
	assert.Equal(t, 4133, cfg.Cache.Slots)
	assert.Equal(t, 0.75, cfg.Cache.Preemption)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Empty(t, cfg.Inventory.Path)
	assert.Empty(t, cfg.Metrics.Textfile)
}

func TestLoadLayers(t *testing.T) {
	path := writeConfig(t, `
scan:
  pattern: "*.h5"
  parallelism: 4
  variable_set: data
probe:
  enabled: true
  repetitions: 3
cache:
  preemption: 0.5
log:
  format: json
`)
	t.Setenv("CHUNKSCAN_SCAN__PARALLELISM", "8")
	t.Setenv("CHUNKSCAN_PROBE__LATITUDE", "50.5")

	cfg, err := Load(path, map[string]any{"probe.repetitions": 1})
	require.NoError(t, err)

	assert.Equal(t, "*.h5", cfg.Scan.Pattern)
	assert.Equal(t, 8, cfg.Scan.Parallelism)
	assert.Equal(t, scan.Scope{Set: scan.Data}, cfg.Scope())
	assert.True(t, cfg.Probe.Enabled)
	assert.Equal(t, 1, cfg.Probe.Repetitions)
	assert.Equal(t, 50.5, cfg.Probe.Latitude)
	assert.Equal(t, 0.5, cfg.Cache.Preemption)
	assert.Equal(t, "json", cfg.Log.Format)

	assert.Equal(t, scan.Probe{Enabled: true, Repetitions: 1, Longitude: 8, Latitude: 50.5}, cfg.ProbeSettings())
	assert.Equal(t, int64(16<<20), cfg.ChunkCache().Bytes)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.ErrorContains(t, err, "failed to load config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		overrides map[string]any
		want      string
	}{
		{"negative parallelism", map[string]any{"scan.parallelism": -1}, "invalid scan parallelism"},
		{"negative repetitions", map[string]any{"probe.repetitions": -2}, "invalid probe repetitions"},
		{"preemption above one", map[string]any{"cache.preemption": 1.5}, "invalid cache preemption"},
		{"preemption below zero", map[string]any{"cache.preemption": -0.1}, "invalid cache preemption"},
		{"unknown variable set", map[string]any{"scan.variable_set": "metadata"}, "invalid scan variable set"},
		{"variable set without name", map[string]any{"scan.variable_set": "variable"}, "needs scan.variable"},
		{"negative cache size", map[string]any{"cache.size": -1}, "invalid cache size"},
		{"unknown log format", map[string]any{"log.format": "xml"}, "invalid log format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load("", tt.overrides)
			assert.ErrorContains(t, err, tt.want)
		})
	}

	cfg, err := Load("", map[string]any{"scan.variable_set": "variable", "scan.variable": "sst"})
	require.NoError(t, err)
	assert.Equal(t, scan.Variable("sst"), cfg.Scope())
}
