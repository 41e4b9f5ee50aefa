// Package config loads chunkscan settings from defaults, an optional YAML
// file, CHUNKSCAN_ environment variables and command-line overrides, in
// increasing order of precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/robert-malhotra/chunkscan/internal/netcdf"
	"github.com/robert-malhotra/chunkscan/internal/scan"
)

// EnvPrefix prefixes environment overrides. CHUNKSCAN_PROBE__REPETITIONS=3
// sets probe.repetitions.
const EnvPrefix = "CHUNKSCAN_"

// Config is the full configuration.
type Config struct {
	Scan      ScanConfig      `koanf:"scan"`
	Probe     ProbeConfig     `koanf:"probe"`
	Cache     CacheConfig     `koanf:"cache"`
	Log       LogConfig       `koanf:"log"`
	Inventory InventoryConfig `koanf:"inventory"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

// ScanConfig selects files and variables.
type ScanConfig struct {
	Pattern     string `koanf:"pattern"`
	Parallelism int    `koanf:"parallelism"` // 0 means one worker per CPU
	VariableSet string `koanf:"variable_set"`
	Variable    string `koanf:"variable"`
}

// ProbeConfig holds the read-latency probe settings.
type ProbeConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Repetitions int     `koanf:"repetitions"`
	Longitude   float64 `koanf:"longitude"`
	Latitude    float64 `koanf:"latitude"`
}

// CacheConfig is the chunk cache opened files read with.
type CacheConfig struct {
	Size       int64   `koanf:"size"`
	Slots      int     `koanf:"slots"`
	Preemption float64 `koanf:"preemption"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "console" or "json"
}

// InventoryConfig locates the scan inventory database. Empty disables it.
type InventoryConfig struct {
	Path string `koanf:"path"`
}

// MetricsConfig locates the Prometheus textfile written after a scan.
// Empty disables it.
type MetricsConfig struct {
	Textfile string `koanf:"textfile"`
}

// Defaults returns the default value of every key.
func Defaults() map[string]any {
	cache := netcdf.DefaultCacheConfig()
	return map[string]any{
		"scan.pattern":      "*.nc",
		"scan.parallelism":  0,
		"scan.variable_set": string(scan.All),
		"scan.variable":     "",
		"probe.enabled":     false,
		"probe.repetitions": 10,
		"probe.longitude":   8.0,
		"probe.latitude":    45.0,
		"cache.size":        cache.Bytes,
		"cache.slots":       cache.Slots,
		"cache.preemption":  cache.Preemption,
		"log.level":         "info",
		"log.format":        "console",
		"inventory.path":    "",
		"metrics.textfile":  "",
	}
}

// Load builds the configuration. configPath may be empty. overrides are
// applied last, keyed like the defaults; the CLI passes the flags the user
// set explicitly.
func Load(configPath string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	for key, value := range Defaults() {
		k.Set(key, value)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(
			strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	for key, value := range overrides {
		k.Set(key, value)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Scan.Parallelism < 0 {
		return fmt.Errorf("invalid scan parallelism %d: must not be negative", c.Scan.Parallelism)
	}
	set, err := scan.ParseVariableSet(c.Scan.VariableSet)
	if err != nil {
		return fmt.Errorf("invalid scan variable set: %w", err)
	}
	if set == scan.Named && c.Scan.Variable == "" {
		return fmt.Errorf("invalid scan variable set: %q needs scan.variable", set)
	}
	if c.Probe.Repetitions < 0 {
		return fmt.Errorf("invalid probe repetitions %d: must not be negative", c.Probe.Repetitions)
	}
	if c.Cache.Size < 0 || c.Cache.Slots < 0 {
		return fmt.Errorf("invalid cache size %d / slots %d: must not be negative", c.Cache.Size, c.Cache.Slots)
	}
	if c.Cache.Preemption < 0 || c.Cache.Preemption > 1 {
		return fmt.Errorf("invalid cache preemption %g: must be within [0, 1]", c.Cache.Preemption)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format %q: want console or json", c.Log.Format)
	}
	return nil
}

// Scope returns the variable scope the scan settings describe.
func (c *Config) Scope() scan.Scope {
	set, _ := scan.ParseVariableSet(c.Scan.VariableSet)
	return scan.Scope{Set: set, Variable: c.Scan.Variable}
}

// ChunkCache returns the cache settings in the form the netCDF reader takes.
func (c *Config) ChunkCache() netcdf.CacheConfig {
	return netcdf.CacheConfig{Bytes: c.Cache.Size, Slots: c.Cache.Slots, Preemption: c.Cache.Preemption}
}

// ProbeSettings returns the probe settings in the form the extractor takes.
func (c *Config) ProbeSettings() scan.Probe {
	return scan.Probe{
		Enabled:     c.Probe.Enabled,
		Repetitions: c.Probe.Repetitions,
		Longitude:   c.Probe.Longitude,
		Latitude:    c.Probe.Latitude,
	}
}
