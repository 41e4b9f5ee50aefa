// Package cli implements the chunkscan command-line interface.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/robert-malhotra/chunkscan/internal/config"
	"github.com/robert-malhotra/chunkscan/internal/inventory"
	"github.com/robert-malhotra/chunkscan/internal/logging"
	"github.com/robert-malhotra/chunkscan/internal/metrics"
)

// flagKeys maps command-line flags to the configuration keys they override.
// Only flags the user set are applied.
var flagKeys = map[string]string{
	"pattern":          "scan.pattern",
	"parallelism":      "scan.parallelism",
	"variable-set":     "scan.variable_set",
	"variable":         "scan.variable",
	"probe":            "probe.enabled",
	"repetitions":      "probe.repetitions",
	"longitude":        "probe.longitude",
	"latitude":         "probe.latitude",
	"log-level":        "log.level",
	"log-format":       "log.format",
	"inventory":        "inventory.path",
	"metrics-textfile": "metrics.textfile",
}

// cmdContext holds common resources for CLI commands
type cmdContext struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Store   *inventory.Store
}

// Close releases resources held by cmdContext
func (c *cmdContext) Close() {
	if c.Store != nil {
		c.Store.Close()
	}
	_ = c.Logger.Sync()
}

// initContext loads the configuration for cmd and builds the logger.
func initContext(cmd *cobra.Command) (*cmdContext, error) {
	overrides := make(map[string]any)
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			overrides[key] = f.Value.String()
		}
	}
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path, overrides)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	return &cmdContext{Config: cfg, Logger: logger, Metrics: metrics.New()}, nil
}

// openStore opens the inventory named by the configuration.
func (c *cmdContext) openStore() error {
	if c.Config.Inventory.Path == "" {
		return fmt.Errorf("no inventory configured: set --inventory or inventory.path")
	}
	st, err := inventory.Open(c.Config.Inventory.Path)
	if err != nil {
		return fmt.Errorf("failed to open inventory: %w", err)
	}
	c.Store = st
	return nil
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "chunkscan",
		Short: "Inspect chunk layouts of netCDF-4 collections",
		Long: `chunkscan reads the storage layout of the variables in netCDF-4/HDF5 files:
chunk shapes, chunk cache settings and compression. Over a directory it reports
which chunk shapes occur in which files, whether each variable is chunked
consistently, and the smallest chunk shape that covers every file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "YAML configuration file")
	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-format", "console", "Log format (console, json)")
	pf.String("inventory", "", "SQLite inventory of recorded scans")
	pf.String("metrics-textfile", "", "Write scan metrics to this Prometheus textfile")

	root.AddCommand(newInspectCmd())
	root.AddCommand(newInspectMultipleCmd())
	root.AddCommand(newShapesCmd())
	root.AddCommand(newCommonShapeCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newInventoryCmd())
	root.AddCommand(newDumpCmd())
	return root
}

// Execute runs the command line with ctx.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}
