package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/robert-malhotra/chunkscan/internal/aggregate"
	"github.com/robert-malhotra/chunkscan/internal/render"
	"github.com/robert-malhotra/chunkscan/internal/scan"
)

// errNothingScanned is returned when every file of a scan failed.
var errNothingScanned = errors.New("no file could be scanned")

// addScanFlags registers the flags shared by the commands that extract
// facts from files.
func addScanFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("variable-set", "all", "Variables to inspect (all, data, coordinates, variable)")
	f.String("variable", "", "Variable to inspect with --variable-set variable")
	f.Bool("probe", false, "Time a single-point read of each data variable")
	f.Int("repetitions", 10, "Point reads per variable when probing")
	f.Float64("longitude", 8, "Longitude of the probed point")
	f.Float64("latitude", 45, "Latitude of the probed point")
}

// addDirFlags registers the flags of the commands that scan a directory.
func addDirFlags(cmd *cobra.Command) {
	addScanFlags(cmd)
	f := cmd.Flags()
	f.String("pattern", "*.nc", "Glob selecting the files within the directory")
	f.Int("parallelism", 0, "Files scanned at once (0 for one per CPU)")
	f.Bool("record", false, "Record the scan in the inventory")
}

// listFiles returns the regular files in dir matching pattern, sorted.
func listFiles(dir, pattern string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) == 0 {
		return nil, fmt.Errorf("directory %s does not exist or is empty", dir)
	}
	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		ok, err := filepath.Match(pattern, e.Name())
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		if ok {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files matching the pattern %q in %s", pattern, dir)
	}
	sort.Strings(files)
	return files, nil
}

func (c *cmdContext) extractor() *scan.Extractor {
	return &scan.Extractor{
		Opener: scan.NetCDF(c.Config.ChunkCache()),
		Scope:  c.Config.Scope(),
		Probe:  c.Config.ProbeSettings(),
		Logger: c.Logger,
	}
}

// scanDir extracts the facts of every matching file in dir. Results come
// back sorted by file. Failures are logged, observed and, with --record,
// stored alongside the successes.
func (c *cmdContext) scanDir(cmd *cobra.Command, dir string) ([]scan.Result, error) {
	files, err := listFiles(dir, c.Config.Scan.Pattern)
	if err != nil {
		return nil, err
	}
	parallelism := c.Config.Scan.Parallelism
	if parallelism == 0 {
		parallelism = runtime.NumCPU()
	}

	record, _ := cmd.Flags().GetBool("record")
	var runID string
	if record {
		if err := c.openStore(); err != nil {
			return nil, err
		}
		run, err := c.Store.BeginRun(cmd.Context(), dir, c.Config.Scan.Pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to begin run: %w", err)
		}
		runID = run.ID
	}

	c.Logger.Info("scanning",
		zap.String("dir", dir),
		zap.Int("files", len(files)),
		zap.Int("parallelism", parallelism),
		zap.Stringer("scope", c.Config.Scope()))
	start := time.Now()

	ex := c.extractor()
	var results []scan.Result
	failed := 0
	err = scan.Consume(cmd.Context(), files, ex.Extract, parallelism, func(r scan.Result) error {
		c.Metrics.Observe(r)
		if !r.OK() {
			failed++
			c.Logger.Warn("scan failed", zap.String("file", r.File), zap.Error(r.Err.Err))
		}
		results = append(results, r)
		if record {
			if err := c.Store.Record(cmd.Context(), runID, r); err != nil {
				return fmt.Errorf("failed to record %s: %w", r.File, err)
			}
		}
		return nil
	})
	sort.Slice(results, func(i, j int) bool { return results[i].File < results[j].File })

	if record {
		// The run is closed even when the scan was cancelled or recording failed.
		run, ferr := c.Store.FinishRun(context.WithoutCancel(cmd.Context()), runID)
		if ferr != nil {
			return nil, errors.Join(err, fmt.Errorf("failed to finish run: %w", ferr))
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "recorded run %s\n", run.ID)
	}
	if err != nil {
		return nil, err
	}
	if err := c.writeMetrics(); err != nil {
		return nil, err
	}
	if err := cmd.Context().Err(); err != nil {
		return nil, err
	}

	c.Logger.Info("scan finished",
		zap.Int("files", len(results)),
		zap.Int("failures", failed),
		zap.Duration("elapsed", time.Since(start)))
	if failed > 0 && failed == len(results) {
		_ = render.Failures(cmd.ErrOrStderr(), failures(results))
		return nil, errNothingScanned
	}
	return results, nil
}

func (c *cmdContext) writeMetrics() error {
	if c.Config.Metrics.Textfile == "" {
		return nil
	}
	if err := c.Metrics.WriteTextfile(c.Config.Metrics.Textfile); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

func failures(results []scan.Result) []*scan.ScanError {
	var out []*scan.ScanError
	for _, r := range results {
		if !r.OK() {
			out = append(out, r.Err)
		}
	}
	return out
}

// aggregateResults folds sorted results into an index.
func aggregateResults(results []scan.Result) (aggregate.Index, []*scan.ScanError) {
	ch := make(chan scan.Result, len(results))
	for _, r := range results {
		ch <- r
	}
	close(ch)
	return aggregate.Aggregate(ch)
}

// scanIndex scans dir, aggregates the results and reports failures on
// stderr.
func (c *cmdContext) scanIndex(cmd *cobra.Command, dir string) (aggregate.Index, error) {
	results, err := c.scanDir(cmd, dir)
	if err != nil {
		return nil, err
	}
	ix, failed := aggregateResults(results)
	if err := render.Failures(cmd.ErrOrStderr(), failed); err != nil {
		return nil, err
	}
	return ix, nil
}
