// Package scan extracts chunk layout facts from files and fans the work
// out over a bounded number of workers.
package scan

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/robert-malhotra/chunkscan/internal/chunking"
	"github.com/robert-malhotra/chunkscan/internal/netcdf"
)

// Handle is an open file as the extractor sees it. *netcdf.File is one.
type Handle interface {
	Path() string
	Size() int64
	Dimensions() []chunking.Dimension
	Variables() []string
	IsCoordinate(name string) bool
	Fact(name string) (chunking.VariableLayoutFact, error)
	ReadPoint(name string, lon, lat float64) (any, error)
	Close() error
}

// Opener opens the file at path.
type Opener interface {
	Open(ctx context.Context, path string) (Handle, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, path string) (Handle, error)

func (f OpenerFunc) Open(ctx context.Context, path string) (Handle, error) { return f(ctx, path) }

// NetCDF returns an Opener for netCDF-4 files using the given chunk cache.
func NetCDF(cache netcdf.CacheConfig) Opener {
	return OpenerFunc(func(_ context.Context, path string) (Handle, error) {
		f, err := netcdf.Open(path, cache)
		if err != nil {
			return nil, err
		}
		return f, nil
	})
}

// Probe configures the timed point read made for each data variable.
type Probe struct {
	Enabled     bool
	Repetitions int
	Longitude   float64
	Latitude    float64
}

// ScanError is the failure of one file.
type ScanError struct {
	File string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// Result is the outcome of extracting one file. Exactly one of Err and the
// fact fields is meaningful.
type Result struct {
	File       string
	Size       int64
	Dimensions []chunking.Dimension
	Facts      []chunking.VariableLayoutFact
	Elapsed    time.Duration
	Err        *ScanError
}

// OK reports whether the file was extracted.
func (r Result) OK() bool { return r.Err == nil }

// Fact returns the fact for the named variable.
func (r Result) Fact(name string) (chunking.VariableLayoutFact, bool) {
	for _, f := range r.Facts {
		if f.Name == name {
			return f, true
		}
	}
	return chunking.VariableLayoutFact{}, false
}

// Extractor turns a file path into a Result.
type Extractor struct {
	Opener Opener
	Scope  Scope
	Probe  Probe
	Logger *zap.Logger
}

func (e *Extractor) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// Extract opens path, collects the facts of the variables in scope and
// closes the file. Failures come back in Result.Err; a failed probe read
// only leaves the variable's ReadTime unset.
func (e *Extractor) Extract(ctx context.Context, path string) Result {
	start := time.Now()
	res := Result{File: path}
	fail := func(err error) Result {
		return Result{File: path, Elapsed: time.Since(start), Err: &ScanError{File: path, Err: err}}
	}

	h, err := e.Opener.Open(ctx, path)
	if err != nil {
		return fail(err)
	}
	defer h.Close()

	names, err := Select(e.Scope, h)
	if err != nil {
		return fail(err)
	}
	res.Size = h.Size()
	res.Dimensions = h.Dimensions()
	res.Facts = make([]chunking.VariableLayoutFact, 0, len(names))
	for _, name := range names {
		fact, err := h.Fact(name)
		if err != nil {
			return fail(err)
		}
		if e.Probe.Enabled && !fact.Coordinate {
			fact.ReadTime = e.probe(h, name)
		}
		res.Facts = append(res.Facts, fact)
	}
	res.Elapsed = time.Since(start)
	return res
}

func (e *Extractor) probe(h Handle, name string) chunking.Optional[time.Duration] {
	reps := max(e.Probe.Repetitions, 1)
	var last time.Duration
	for range reps {
		start := time.Now()
		if _, err := h.ReadPoint(name, e.Probe.Longitude, e.Probe.Latitude); err != nil {
			e.logger().Warn("probe read failed",
				zap.String("file", h.Path()),
				zap.String("variable", name),
				zap.Error(err))
			return chunking.Optional[time.Duration]{}
		}
		last = time.Since(start)
	}
	return chunking.Some(last)
}
