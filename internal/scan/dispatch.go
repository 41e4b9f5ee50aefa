package scan

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/robert-malhotra/chunkscan/internal/chunking"
)

// WorkFunc produces the result for one file.
type WorkFunc func(ctx context.Context, path string) Result

// Dispatch runs fn over paths with at most parallelism files in flight
// (runtime.NumCPU() when parallelism < 1) and streams the results in
// completion order. A panic in fn becomes that file's ScanError. The
// channel is closed once every started worker has returned.
//
// Cancelling ctx stops new files from starting; results of files already
// running are dropped. A caller that stops reading must cancel ctx.
func Dispatch(ctx context.Context, paths []string, fn WorkFunc, parallelism int) <-chan Result {
	if parallelism < 1 {
		parallelism = runtime.NumCPU()
	}
	out := make(chan Result)

	go func() {
		defer close(out)

		// Not errgroup.WithContext: one file failing must not cancel the rest.
		var g errgroup.Group
		g.SetLimit(parallelism)
		for _, path := range paths {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				r := run(ctx, path, fn)
				if ctx.Err() != nil {
					return nil
				}
				select {
				case out <- r:
				case <-ctx.Done():
				}
				return nil
			})
		}
		g.Wait()
	}()

	return out
}

func run(ctx context.Context, path string, fn WorkFunc) (r Result) {
	defer func() {
		if p := recover(); p != nil {
			r = Result{
				File: path,
				Err:  &ScanError{File: path, Err: fmt.Errorf("%w: worker panicked: %v", chunking.ErrExtraction, p)},
			}
		}
	}()
	r = fn(ctx, path)
	if r.File == "" {
		r.File = path
	}
	return r
}

// Consume dispatches paths like Dispatch and hands each result to sink.
// The first sink error cancels the files not yet delivered; Consume returns
// it once every started worker has returned.
func Consume(ctx context.Context, paths []string, fn WorkFunc, parallelism int, sink func(Result) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := Dispatch(ctx, paths, fn, parallelism)
	for r := range results {
		if err := sink(r); err != nil {
			cancel()
			for range results {
			}
			return err
		}
	}
	return nil
}

// Collect drains results into a slice.
func Collect(results <-chan Result) []Result {
	var out []Result
	for r := range results {
		out = append(out, r)
	}
	return out
}
