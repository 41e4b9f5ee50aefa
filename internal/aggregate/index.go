// Package aggregate folds per-file scan results into a variable → chunk
// shape → files index and derives the collection-wide views from it.
package aggregate

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/robert-malhotra/chunkscan/internal/chunking"
	"github.com/robert-malhotra/chunkscan/internal/scan"
)

// ErrShapeConflict is returned when one file is reported with different
// chunk shapes for the same variable.
var ErrShapeConflict = errors.New("file reported with different chunk shapes")

// Index maps each variable to the chunk shapes it was seen with and the
// files showing each shape. A file appears under at most one shape per
// variable.
type Index map[string]map[chunking.ChunkShape]chunking.FileSet

// Add records that variable has shape in file. Adding the same triple again
// is a no-op.
func (ix Index) Add(variable string, shape chunking.ChunkShape, file string) error {
	if prev, ok := ix.shapeOf(variable, file); ok {
		if prev == shape {
			return nil
		}
		return fmt.Errorf("%w: variable %q is %s, not %s", ErrShapeConflict, variable, prev, shape)
	}
	shapes, ok := ix[variable]
	if !ok {
		shapes = make(map[chunking.ChunkShape]chunking.FileSet)
		ix[variable] = shapes
	}
	files, ok := shapes[shape]
	if !ok {
		files = chunking.NewFileSet()
		shapes[shape] = files
	}
	files.Add(file)
	return nil
}

func (ix Index) shapeOf(variable, file string) (chunking.ChunkShape, bool) {
	for shape, files := range ix[variable] {
		if files.Has(file) {
			return shape, true
		}
	}
	return chunking.ChunkShape{}, false
}

// Variables returns the indexed variable names in lexical order.
func (ix Index) Variables() []string {
	out := make([]string, 0, len(ix))
	for v := range ix {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Shapes returns the shapes recorded for variable, ordered by rank and
// then by extents, with Contiguous first.
func (ix Index) Shapes(variable string) []chunking.ChunkShape {
	out := make([]chunking.ChunkShape, 0, len(ix[variable]))
	for s := range ix[variable] {
		out = append(out, s)
	}
	SortShapes(out)
	return out
}

// Files returns every file recorded for any variable.
func (ix Index) Files() chunking.FileSet {
	all := chunking.NewFileSet()
	for _, shapes := range ix {
		for _, files := range shapes {
			all.Union(files)
		}
	}
	return all
}

// SortShapes orders shapes by rank, then lexicographically by extents.
func SortShapes(shapes []chunking.ChunkShape) {
	sort.Slice(shapes, func(i, j int) bool {
		a, b := shapes[i], shapes[j]
		if a.Rank() != b.Rank() {
			return a.Rank() < b.Rank()
		}
		ad, bd := a.Dims(), b.Dims()
		for k := range ad {
			if ad[k] != bd[k] {
				return ad[k] < bd[k]
			}
		}
		return false
	})
}

// Aggregate folds a result stream into an Index. Failed results are
// returned as scan errors. When several results name the same file and
// disagree on a variable's shape, the file is left out of every shape of
// that variable and each disagreeing result is reported. The index and the
// error list do not depend on the order results arrive in.
func Aggregate(results <-chan scan.Result) (Index, []*scan.ScanError) {
	var failed []*scan.ScanError
	byFile := make(map[string][]scan.Result)
	for r := range results {
		if !r.OK() {
			failed = append(failed, r.Err)
			continue
		}
		byFile[r.File] = append(byFile[r.File], r)
	}

	ix := make(Index)
	for file, rs := range byFile {
		seen := shapesByVariable(rs)
		for _, r := range rs {
			var errs []error
			for _, f := range r.Facts {
				if shapes := seen[f.Name]; len(shapes) > 1 {
					errs = append(errs, conflict(f, shapes))
					continue
				}
				// A single shape per variable cannot conflict.
				_ = ix.Add(f.Name, f.Chunks, file)
			}
			if len(errs) > 0 {
				failed = append(failed, &scan.ScanError{File: file, Err: errors.Join(errs...)})
			}
		}
	}
	sort.SliceStable(failed, func(i, j int) bool {
		if failed[i].File != failed[j].File {
			return failed[i].File < failed[j].File
		}
		return failed[i].Error() < failed[j].Error()
	})
	return ix, failed
}

// shapesByVariable collects, per variable, the distinct shapes the results
// report.
func shapesByVariable(rs []scan.Result) map[string][]chunking.ChunkShape {
	seen := make(map[string][]chunking.ChunkShape)
	for _, r := range rs {
		for _, f := range r.Facts {
			if !slices.Contains(seen[f.Name], f.Chunks) {
				seen[f.Name] = append(seen[f.Name], f.Chunks)
			}
		}
	}
	for _, shapes := range seen {
		SortShapes(shapes)
	}
	return seen
}

func conflict(f chunking.VariableLayoutFact, shapes []chunking.ChunkShape) error {
	var others []string
	for _, s := range shapes {
		if s != f.Chunks {
			others = append(others, s.String())
		}
	}
	return fmt.Errorf("%w: variable %q is %s, also reported as %s", ErrShapeConflict, f.Name, f.Chunks, strings.Join(others, ", "))
}
