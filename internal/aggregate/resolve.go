package aggregate

import (
	"errors"
	"sort"

	"github.com/robert-malhotra/chunkscan/internal/chunking"
)

// CommonLayout is one chunk shape per variable that is at least as large
// as every chunked shape observed for it. It is advisory: extents are not
// checked for divisibility.
type CommonLayout map[string]chunking.ChunkShape

// Resolve computes the element-wise maximum of each variable's chunked
// shapes. Contiguous occurrences are ignored unless they are all there is,
// in which case the variable maps to Contiguous. Variables whose shapes
// differ in rank are left out and reported as *chunking.RankConflictError,
// joined; the layout of the other variables is still returned.
func Resolve(ix Index) (CommonLayout, error) {
	layout := make(CommonLayout, len(ix))
	var errs []error
	for _, variable := range ix.Variables() {
		byRank := make(map[int]chunking.FileSet)
		common := chunking.Contiguous
		conflict := false
		for shape, files := range ix[variable] {
			if shape.IsContiguous() {
				continue
			}
			if _, ok := byRank[shape.Rank()]; !ok {
				byRank[shape.Rank()] = chunking.NewFileSet()
			}
			byRank[shape.Rank()].Union(files)
			m, err := common.Max(shape)
			if err != nil {
				conflict = true
				continue
			}
			common = m
		}
		if conflict {
			errs = append(errs, rankConflict(variable, byRank))
			continue
		}
		layout[variable] = common
	}
	return layout, errors.Join(errs...)
}

// rankConflict splits the files into those with the lowest rank and those
// with any other.
func rankConflict(variable string, byRank map[int]chunking.FileSet) *chunking.RankConflictError {
	ranks := make([]int, 0, len(byRank))
	for r := range byRank {
		ranks = append(ranks, r)
	}
	sort.Ints(ranks)
	e := &chunking.RankConflictError{
		Variable:  variable,
		Left:      byRank[ranks[0]].Clone(),
		Right:     chunking.NewFileSet(),
		LeftRank:  ranks[0],
		RightRank: ranks[1],
	}
	for _, r := range ranks[1:] {
		e.Right.Union(byRank[r])
	}
	return e
}

// Consistency is the chunking verdict for one variable.
type Consistency struct {
	// Consistent is set when every file shares a single shape.
	Consistent bool
	// Unchunked is set when that shape is Contiguous.
	Unchunked bool
	Shapes    map[chunking.ChunkShape]chunking.FileSet
}

// Check reports, per variable, whether the collection agrees on one chunk
// shape. A mix of contiguous and chunked storage is inconsistent.
func Check(ix Index) map[string]Consistency {
	out := make(map[string]Consistency, len(ix))
	for variable, shapes := range ix {
		c := Consistency{
			Consistent: len(shapes) == 1,
			Shapes:     make(map[chunking.ChunkShape]chunking.FileSet, len(shapes)),
		}
		for shape, files := range shapes {
			c.Shapes[shape] = files.Clone()
		}
		if _, ok := shapes[chunking.Contiguous]; ok && c.Consistent {
			c.Unchunked = true
		}
		out[variable] = c
	}
	return out
}
