// Package chunking holds the value types shared by the scanner and the
// aggregator: chunk shapes, per-variable layout facts, file sets and the
// error taxonomy.
package chunking

import (
	"fmt"
	"strconv"
	"strings"
)

// ChunkShape is the chunk extent of a variable, one positive entry per
// dimension in the file's dimension order. The zero value is Contiguous.
// ChunkShape is comparable and can be used as a map key.
type ChunkShape struct {
	key string
}

// Contiguous marks a variable stored without chunking.
var Contiguous = ChunkShape{}

const contiguousName = "contiguous"

// NewChunkShape returns the shape with the given extents. Every extent
// must be positive.
func NewChunkShape(dims ...uint64) (ChunkShape, error) {
	if len(dims) == 0 {
		return ChunkShape{}, fmt.Errorf("chunk shape needs at least one dimension")
	}
	parts := make([]string, len(dims))
	for i, d := range dims {
		if d == 0 {
			return ChunkShape{}, fmt.Errorf("chunk dimension %d is zero", i)
		}
		parts[i] = strconv.FormatUint(d, 10)
	}
	return ChunkShape{key: strings.Join(parts, ",")}, nil
}

// MustChunkShape is NewChunkShape for literals; it panics on invalid input.
func MustChunkShape(dims ...uint64) ChunkShape {
	s, err := NewChunkShape(dims...)
	if err != nil {
		panic(err)
	}
	return s
}

// ParseChunkShape reads the form produced by String: "contiguous" or
// extents separated by "x", spaces optional.
func ParseChunkShape(s string) (ChunkShape, error) {
	s = strings.TrimSpace(s)
	if s == contiguousName {
		return Contiguous, nil
	}
	fields := strings.Split(s, "x")
	dims := make([]uint64, len(fields))
	for i, f := range fields {
		d, err := strconv.ParseUint(strings.TrimSpace(f), 10, 64)
		if err != nil {
			return ChunkShape{}, fmt.Errorf("parsing chunk shape %q: %w", s, err)
		}
		dims[i] = d
	}
	return NewChunkShape(dims...)
}

// IsContiguous reports whether s is the Contiguous sentinel.
func (s ChunkShape) IsContiguous() bool { return s.key == "" }

// Dims returns a copy of the extents, nil for Contiguous.
func (s ChunkShape) Dims() []uint64 {
	if s.IsContiguous() {
		return nil
	}
	parts := strings.Split(s.key, ",")
	dims := make([]uint64, len(parts))
	for i, p := range parts {
		dims[i], _ = strconv.ParseUint(p, 10, 64)
	}
	return dims
}

// Rank returns the number of dimensions, 0 for Contiguous.
func (s ChunkShape) Rank() int {
	if s.IsContiguous() {
		return 0
	}
	return strings.Count(s.key, ",") + 1
}

// Max returns the element-wise maximum of s and o, which must have the
// same rank. Contiguous on either side yields the other shape.
func (s ChunkShape) Max(o ChunkShape) (ChunkShape, error) {
	switch {
	case s.IsContiguous():
		return o, nil
	case o.IsContiguous():
		return s, nil
	case s.Rank() != o.Rank():
		return ChunkShape{}, fmt.Errorf("%w: %s and %s", ErrRankConflict, s, o)
	}
	a, b := s.Dims(), o.Dims()
	for i := range a {
		a[i] = max(a[i], b[i])
	}
	return NewChunkShape(a...)
}

// Dominates reports whether s is at least o in every dimension.
func (s ChunkShape) Dominates(o ChunkShape) bool {
	if s.Rank() != o.Rank() {
		return false
	}
	b := o.Dims()
	for i, d := range s.Dims() {
		if d < b[i] {
			return false
		}
	}
	return true
}

// String renders the shape as "100 x 50 x 50", or "contiguous".
func (s ChunkShape) String() string {
	if s.IsContiguous() {
		return contiguousName
	}
	return strings.ReplaceAll(s.key, ",", " x ")
}
