package chunking

import (
	"sort"
	"time"
)

// Optional is a value that may be absent. The zero value is absent.
type Optional[T any] struct {
	Value T
	Valid bool
}

// Some returns a present value.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Valid: true}
}

// Cache is a variable's chunk cache configuration. Available is false when
// the variable has no chunk cache, which is different from a zero-sized one.
type Cache struct {
	Bytes      int64
	Slots      int
	Preemption float64
	Available  bool
}

// Dimension is a named axis of a file.
type Dimension struct {
	Name      string
	Size      uint64
	Unlimited bool
}

// CompressionNone is reported for variables without a compression filter.
const CompressionNone = "none"

// VariableLayoutFact is the storage layout of one variable in one file.
type VariableLayoutFact struct {
	Name       string
	Dimensions []string
	Shape      []uint64
	Chunks     ChunkShape
	Cache      Cache
	Dtype      string

	Scale  Optional[float64]
	Offset Optional[float64]

	Compression string
	Level       Optional[int]
	Shuffle     bool
	Fletcher32  bool

	// Coordinate is set for dimension and auxiliary coordinate variables.
	Coordinate bool

	// ReadTime is the duration of the last probe read, when one was made.
	ReadTime Optional[time.Duration]
}

// NumElements returns the number of array elements in the variable.
func (f VariableLayoutFact) NumElements() uint64 {
	n := uint64(1)
	for _, d := range f.Shape {
		n *= d
	}
	return n
}

// FileSet is a set of file identifiers.
type FileSet map[string]struct{}

// NewFileSet returns a set holding files.
func NewFileSet(files ...string) FileSet {
	s := make(FileSet, len(files))
	for _, f := range files {
		s[f] = struct{}{}
	}
	return s
}

// Add inserts file and reports whether it was new.
func (s FileSet) Add(file string) bool {
	if _, ok := s[file]; ok {
		return false
	}
	s[file] = struct{}{}
	return true
}

// Has reports whether file is in the set.
func (s FileSet) Has(file string) bool {
	_, ok := s[file]
	return ok
}

// Union adds every member of o to s.
func (s FileSet) Union(o FileSet) {
	for f := range o {
		s[f] = struct{}{}
	}
}

// Sorted returns the members in lexical order.
func (s FileSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy.
func (s FileSet) Clone() FileSet {
	c := make(FileSet, len(s))
	c.Union(s)
	return c
}
