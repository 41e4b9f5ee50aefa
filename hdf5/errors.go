// Package hdf5 reads the metadata and individual elements of HDF5 files.
package hdf5

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/chunkscan/internal/filter"
	"github.com/robert-malhotra/chunkscan/internal/heap"
	"github.com/robert-malhotra/chunkscan/internal/layout"
	"github.com/robert-malhotra/chunkscan/internal/object"
	"github.com/robert-malhotra/chunkscan/internal/superblock"
)

// Common errors
var (
	ErrNotHDF5     = errors.New("not an HDF5 file")
	ErrNotFound    = errors.New("object not found")
	ErrNotDataset  = errors.New("object is not a dataset")
	ErrNotGroup    = errors.New("object is not a group")
	ErrUnsupported = errors.New("unsupported feature")
	ErrInvalidPath = errors.New("invalid path")
	ErrClosed      = errors.New("file is closed")
	ErrLinkDepth   = errors.New("maximum link depth exceeded")
)

// MaxLinkDepth is the maximum number of soft links followed while
// resolving a single path.
const MaxLinkDepth = 100

// classify tags errors from the format packages with the sentinel callers
// match on.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUnsupported), errors.Is(err, ErrNotHDF5):
		return err
	case errors.Is(err, superblock.ErrNotHDF5):
		return fmt.Errorf("%w: %w", ErrNotHDF5, err)
	case errors.Is(err, superblock.ErrUnsupportedVersion),
		errors.Is(err, object.ErrUnsupportedVersion),
		errors.Is(err, layout.ErrUnsupported),
		errors.Is(err, filter.ErrUnsupported),
		errors.Is(err, heap.ErrUnsupportedObject):
		return fmt.Errorf("%w: %w", ErrUnsupported, err)
	}
	return err
}
