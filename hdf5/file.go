package hdf5

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"github.com/robert-malhotra/chunkscan/internal/binary"
	"github.com/robert-malhotra/chunkscan/internal/heap"
	"github.com/robert-malhotra/chunkscan/internal/object"
	"github.com/robert-malhotra/chunkscan/internal/superblock"
)

// File represents an open HDF5 file.
type File struct {
	path       string
	file       *os.File
	size       int64
	reader     *binary.Reader
	superblock *superblock.Superblock
	root       *Group
	closed     bool
	opts       *openOptions

	heapMu sync.Mutex
	heaps  map[uint64]*heap.GlobalHeap
}

// Open opens an HDF5 file for reading.
func Open(path string, opts ...OpenOption) (*File, error) {
	o := defaultOpenOptions()
	for _, opt := range opts {
		opt(o)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("opening file: %w", err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotHDF5, path)
	}

	sb, err := superblock.Read(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("reading superblock: %w", classify(err))
	}

	// Addresses are relative to the base address, which moves when a user
	// block precedes the superblock.
	var src io.ReaderAt = f
	base := int64(sb.BaseAddress)
	if base == 0 {
		base = sb.FileOffset
	}
	if base > 0 {
		src = io.NewSectionReader(f, base, math.MaxInt64-base)
	}

	cfg := sb.ReaderConfig()
	cfg.Size = info.Size() - base
	if cfg.Size <= 0 {
		f.Close()
		return nil, fmt.Errorf("%w: base address %d beyond end of file", ErrNotHDF5, base)
	}
	hdf := &File{
		path:       path,
		file:       f,
		size:       info.Size(),
		reader:     binary.NewReader(src, cfg),
		superblock: sb,
		opts:       o,
	}

	root, err := hdf.openGroupAt(sb.RootGroupAddress, "/")
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("opening root group: %w", err)
	}
	hdf.root = root
	return hdf, nil
}

// Close closes the file. Objects opened from it must not be used afterwards.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	return f.file.Close()
}

// Root returns the root group of the file.
func (f *File) Root() *Group {
	return f.root
}

// Path returns the file path.
func (f *File) Path() string {
	return f.path
}

// Size returns the file size in bytes.
func (f *File) Size() int64 {
	return f.size
}

// Version returns the superblock version.
func (f *File) Version() int {
	return int(f.superblock.Version)
}

// OpenGroup opens a group by path.
func (f *File) OpenGroup(path string) (*Group, error) {
	if f.closed {
		return nil, ErrClosed
	}
	return f.root.OpenGroup(path)
}

// OpenDataset opens a dataset by path.
func (f *File) OpenDataset(path string) (*Dataset, error) {
	if f.closed {
		return nil, ErrClosed
	}
	return f.root.OpenDataset(path)
}

// GetAttr returns an attribute by path.
// Path format: /group/object@attribute_name
func (f *File) GetAttr(path string) (*Attribute, error) {
	if f.closed {
		return nil, ErrClosed
	}
	objectPath, attrName, err := ParseAttrPath(path)
	if err != nil {
		return nil, err
	}
	obj, err := f.root.open(objectPath)
	if err != nil {
		return nil, fmt.Errorf("opening object %s: %w", objectPath, err)
	}
	var attr *Attribute
	switch o := obj.(type) {
	case *Group:
		attr, err = o.Attribute(attrName)
	case *Dataset:
		attr, err = o.Attribute(attrName)
	}
	if err != nil {
		return nil, err
	}
	if attr == nil {
		return nil, fmt.Errorf("attribute %s: %w", attrName, ErrNotFound)
	}
	return attr, nil
}

func (f *File) readHeader(address uint64) (*object.Header, error) {
	if f.closed {
		return nil, ErrClosed
	}
	h, err := object.Read(f.reader, address)
	if err != nil {
		return nil, fmt.Errorf("reading object header: %w", classify(err))
	}
	return h, nil
}

func (f *File) openGroupAt(address uint64, path string) (*Group, error) {
	header, err := f.readHeader(address)
	if err != nil {
		return nil, err
	}
	return &Group{file: f, path: path, header: header}, nil
}

// openObjectAt opens the object at address as a group or dataset.
func (f *File) openObjectAt(address uint64, path string) (any, error) {
	header, err := f.readHeader(address)
	if err != nil {
		return nil, err
	}
	switch {
	case header.IsDataset():
		return newDataset(f, path, header)
	case header.IsGroup() || (path == "/" && f.superblock.RootBTreeAddress != 0):
		return &Group{file: f, path: path, header: header}, nil
	}
	return nil, fmt.Errorf("%w: object at %d is neither a group nor a dataset", ErrUnsupported, address)
}

// IsNotHDF5 reports whether err came from opening a file that is not HDF5.
func IsNotHDF5(err error) bool {
	return errors.Is(err, ErrNotHDF5)
}
