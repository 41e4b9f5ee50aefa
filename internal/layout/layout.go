package layout

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/chunkscan/internal/binary"
	"github.com/robert-malhotra/chunkscan/internal/filter"
	"github.com/robert-malhotra/chunkscan/internal/message"
)

var (
	// ErrOutOfRange is returned for a coordinate outside the dataspace.
	ErrOutOfRange = errors.New("coordinate out of range")
	// ErrUnsupported is returned for layouts and indexes this package cannot read.
	ErrUnsupported = errors.New("unsupported storage")
)

// Storage reads single elements.
type Storage interface {
	Class() message.LayoutClass
	// ReadElement returns the raw bytes of the element at coord.
	ReadElement(coord []uint64) ([]byte, error)
}

// New returns the Storage for a dataset. cache may be nil.
func New(
	r *binary.Reader,
	msg *message.DataLayout,
	space *message.Dataspace,
	elemSize int,
	fp *message.FilterPipeline,
	cache *Cache,
) (Storage, error) {
	if msg == nil || space == nil {
		return nil, fmt.Errorf("dataset has no layout or dataspace")
	}
	if elemSize <= 0 {
		return nil, fmt.Errorf("invalid element size %d", elemSize)
	}
	g := geometry{dims: space.Dimensions, elemSize: elemSize}

	switch msg.Class {
	case message.LayoutCompact:
		return &Compact{geometry: g, data: msg.CompactData}, nil
	case message.LayoutContiguous:
		return &Contiguous{geometry: g, r: r, addr: msg.Address}, nil
	case message.LayoutChunked:
		if len(msg.ChunkDims) != len(space.Dimensions) {
			return nil, fmt.Errorf("chunk rank %d does not match dataspace rank %d", len(msg.ChunkDims), len(space.Dimensions))
		}
		p, err := filter.NewPipeline(fp)
		if err != nil {
			return nil, err
		}
		return &Chunked{geometry: g, r: r, msg: msg, maxDims: space.MaxDims, pipeline: p, cache: cache}, nil
	}
	return nil, fmt.Errorf("%w: layout class %d", ErrUnsupported, msg.Class)
}

// geometry is the extent and element width shared by every layout.
type geometry struct {
	dims     []uint64
	elemSize int
}

func (g geometry) check(coord []uint64) error {
	if len(coord) != len(g.dims) {
		return fmt.Errorf("%w: %d indices for rank %d", ErrOutOfRange, len(coord), len(g.dims))
	}
	for i, c := range coord {
		if c >= g.dims[i] {
			return fmt.Errorf("%w: index %d is %d, extent %d", ErrOutOfRange, i, c, g.dims[i])
		}
	}
	return nil
}

// linear returns the row-major position of coord within extent.
func linear(coord, extent []uint64) uint64 {
	var n uint64
	for i, c := range coord {
		n = n*extent[i] + c
	}
	return n
}

// Compact storage keeps the data in the layout message.
type Compact struct {
	geometry
	data []byte
}

func (c *Compact) Class() message.LayoutClass { return message.LayoutCompact }

func (c *Compact) ReadElement(coord []uint64) ([]byte, error) {
	if err := c.check(coord); err != nil {
		return nil, err
	}
	off := int(linear(coord, c.dims)) * c.elemSize
	if off+c.elemSize > len(c.data) {
		return nil, fmt.Errorf("compact data holds %d bytes, element at %d", len(c.data), off)
	}
	return append([]byte(nil), c.data[off:off+c.elemSize]...), nil
}

// Contiguous storage is one block at addr.
type Contiguous struct {
	geometry
	r    *binary.Reader
	addr uint64
}

func (c *Contiguous) Class() message.LayoutClass { return message.LayoutContiguous }

func (c *Contiguous) ReadElement(coord []uint64) ([]byte, error) {
	if err := c.check(coord); err != nil {
		return nil, err
	}
	if c.r.IsUndefined(c.addr) {
		return make([]byte, c.elemSize), nil
	}
	off := int64(c.addr) + int64(linear(coord, c.dims))*int64(c.elemSize)
	return c.r.At(off).ReadBytes(c.elemSize)
}
