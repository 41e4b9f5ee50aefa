package message

import (
	"fmt"

	"github.com/robert-malhotra/chunkscan/internal/binary"
)

// LayoutClass is the raw data storage class.
type LayoutClass uint8

const (
	LayoutCompact    LayoutClass = 0
	LayoutContiguous LayoutClass = 1
	LayoutChunked    LayoutClass = 2
	LayoutVirtual    LayoutClass = 3
)

// ChunkIndexType identifies the structure that maps chunk coordinates to
// file addresses. Values 1-5 match the version 4 encoding; layouts before
// version 4 always use a version 1 B-tree.
type ChunkIndexType uint8

const (
	ChunkIndexBTreeV1         ChunkIndexType = 0
	ChunkIndexSingle          ChunkIndexType = 1
	ChunkIndexImplicit        ChunkIndexType = 2
	ChunkIndexFixedArray      ChunkIndexType = 3
	ChunkIndexExtensibleArray ChunkIndexType = 4
	ChunkIndexBTreeV2         ChunkIndexType = 5
)

// DataLayout is message 0x0008.
type DataLayout struct {
	Version uint8
	Class   LayoutClass

	// Compact
	CompactData []byte

	// Contiguous
	Address uint64
	Size    uint64

	// Chunked. ChunkDims excludes the trailing element-size dimension.
	ChunkDims       []uint64
	ElementSize     uint32
	ChunkIndex      ChunkIndexType
	ChunkIndexAddr  uint64
	ChunkFlags      uint8
	SingleChunkSize uint64 // filtered single-chunk storage only
	SingleChunkMask uint32
}

func (m *DataLayout) Type() Type { return TypeDataLayout }

func parseDataLayout(data []byte, r *binary.Reader) (*DataLayout, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("data layout message too short")
	}
	l := &DataLayout{Version: data[0]}
	c := r.Over(data)
	c.Skip(1)

	var err error
	switch l.Version {
	case 1, 2:
		err = parseLayoutV1(c, l)
	case 3, 4:
		err = parseLayoutV3(c, l)
	default:
		return nil, fmt.Errorf("unsupported data layout version %d", l.Version)
	}
	if err != nil {
		return nil, fmt.Errorf("data layout v%d: %w", l.Version, err)
	}
	return l, nil
}

/*
Layout Version 1/2:
0       1     Version
1       1     Dimensionality (rank + 1 for chunked storage)
2       1     Layout class
3       5     Reserved
8       O     Address (contiguous and chunked only)
var     4*n   Dimension sizes
var     4     Compact data size, then data (compact only)
*/
func parseLayoutV1(c *binary.Reader, l *DataLayout) error {
	ndims, err := c.ReadUint8()
	if err != nil {
		return err
	}
	class, err := c.ReadUint8()
	if err != nil {
		return err
	}
	l.Class = LayoutClass(class)
	c.Skip(5)

	if l.Class != LayoutCompact {
		if l.ChunkIndexAddr, err = c.ReadOffset(); err != nil {
			return err
		}
		l.Address = l.ChunkIndexAddr
	}
	dims := make([]uint64, ndims)
	for i := range dims {
		v, err := c.ReadUint32()
		if err != nil {
			return err
		}
		dims[i] = uint64(v)
	}

	switch l.Class {
	case LayoutChunked:
		return l.setChunkDims(dims)
	case LayoutContiguous:
		// Size stays 0: the storage size is derived from dataspace and datatype.
	case LayoutCompact:
		size, err := c.ReadUint32()
		if err != nil {
			return err
		}
		l.CompactData, err = c.ReadBytes(int(size))
		return err
	}
	return nil
}

/*
Layout Version 3/4:
0       1     Version
1       1     Layout class

Compact:    size(2) data
Contiguous: address(O) size(L)
Chunked v3: dimensionality(1) address(O) dims(4*n)
Chunked v4: flags(1) dimensionality(1) dim-encoding-size(1) dims(enc*n)
            index type(1) index parameters address(O)
*/
func parseLayoutV3(c *binary.Reader, l *DataLayout) error {
	class, err := c.ReadUint8()
	if err != nil {
		return err
	}
	l.Class = LayoutClass(class)

	switch l.Class {
	case LayoutCompact:
		size, err := c.ReadUint16()
		if err != nil {
			return err
		}
		l.CompactData, err = c.ReadBytes(int(size))
		return err

	case LayoutContiguous:
		if l.Address, err = c.ReadOffset(); err != nil {
			return err
		}
		l.Size, err = c.ReadLength()
		return err

	case LayoutChunked:
		if l.Version == 3 {
			return parseChunkedV3(c, l)
		}
		return parseChunkedV4(c, l)

	case LayoutVirtual:
		return fmt.Errorf("virtual dataset layout is not supported")
	}
	return fmt.Errorf("unknown layout class %d", l.Class)
}

func parseChunkedV3(c *binary.Reader, l *DataLayout) error {
	ndims, err := c.ReadUint8()
	if err != nil {
		return err
	}
	if l.ChunkIndexAddr, err = c.ReadOffset(); err != nil {
		return err
	}
	dims := make([]uint64, ndims)
	for i := range dims {
		v, err := c.ReadUint32()
		if err != nil {
			return err
		}
		dims[i] = uint64(v)
	}
	l.ChunkIndex = ChunkIndexBTreeV1
	return l.setChunkDims(dims)
}

func parseChunkedV4(c *binary.Reader, l *DataLayout) error {
	var err error
	if l.ChunkFlags, err = c.ReadUint8(); err != nil {
		return err
	}
	ndims, err := c.ReadUint8()
	if err != nil {
		return err
	}
	enc, err := c.ReadUint8()
	if err != nil {
		return err
	}
	if enc == 0 || enc > 8 {
		return fmt.Errorf("invalid chunk dimension encoding size %d", enc)
	}
	dims := make([]uint64, ndims)
	for i := range dims {
		if dims[i], err = c.ReadUintN(int(enc)); err != nil {
			return err
		}
	}
	if err := l.setChunkDims(dims); err != nil {
		return err
	}

	idx, err := c.ReadUint8()
	if err != nil {
		return err
	}
	l.ChunkIndex = ChunkIndexType(idx)
	switch l.ChunkIndex {
	case ChunkIndexSingle:
		if l.ChunkFlags&0x02 != 0 {
			if l.SingleChunkSize, err = c.ReadLength(); err != nil {
				return err
			}
			if l.SingleChunkMask, err = c.ReadUint32(); err != nil {
				return err
			}
		}
	case ChunkIndexImplicit:
	case ChunkIndexFixedArray:
		c.Skip(1)
	case ChunkIndexExtensibleArray:
		c.Skip(5)
	case ChunkIndexBTreeV2:
		c.Skip(6)
	default:
		return fmt.Errorf("unknown chunk index type %d", idx)
	}
	l.ChunkIndexAddr, err = c.ReadOffset()
	return err
}

// setChunkDims splits the stored dimensions into the chunk shape and the
// trailing element size.
func (l *DataLayout) setChunkDims(dims []uint64) error {
	if len(dims) < 2 {
		return fmt.Errorf("chunked layout with %d dimensions", len(dims))
	}
	for i, d := range dims {
		if d == 0 {
			return fmt.Errorf("chunk dimension %d is zero", i)
		}
	}
	l.ChunkDims = dims[:len(dims)-1]
	l.ElementSize = uint32(dims[len(dims)-1])
	return nil
}
