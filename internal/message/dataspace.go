package message

import (
	"fmt"

	"github.com/robert-malhotra/chunkscan/internal/binary"
)

// DataspaceType is the dataspace class.
type DataspaceType uint8

const (
	DataspaceScalar DataspaceType = 0
	DataspaceSimple DataspaceType = 1
	DataspaceNull   DataspaceType = 2
)

// Unlimited is the maximum-dimension value of an extendible axis.
const Unlimited = ^uint64(0)

// Dataspace is message 0x0001: the extent of a dataset or attribute.
type Dataspace struct {
	Version    uint8
	SpaceType  DataspaceType
	Dimensions []uint64
	MaxDims    []uint64 // nil when not stored
}

func (m *Dataspace) Type() Type { return TypeDataspace }

// Rank returns the number of dimensions.
func (m *Dataspace) Rank() int { return len(m.Dimensions) }

// NumElements returns the number of elements selected by the extent.
func (m *Dataspace) NumElements() uint64 {
	switch m.SpaceType {
	case DataspaceScalar:
		return 1
	case DataspaceSimple:
		n := uint64(1)
		for _, d := range m.Dimensions {
			n *= d
		}
		return n
	}
	return 0
}

// IsScalar reports whether the dataspace holds a single element.
func (m *Dataspace) IsScalar() bool { return m.SpaceType == DataspaceScalar }

/*
Dataspace Layout:
Version 1: version(1) rank(1) flags(1) reserved(1) reserved(4) dims(L*rank) [maxdims(L*rank)]
Version 2: version(1) rank(1) flags(1) type(1) dims(L*rank) [maxdims(L*rank)]

flags bit 0: maximum dimensions present
*/
func parseDataspace(data []byte, r *binary.Reader) (*Dataspace, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("dataspace message too short")
	}
	ds := &Dataspace{Version: data[0]}
	rank := int(data[1])
	flags := data[2]

	c := r.Over(data)
	switch ds.Version {
	case 1:
		ds.SpaceType = DataspaceSimple
		if rank == 0 {
			ds.SpaceType = DataspaceScalar
		}
		c.Skip(8)
	case 2:
		ds.SpaceType = DataspaceType(data[3])
		c.Skip(4)
	default:
		return nil, fmt.Errorf("unsupported dataspace version %d", ds.Version)
	}
	if ds.SpaceType != DataspaceSimple {
		return ds, nil
	}

	var err error
	if ds.Dimensions, err = readLengths(c, rank); err != nil {
		return nil, fmt.Errorf("dataspace dimensions: %w", err)
	}
	if flags&0x01 != 0 {
		if ds.MaxDims, err = readLengths(c, rank); err != nil {
			return nil, fmt.Errorf("dataspace max dimensions: %w", err)
		}
	}
	return ds, nil
}

func readLengths(c *binary.Reader, n int) ([]uint64, error) {
	out := make([]uint64, n)
	for i := range out {
		v, err := c.ReadLength()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
