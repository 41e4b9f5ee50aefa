package btree

import (
	"fmt"

	"github.com/robert-malhotra/chunkscan/internal/binary"
)

/*
Chunk Records:
Type 10: address(O) scaled offset(8 each)
Type 11: address(O) chunk size(var) filter mask(4) scaled offset(8 each)

Scaled offsets are chunk coordinates; multiplying by the chunk dimensions
gives the element offset.
*/

// ReadChunkIndexV2 loads every chunk from the version 2 B-tree at btreeAddr.
func ReadChunkIndexV2(r *binary.Reader, btreeAddr uint64, chunkDims []uint64) (*ChunkIndex, error) {
	rank := len(chunkDims)
	idx := NewChunkIndex(rank)
	if r.IsUndefined(btreeAddr) {
		return idx, nil
	}
	t, err := OpenV2(r, btreeAddr)
	if err != nil {
		return nil, err
	}

	osz := r.OffsetSize()
	var sizeLen int
	switch t.Type {
	case TypeChunkNoFilter:
		if t.RecordSize != osz+8*rank {
			return nil, fmt.Errorf("chunk record size %d does not match rank %d", t.RecordSize, rank)
		}
	case TypeChunkFiltered:
		sizeLen = t.RecordSize - osz - 4 - 8*rank
		if sizeLen < 1 || sizeLen > 8 {
			return nil, fmt.Errorf("chunk record size %d does not match rank %d", t.RecordSize, rank)
		}
	default:
		return nil, fmt.Errorf("B-tree at %d has record type %d, not a chunk index", btreeAddr, t.Type)
	}

	err = t.Walk(func(rec []byte) error {
		c := r.Over(rec)
		var e ChunkEntry
		var err error
		if e.Address, err = c.ReadOffset(); err != nil {
			return err
		}
		if sizeLen > 0 {
			if e.Size, err = c.ReadUintN(sizeLen); err != nil {
				return err
			}
			if e.FilterMask, err = c.ReadUint32(); err != nil {
				return err
			}
		}
		e.Offset = make([]uint64, rank)
		for i := range e.Offset {
			scaled, err := c.ReadUint64()
			if err != nil {
				return err
			}
			e.Offset[i] = scaled * chunkDims[i]
		}
		if r.IsUndefined(e.Address) {
			return nil
		}
		return idx.Add(e)
	})
	if err != nil {
		return nil, fmt.Errorf("chunk B-tree at %d: %w", btreeAddr, err)
	}
	return idx, nil
}
