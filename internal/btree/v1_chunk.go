package btree

import (
	"github.com/robert-malhotra/chunkscan/internal/binary"
)

/*
Chunk Key Layout (version 1 B-tree, node type 1):
0       4     Chunk size in bytes, after filtering
4       4     Filter mask
8       8*n   Chunk offset per dimension, plus a trailing 0 for the element
*/

// ReadChunkIndex loads every chunk of a dataset of the given rank from the
// version 1 B-tree at btreeAddr.
func ReadChunkIndex(r *binary.Reader, btreeAddr uint64, rank int) (*ChunkIndex, error) {
	idx := NewChunkIndex(rank)
	if r.IsUndefined(btreeAddr) {
		return idx, nil
	}
	keySize := 8 + 8*(rank+1)
	order := r.ByteOrder()
	err := walkV1(r, btreeAddr, nodeChunk, keySize, func(key []byte, child uint64) error {
		if r.IsUndefined(child) {
			return nil
		}
		e := ChunkEntry{
			Size:       uint64(order.Uint32(key[0:])),
			FilterMask: order.Uint32(key[4:]),
			Address:    child,
			Offset:     make([]uint64, rank),
		}
		for i := range e.Offset {
			e.Offset[i] = order.Uint64(key[8+8*i:])
		}
		return idx.Add(e)
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}
