package btree

import (
	"encoding/binary"
	"fmt"
)

// ChunkEntry locates one stored chunk.
type ChunkEntry struct {
	// Offset is the element coordinate of the chunk's first element.
	Offset     []uint64
	Size       uint64
	FilterMask uint32
	Address    uint64
}

// ChunkIndex holds the stored chunks of one dataset.
type ChunkIndex struct {
	Rank    int
	Entries []ChunkEntry

	byOffset map[string]int
}

// NewChunkIndex returns an empty index for a dataset of the given rank.
func NewChunkIndex(rank int) *ChunkIndex {
	return &ChunkIndex{Rank: rank, byOffset: make(map[string]int)}
}

// Add records a chunk. Two chunks at the same offset are an error.
func (idx *ChunkIndex) Add(e ChunkEntry) error {
	k := offsetKey(e.Offset)
	if _, dup := idx.byOffset[k]; dup {
		return fmt.Errorf("chunk at %v indexed twice", e.Offset)
	}
	idx.byOffset[k] = len(idx.Entries)
	idx.Entries = append(idx.Entries, e)
	return nil
}

// FindChunk returns the chunk holding the element at coord, or nil when that
// chunk was never written.
func (idx *ChunkIndex) FindChunk(coord, chunkDims []uint64) *ChunkEntry {
	if len(coord) != idx.Rank || len(chunkDims) != idx.Rank {
		return nil
	}
	start := make([]uint64, idx.Rank)
	for i, c := range coord {
		start[i] = c - c%chunkDims[i]
	}
	if i, ok := idx.byOffset[offsetKey(start)]; ok {
		return &idx.Entries[i]
	}
	return nil
}

func offsetKey(off []uint64) string {
	b := make([]byte, 8*len(off))
	for i, v := range off {
		binary.LittleEndian.PutUint64(b[8*i:], v)
	}
	return string(b)
}
