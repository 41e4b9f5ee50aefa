// Package layout reads individual elements of a dataset's raw data.
//
// [New] selects a [Storage] for the dataset's layout class:
//
//   - [Compact]: data held in the layout message itself.
//   - [Contiguous]: one block of the file; an unallocated block reads as fill.
//   - [Chunked]: fixed-size chunks found through a chunk index, decoded
//     through the dataset's filter pipeline and kept in a [Cache].
//
// Chunk indexes supported: version 1 and 2 B-trees, single chunk, implicit,
// fixed array, and extensible arrays whose elements all sit in the index
// block. Chunks that were never written read as zero bytes; fill value
// messages are not consulted.
package layout
