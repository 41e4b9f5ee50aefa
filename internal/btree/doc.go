// Package btree reads the HDF5 B-trees behind old-style groups, dense link
// and attribute storage, and chunked dataset indexes.
//
// Version 1 trees (signature "TREE") index the members of a symbol-table
// group ([ReadGroupEntries]) and the chunks of datasets written with layout
// message versions 1 to 3 ([ReadChunkIndex]).
//
// Version 2 trees (signature "BTHD") are read generically by [OpenV2] and
// walked record by record. [ReadChunkIndexV2] decodes record types 10 and 11
// into the same [ChunkIndex] the version 1 reader produces.
package btree
