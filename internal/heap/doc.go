// Package heap reads the three HDF5 heap structures a reader meets while
// walking netCDF-4 metadata.
//
// # Local Heap
//
// A [LocalHeap] (signature "HEAP") holds the member names of an old-style
// group. Symbol table entries reference names by offset:
//
//	lh, err := heap.ReadLocalHeap(r, heapAddress)
//	name := lh.String(nameOffset)
//
// # Global Heap
//
// A [GlobalHeap] collection (signature "GCOL") holds variable-length data:
// vlen strings and the object reference lists behind DIMENSION_LIST
// attributes. A vlen element stores a [GlobalHeapID]:
//
//	id, err := heap.ParseGlobalHeapID(raw, r)
//	gh, err := heap.ReadGlobalHeap(r, id.CollectionAddress)
//	data, err := gh.Object(id.Index)
//
// # Fractal Heap
//
// A [FractalHeap] (signature "FRHP") backs dense link and attribute storage.
// Objects are addressed by heap IDs taken from v2 B-tree records; only
// managed and tiny objects in unfiltered heaps are supported.
package heap
