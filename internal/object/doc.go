// Package object reads HDF5 object headers.
//
// [Read] detects the header version (1, or 2 with signature "OHDR"), follows
// continuation blocks, verifies version 2 checksums and resolves committed
// datatypes referenced through shared messages. Typed accessors return the
// messages a dataset or group reader needs:
//
//	h, err := object.Read(r, addr)
//	space := h.Dataspace()
//	layout := h.DataLayout()
//	attrs, err := h.Attributes(r)
//	links, err := h.Links(r)
//
// Attributes and links are returned whether they are stored as header
// messages or densely in a fractal heap.
package object
