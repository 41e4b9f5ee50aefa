package heap

import (
	"bytes"
	"fmt"

	"github.com/robert-malhotra/chunkscan/internal/binary"
)

// LocalHeap is the name store of an old-style group.
type LocalHeap struct {
	DataAddress uint64
	data        []byte
}

/*
Local Heap Layout:
0       4     Signature ("HEAP")
4       1     Version (0)
5       3     Reserved
8       L     Data segment size
var     L     Offset to head of free list
var     O     Data segment address
*/

// ReadLocalHeap reads the heap header at address and loads its data segment.
func ReadLocalHeap(r *binary.Reader, address uint64) (*LocalHeap, error) {
	hr := r.At(int64(address))
	sig, err := hr.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("local heap at %d: %w", address, err)
	}
	if string(sig) != "HEAP" {
		return nil, fmt.Errorf("local heap at %d: bad signature %q", address, sig)
	}
	version, err := hr.ReadUint8()
	if err != nil {
		return nil, err
	}
	if version != 0 {
		return nil, fmt.Errorf("unsupported local heap version %d", version)
	}
	hr.Skip(3)

	size, err := hr.ReadLength()
	if err != nil {
		return nil, err
	}
	if _, err := hr.ReadLength(); err != nil {
		return nil, err
	}
	dataAddr, err := hr.ReadOffset()
	if err != nil {
		return nil, err
	}

	data, err := r.At(int64(dataAddr)).ReadBytes(int(size))
	if err != nil {
		return nil, fmt.Errorf("local heap data segment: %w", err)
	}
	return &LocalHeap{DataAddress: dataAddr, data: data}, nil
}

// String returns the NUL-terminated string at offset, or "" when offset is
// outside the data segment.
func (h *LocalHeap) String(offset uint64) string {
	if offset >= uint64(len(h.data)) {
		return ""
	}
	s := h.data[offset:]
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return string(s)
}
