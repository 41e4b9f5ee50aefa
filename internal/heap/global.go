package heap

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/chunkscan/internal/binary"
)

// ErrObjectNotFound is returned for a heap index absent from its collection.
var ErrObjectNotFound = errors.New("heap object not found")

// GlobalHeap is one global heap collection.
type GlobalHeap struct {
	Address uint64
	objects map[uint32][]byte
}

// GlobalHeapID locates an object in a global heap collection.
type GlobalHeapID struct {
	CollectionAddress uint64
	Index             uint32
}

/*
Global Heap Collection Layout:
0       4     Signature ("GCOL")
4       1     Version (1)
5       3     Reserved
8       L     Collection size, header included
var           Objects:
              index(2) refcount(2) reserved(4) size(L) data, padded to 8
              Index 0 is the free-space object and ends the list.
*/

// ReadGlobalHeap loads every object of the collection at address.
func ReadGlobalHeap(r *binary.Reader, address uint64) (*GlobalHeap, error) {
	if address == 0 || r.IsUndefined(address) {
		return nil, fmt.Errorf("global heap address %#x is not defined", address)
	}
	hr := r.At(int64(address))
	sig, err := hr.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("global heap at %d: %w", address, err)
	}
	if string(sig) != "GCOL" {
		return nil, fmt.Errorf("global heap at %d: bad signature %q", address, sig)
	}
	version, err := hr.ReadUint8()
	if err != nil {
		return nil, err
	}
	if version != 1 {
		return nil, fmt.Errorf("unsupported global heap version %d", version)
	}
	hr.Skip(3)
	size, err := hr.ReadLength()
	if err != nil {
		return nil, err
	}

	end := int64(address) + int64(size)
	objHeader := int64(8 + r.LengthSize())
	h := &GlobalHeap{Address: address, objects: make(map[uint32][]byte)}
	for hr.Pos()+objHeader <= end {
		index, err := hr.ReadUint16()
		if err != nil {
			return nil, err
		}
		if index == 0 {
			break
		}
		hr.Skip(6)
		n, err := hr.ReadLength()
		if err != nil {
			return nil, err
		}
		if n > uint64(end-hr.Pos()) {
			return nil, fmt.Errorf("global heap object %d: size %d overruns collection at %d", index, n, address)
		}
		data, err := hr.ReadBytes(int(n))
		if err != nil {
			return nil, fmt.Errorf("global heap object %d: %w", index, err)
		}
		h.objects[uint32(index)] = data
		hr.Skip(int64((8 - n%8) % 8))
	}
	return h, nil
}

// Object returns the bytes of the object with the given index.
func (h *GlobalHeap) Object(index uint32) ([]byte, error) {
	data, ok := h.objects[index]
	if !ok {
		return nil, fmt.Errorf("%w: index %d in collection %#x", ErrObjectNotFound, index, h.Address)
	}
	return data, nil
}

// ParseGlobalHeapID decodes a heap ID: collection address(O) then index(4).
func ParseGlobalHeapID(data []byte, r *binary.Reader) (GlobalHeapID, error) {
	c := r.Over(data)
	addr, err := c.ReadOffset()
	if err != nil {
		return GlobalHeapID{}, fmt.Errorf("global heap id: %w", err)
	}
	index, err := c.ReadUint32()
	if err != nil {
		return GlobalHeapID{}, fmt.Errorf("global heap id: %w", err)
	}
	return GlobalHeapID{CollectionAddress: addr, Index: index}, nil
}
