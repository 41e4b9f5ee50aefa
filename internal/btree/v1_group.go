package btree

import (
	"fmt"

	"github.com/robert-malhotra/chunkscan/internal/binary"
	"github.com/robert-malhotra/chunkscan/internal/heap"
)

// GroupEntry is one member of a symbol-table group.
type GroupEntry struct {
	Name          string
	ObjectAddress uint64
	SoftLink      string // set for soft links; ObjectAddress is then 0
}

// cache type 2 marks a soft link whose target offset sits in the scratch pad.
const cacheSoftLink uint32 = 2

// ReadGroupEntries lists the members of the group whose B-tree is at
// btreeAddr, in name order.
func ReadGroupEntries(r *binary.Reader, btreeAddr uint64, names *heap.LocalHeap) ([]GroupEntry, error) {
	var entries []GroupEntry
	err := walkV1(r, btreeAddr, nodeGroup, r.LengthSize(), func(_ []byte, snod uint64) error {
		got, err := readSymbolNode(r, snod, names)
		if err != nil {
			return err
		}
		entries = append(entries, got...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

/*
Symbol Table Node Layout:
0       4     Signature ("SNOD")
4       1     Version (1)
5       1     Reserved
6       2     Number of symbols
8       var   Entries: name offset(O) header address(O) cache type(4)
              reserved(4) scratch pad(16)
*/
func readSymbolNode(r *binary.Reader, address uint64, names *heap.LocalHeap) ([]GroupEntry, error) {
	nr := r.At(int64(address))
	sig, err := nr.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("symbol table node at %d: %w", address, err)
	}
	if string(sig) != "SNOD" {
		return nil, fmt.Errorf("symbol table node at %d: bad signature %q", address, sig)
	}
	version, err := nr.ReadUint8()
	if err != nil {
		return nil, err
	}
	if version != 1 {
		return nil, fmt.Errorf("unsupported symbol table node version %d", version)
	}
	nr.Skip(1)
	count, err := nr.ReadUint16()
	if err != nil {
		return nil, err
	}

	entries := make([]GroupEntry, 0, count)
	for i := 0; i < int(count); i++ {
		nameOff, err := nr.ReadOffset()
		if err != nil {
			return nil, err
		}
		addr, err := nr.ReadOffset()
		if err != nil {
			return nil, err
		}
		cache, err := nr.ReadUint32()
		if err != nil {
			return nil, err
		}
		nr.Skip(4)
		scratch, err := nr.ReadBytes(16)
		if err != nil {
			return nil, err
		}

		e := GroupEntry{Name: names.String(nameOff), ObjectAddress: addr}
		if e.Name == "" {
			continue
		}
		if cache == cacheSoftLink {
			e.SoftLink = names.String(uint64(r.ByteOrder().Uint32(scratch)))
			e.ObjectAddress = 0
		}
		entries = append(entries, e)
	}
	return entries, nil
}
