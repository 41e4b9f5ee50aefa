package btree

import (
	"fmt"
	"math/bits"

	"github.com/robert-malhotra/chunkscan/internal/binary"
)

// Version 2 B-tree record types read by this package.
const (
	TypeLinkName          uint8 = 5
	TypeLinkCreationOrder uint8 = 6
	TypeAttributeName     uint8 = 8
	TypeChunkNoFilter     uint8 = 10
	TypeChunkFiltered     uint8 = 11
)

// Signature, version, type and checksum of every node.
const v2NodePrefix = 10

// V2Tree is an opened version 2 B-tree header.
type V2Tree struct {
	Address      uint64
	Type         uint8
	NodeSize     uint32
	RecordSize   int
	Depth        int
	TotalRecords uint64

	r           *binary.Reader
	root        uint64
	rootRecords int
	nrecSize    int
	cumSize     []int // per depth, width of the total-records field
}

/*
Version 2 B-tree Header Layout:
0       4     Signature ("BTHD")
4       1     Version (0)
5       1     Type
6       4     Node size
10      2     Record size
12      2     Depth
14      1     Split percent
15      1     Merge percent
16      O     Root node address
var     2     Records in root node
var     L     Total records in tree
var     4     Checksum
*/

// OpenV2 reads and verifies the B-tree header at address.
func OpenV2(r *binary.Reader, address uint64) (*V2Tree, error) {
	hr := r.At(int64(address))
	sig, err := hr.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("B-tree header at %d: %w", address, err)
	}
	if string(sig) != "BTHD" {
		return nil, fmt.Errorf("B-tree header at %d: bad signature %q", address, sig)
	}
	version, err := hr.ReadUint8()
	if err != nil {
		return nil, err
	}
	if version != 0 {
		return nil, fmt.Errorf("unsupported B-tree header version %d", version)
	}

	t := &V2Tree{Address: address, r: r}
	if t.Type, err = hr.ReadUint8(); err != nil {
		return nil, err
	}
	if t.NodeSize, err = hr.ReadUint32(); err != nil {
		return nil, err
	}
	recSize, err := hr.ReadUint16()
	if err != nil {
		return nil, err
	}
	t.RecordSize = int(recSize)
	depth, err := hr.ReadUint16()
	if err != nil {
		return nil, err
	}
	t.Depth = int(depth)
	hr.Skip(2)
	if t.root, err = hr.ReadOffset(); err != nil {
		return nil, err
	}
	rootRecords, err := hr.ReadUint16()
	if err != nil {
		return nil, err
	}
	t.rootRecords = int(rootRecords)
	if t.TotalRecords, err = hr.ReadLength(); err != nil {
		return nil, err
	}
	if err := verifyChecksum(r, address, hr); err != nil {
		return nil, fmt.Errorf("B-tree header at %d: %w", address, err)
	}

	if t.RecordSize == 0 || int(t.NodeSize) <= v2NodePrefix+t.RecordSize {
		return nil, fmt.Errorf("B-tree header at %d: node size %d cannot hold %d-byte records", address, t.NodeSize, t.RecordSize)
	}
	t.layout()
	return t, nil
}

// layout derives the width of the record-count fields in child pointers,
// which depend on how many records a node of each depth can hold.
func (t *V2Tree) layout() {
	leafMax := (uint64(t.NodeSize) - v2NodePrefix) / uint64(t.RecordSize)
	t.nrecSize = encodedSize(leafMax)
	t.cumSize = make([]int, t.Depth+1)
	cumMax := leafMax
	for d := 1; d <= t.Depth; d++ {
		ptr := uint64(t.pointerSize(d))
		maxRec := (uint64(t.NodeSize) - (v2NodePrefix + ptr)) / (uint64(t.RecordSize) + ptr)
		cumMax = (maxRec+1)*cumMax + maxRec
		t.cumSize[d] = encodedSize(cumMax)
	}
}

func (t *V2Tree) pointerSize(depth int) int {
	n := t.r.OffsetSize() + t.nrecSize
	if depth > 1 {
		n += t.cumSize[depth-1]
	}
	return n
}

// Walk calls fn with every record in key order. The slice passed to fn is
// only valid during the call.
func (t *V2Tree) Walk(fn func(rec []byte) error) error {
	if t.TotalRecords == 0 || t.r.IsUndefined(t.root) {
		return nil
	}
	return t.walk(t.root, t.rootRecords, t.Depth, fn)
}

func (t *V2Tree) walk(addr uint64, nrec, depth int, fn func([]byte) error) error {
	want := "BTLF"
	if depth > 0 {
		want = "BTIN"
	}
	nr := t.r.At(int64(addr))
	sig, err := nr.ReadBytes(4)
	if err != nil {
		return fmt.Errorf("B-tree node at %d: %w", addr, err)
	}
	if string(sig) != want {
		return fmt.Errorf("B-tree node at %d: signature %q, want %q", addr, sig, want)
	}
	nr.Skip(2)
	records, err := nr.ReadBytes(nrec * t.RecordSize)
	if err != nil {
		return fmt.Errorf("B-tree node at %d records: %w", addr, err)
	}
	record := func(i int) []byte { return records[i*t.RecordSize : (i+1)*t.RecordSize] }

	if depth == 0 {
		for i := 0; i < nrec; i++ {
			if err := fn(record(i)); err != nil {
				return err
			}
		}
		return nil
	}

	type child struct {
		addr uint64
		nrec int
	}
	children := make([]child, nrec+1)
	for i := range children {
		if children[i].addr, err = nr.ReadOffset(); err != nil {
			return err
		}
		n, err := nr.ReadUintN(t.nrecSize)
		if err != nil {
			return err
		}
		children[i].nrec = int(n)
		if depth > 1 {
			nr.Skip(int64(t.cumSize[depth-1]))
		}
	}
	for i, c := range children {
		if err := t.walk(c.addr, c.nrec, depth-1, fn); err != nil {
			return err
		}
		if i < nrec {
			if err := fn(record(i)); err != nil {
				return err
			}
		}
	}
	return nil
}

func verifyChecksum(r *binary.Reader, start uint64, at *binary.Reader) error {
	end := at.Pos()
	stored, err := at.ReadUint32()
	if err != nil {
		return err
	}
	raw, err := r.At(int64(start)).ReadBytes(int(end - int64(start)))
	if err != nil {
		return err
	}
	if sum := binary.Lookup3Checksum(raw); sum != stored {
		return fmt.Errorf("checksum %#08x, stored %#08x", sum, stored)
	}
	return nil
}

// encodedSize is the number of bytes needed to store values up to v.
func encodedSize(v uint64) int {
	if v == 0 {
		return 1
	}
	return (bits.Len64(v)-1)/8 + 1
}
