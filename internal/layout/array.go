package layout

import (
	"fmt"

	"github.com/robert-malhotra/chunkscan/internal/binary"
	"github.com/robert-malhotra/chunkscan/internal/btree"
	"github.com/robert-malhotra/chunkscan/internal/message"
)

/*
Fixed Array Header:
0       4     Signature ("FAHD")
4       1     Version (0)
5       1     Client ID (0 unfiltered chunks, 1 filtered chunks)
6       1     Entry size
7       1     Page bits
8       L     Number of entries
var     O     Data block address
var     4     Checksum

Fixed Array Data Block:
0       4     Signature ("FADB")
4       1     Version
5       1     Client ID
6       O     Header address
var           Entries (unpaged) or page bitmap and pages
*/
func (c *Chunked) readFixedArray() (*btree.ChunkIndex, error) {
	addr := c.msg.ChunkIndexAddr
	idx := btree.NewChunkIndex(len(c.dims))
	if c.r.IsUndefined(addr) {
		return idx, nil
	}
	hr := c.r.At(int64(addr))
	if err := expectSignature(hr, "FAHD", addr); err != nil {
		return nil, err
	}
	version, err := hr.ReadUint8()
	if err != nil {
		return nil, err
	}
	if version != 0 {
		return nil, fmt.Errorf("%w: fixed array version %d", ErrUnsupported, version)
	}
	hr.Skip(1)
	entrySize, err := hr.ReadUint8()
	if err != nil {
		return nil, err
	}
	pageBits, err := hr.ReadUint8()
	if err != nil {
		return nil, err
	}
	count, err := hr.ReadLength()
	if err != nil {
		return nil, err
	}
	block, err := hr.ReadOffset()
	if err != nil {
		return nil, err
	}
	if c.r.IsUndefined(block) {
		return idx, nil
	}
	if pageBits < 64 && count > uint64(1)<<pageBits {
		return nil, fmt.Errorf("%w: paged fixed array with %d entries", ErrUnsupported, count)
	}

	br := c.r.At(int64(block))
	if err := expectSignature(br, "FADB", block); err != nil {
		return nil, err
	}
	br.Skip(2 + int64(c.r.OffsetSize()))
	dec, err := c.entryDecoder(int(entrySize))
	if err != nil {
		return nil, err
	}
	grid := c.grid()
	order := identity(len(c.dims))
	for i := uint64(0); i < count; i++ {
		if err := c.addArrayEntry(idx, br, dec, i, grid, order); err != nil {
			return nil, fmt.Errorf("fixed array at %d entry %d: %w", addr, i, err)
		}
	}
	return idx, nil
}

/*
Extensible Array Header:
0       4     Signature ("EAHD")
4       1     Version (0)
5       1     Client ID
6       1     Element size
7       1     Max elements bits
8       1     Index block elements
9       1     Data block min elements
10      1     Super block min data block pointers
11      1     Data block page max elements bits
12      6*L   Statistics: super blocks, super block size, data blocks,
              data block size, max index set, elements realized
var     O     Index block address
var     4     Checksum

Extensible Array Index Block:
0       4     Signature ("EAIB")
4       1     Version
5       1     Client ID
6       O     Header address
var           Index block elements, then data and super block addresses
*/
func (c *Chunked) readExtensibleArray() (*btree.ChunkIndex, error) {
	addr := c.msg.ChunkIndexAddr
	idx := btree.NewChunkIndex(len(c.dims))
	if c.r.IsUndefined(addr) {
		return idx, nil
	}
	hr := c.r.At(int64(addr))
	if err := expectSignature(hr, "EAHD", addr); err != nil {
		return nil, err
	}
	version, err := hr.ReadUint8()
	if err != nil {
		return nil, err
	}
	if version != 0 {
		return nil, fmt.Errorf("%w: extensible array version %d", ErrUnsupported, version)
	}
	hr.Skip(1)
	elemSize, err := hr.ReadUint8()
	if err != nil {
		return nil, err
	}
	hr.Skip(1)
	inBlock, err := hr.ReadUint8()
	if err != nil {
		return nil, err
	}
	hr.Skip(3 + 4*int64(c.r.LengthSize()))
	maxIndex, err := hr.ReadLength()
	if err != nil {
		return nil, err
	}
	hr.Skip(int64(c.r.LengthSize()))
	block, err := hr.ReadOffset()
	if err != nil {
		return nil, err
	}
	if c.r.IsUndefined(block) || maxIndex == 0 {
		return idx, nil
	}
	if maxIndex > uint64(inBlock) {
		return nil, fmt.Errorf("%w: extensible array with %d elements beyond its index block", ErrUnsupported, maxIndex)
	}

	br := c.r.At(int64(block))
	if err := expectSignature(br, "EAIB", block); err != nil {
		return nil, err
	}
	br.Skip(2 + int64(c.r.OffsetSize()))
	dec, err := c.entryDecoder(int(elemSize))
	if err != nil {
		return nil, err
	}
	grid := c.grid()
	order := unlimitedFirst(c.maxDims, len(c.dims))
	for i := uint64(0); i < maxIndex; i++ {
		if err := c.addArrayEntry(idx, br, dec, i, grid, order); err != nil {
			return nil, fmt.Errorf("extensible array at %d element %d: %w", addr, i, err)
		}
	}
	return idx, nil
}

// unlimitedFirst orders axes with the unlimited one slowest.
func unlimitedFirst(maxDims []uint64, rank int) []int {
	order := identity(rank)
	for i, m := range maxDims {
		if m == message.Unlimited && i < rank {
			return append([]int{i}, append(order[:i:i], order[i+1:]...)...)
		}
	}
	return order
}

// entryDecoder reads one array element: an address, then a chunk size and
// filter mask when the dataset is filtered.
type entryDecoder struct {
	sizeLen int
}

func (c *Chunked) entryDecoder(size int) (entryDecoder, error) {
	osz := c.r.OffsetSize()
	if size == osz {
		return entryDecoder{}, nil
	}
	n := size - osz - 4
	if n < 1 || n > 8 {
		return entryDecoder{}, fmt.Errorf("chunk index entry size %d", size)
	}
	return entryDecoder{sizeLen: n}, nil
}

func (c *Chunked) addArrayEntry(idx *btree.ChunkIndex, br *binary.Reader, dec entryDecoder, pos uint64, grid []uint64, order []int) error {
	var e btree.ChunkEntry
	var err error
	if e.Address, err = br.ReadOffset(); err != nil {
		return err
	}
	if dec.sizeLen > 0 {
		if e.Size, err = br.ReadUintN(dec.sizeLen); err != nil {
			return err
		}
		if e.FilterMask, err = br.ReadUint32(); err != nil {
			return err
		}
	}
	if c.r.IsUndefined(e.Address) {
		return nil
	}
	e.Offset = c.offsetOf(scaledAt(pos, grid, order))
	return idx.Add(e)
}

func expectSignature(r *binary.Reader, want string, addr uint64) error {
	sig, err := r.ReadBytes(4)
	if err != nil {
		return fmt.Errorf("%s at %d: %w", want, addr, err)
	}
	if string(sig) != want {
		return fmt.Errorf("structure at %d: signature %q, want %q", addr, sig, want)
	}
	return nil
}
