package heap

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/robert-malhotra/chunkscan/internal/binary"
)

// ErrUnsupportedObject is returned for huge objects and filtered heaps.
var ErrUnsupportedObject = errors.New("unsupported fractal heap object")

// FractalHeap is an opened fractal heap header. Objects are read on demand.
type FractalHeap struct {
	Address uint64
	IDLen   int

	r             *binary.Reader
	filtered      bool
	tableWidth    uint64
	startBlock    uint64
	maxDirect     uint64
	rootAddr      uint64
	rootRows      int
	maxDirectRows int
	offBytes      int
	lenBytes      int
}

/*
Fractal Heap Header Layout:
0       4     Signature ("FRHP")
4       1     Version (0)
5       2     Heap ID length
7       2     I/O filter encoded length
9       1     Flags
10      4     Maximum size of managed objects
var     L+O   Next huge object ID, huge object B-tree address
var     L+O   Free space in managed blocks, free space manager address
var     4L    Managed space, allocated managed space, iterator offset, managed objects
var     4L    Huge size, huge count, tiny size, tiny count
var     2     Table width
var     L     Starting block size
var     L     Maximum direct block size
var     2     Maximum heap size (bits)
var     2     Starting rows in root indirect block
var     O     Root block address
var     2     Current rows in root indirect block
var     var   Filter information (filtered heaps only)
var     4     Checksum
*/

// ReadFractalHeap opens the heap whose header is at address.
func ReadFractalHeap(r *binary.Reader, address uint64) (*FractalHeap, error) {
	hr := r.At(int64(address))
	sig, err := hr.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("fractal heap at %d: %w", address, err)
	}
	if string(sig) != "FRHP" {
		return nil, fmt.Errorf("fractal heap at %d: bad signature %q", address, sig)
	}
	version, err := hr.ReadUint8()
	if err != nil {
		return nil, err
	}
	if version != 0 {
		return nil, fmt.Errorf("unsupported fractal heap version %d", version)
	}

	h := &FractalHeap{Address: address, r: r}
	idLen, err := hr.ReadUint16()
	if err != nil {
		return nil, err
	}
	h.IDLen = int(idLen)
	filterLen, err := hr.ReadUint16()
	if err != nil {
		return nil, err
	}
	h.filtered = filterLen > 0
	hr.Skip(1)
	maxManaged, err := hr.ReadUint32()
	if err != nil {
		return nil, err
	}

	// Huge, free-space and object statistics are not needed for reads.
	hr.Skip(10*int64(r.LengthSize()) + 2*int64(r.OffsetSize()))

	width, err := hr.ReadUint16()
	if err != nil {
		return nil, err
	}
	h.tableWidth = uint64(width)
	if h.startBlock, err = hr.ReadLength(); err != nil {
		return nil, err
	}
	if h.maxDirect, err = hr.ReadLength(); err != nil {
		return nil, err
	}
	maxHeapBits, err := hr.ReadUint16()
	if err != nil {
		return nil, err
	}
	hr.Skip(2)
	if h.rootAddr, err = hr.ReadOffset(); err != nil {
		return nil, err
	}
	rows, err := hr.ReadUint16()
	if err != nil {
		return nil, err
	}
	h.rootRows = int(rows)

	if h.tableWidth == 0 || !isPow2(h.startBlock) || !isPow2(h.maxDirect) || h.maxDirect < h.startBlock {
		return nil, fmt.Errorf("fractal heap at %d: invalid doubling table", address)
	}

	if !h.filtered {
		end := hr.Pos()
		stored, err := hr.ReadUint32()
		if err != nil {
			return nil, err
		}
		raw, err := r.At(int64(address)).ReadBytes(int(end - int64(address)))
		if err != nil {
			return nil, err
		}
		if sum := binary.Lookup3Checksum(raw); sum != stored {
			return nil, fmt.Errorf("fractal heap at %d: checksum %#08x, stored %#08x", address, sum, stored)
		}
	}

	h.offBytes = (int(maxHeapBits) + 7) / 8
	h.lenBytes = min((log2(h.maxDirect)+7)/8, log2(uint64(maxManaged))/8+1)
	h.maxDirectRows = log2(h.maxDirect) - log2(h.startBlock) + 2
	return h, nil
}

// Object returns the object named by a heap ID.
func (h *FractalHeap) Object(id []byte) ([]byte, error) {
	if len(id) == 0 {
		return nil, fmt.Errorf("empty fractal heap id")
	}
	switch (id[0] >> 4) & 0x03 {
	case 0:
		return h.managed(id[1:])
	case 2:
		return tiny(id, h.IDLen)
	}
	return nil, fmt.Errorf("%w: heap id type %d", ErrUnsupportedObject, (id[0]>>4)&0x03)
}

func tiny(id []byte, idLen int) ([]byte, error) {
	n, start := int(id[0]&0x0F)+1, 1
	if idLen > 17 {
		if len(id) < 2 {
			return nil, fmt.Errorf("tiny heap id truncated")
		}
		n, start = (int(id[0]&0x0F)<<8|int(id[1]))+1, 2
	}
	if start+n > len(id) {
		return nil, fmt.Errorf("tiny object of %d bytes exceeds heap id", n)
	}
	return id[start : start+n], nil
}

func (h *FractalHeap) managed(id []byte) ([]byte, error) {
	if h.filtered {
		return nil, fmt.Errorf("%w: filtered heap", ErrUnsupportedObject)
	}
	c := h.r.Over(id)
	off, err := c.ReadUintN(h.offBytes)
	if err != nil {
		return nil, fmt.Errorf("heap id offset: %w", err)
	}
	n, err := c.ReadUintN(h.lenBytes)
	if err != nil {
		return nil, fmt.Errorf("heap id length: %w", err)
	}
	block, base, err := h.locate(off)
	if err != nil {
		return nil, err
	}
	return h.r.At(int64(block + off - base)).ReadBytes(int(n))
}

// locate finds the direct block holding heap offset off and returns its
// address and the heap offset at which it starts.
func (h *FractalHeap) locate(off uint64) (uint64, uint64, error) {
	if h.r.IsUndefined(h.rootAddr) {
		return 0, 0, fmt.Errorf("fractal heap at %d is empty", h.Address)
	}
	if h.rootRows == 0 {
		if off >= h.startBlock {
			return 0, 0, fmt.Errorf("heap offset %d beyond root direct block", off)
		}
		return h.rootAddr, 0, nil
	}

	addr, nrows, base := h.rootAddr, h.rootRows, uint64(0)
	for depth := 0; depth < 64; depth++ {
		children, err := h.readIndirect(addr, nrows)
		if err != nil {
			return 0, 0, err
		}
		rowStart := base
		found := false
		for row := 0; row < nrows; row++ {
			size := h.rowSize(row)
			span := size * h.tableWidth
			if off >= rowStart+span {
				rowStart += span
				continue
			}
			col := (off - rowStart) / size
			child := children[uint64(row)*h.tableWidth+col]
			if h.r.IsUndefined(child) {
				return 0, 0, fmt.Errorf("heap offset %d falls in an unallocated block", off)
			}
			childBase := rowStart + col*size
			if row < h.maxDirectRows {
				return child, childBase, nil
			}
			addr, nrows, base = child, log2(size)-log2(h.startBlock*h.tableWidth)+1, childBase
			found = true
			break
		}
		if !found {
			return 0, 0, fmt.Errorf("heap offset %d beyond indirect block at %d", off, addr)
		}
	}
	return 0, 0, fmt.Errorf("fractal heap at %d: indirect blocks nested too deeply", h.Address)
}

func (h *FractalHeap) rowSize(row int) uint64 {
	if row < 2 {
		return h.startBlock
	}
	return h.startBlock << (row - 1)
}

/*
Indirect Block Layout:
0       4     Signature ("FHIB")
4       1     Version (0)
5       O     Heap header address
var     var   Block offset (heap offset width)
var     O*n   Child block addresses, row by row
var     4     Checksum
*/
func (h *FractalHeap) readIndirect(addr uint64, nrows int) ([]uint64, error) {
	ir := h.r.At(int64(addr))
	sig, err := ir.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("indirect block at %d: %w", addr, err)
	}
	if string(sig) != "FHIB" {
		return nil, fmt.Errorf("indirect block at %d: bad signature %q", addr, sig)
	}
	ir.Skip(1 + int64(h.r.OffsetSize()+h.offBytes))
	children := make([]uint64, uint64(nrows)*h.tableWidth)
	for i := range children {
		if children[i], err = ir.ReadOffset(); err != nil {
			return nil, err
		}
	}
	return children, nil
}

func isPow2(v uint64) bool { return v != 0 && v&(v-1) == 0 }

func log2(v uint64) int {
	if v == 0 {
		return 0
	}
	return bits.Len64(v) - 1
}
