package layout

import (
	"fmt"
	"sync"

	"github.com/robert-malhotra/chunkscan/internal/binary"
	"github.com/robert-malhotra/chunkscan/internal/btree"
	"github.com/robert-malhotra/chunkscan/internal/filter"
	"github.com/robert-malhotra/chunkscan/internal/message"
)

// Chunked storage splits the dataset into equally shaped chunks.
type Chunked struct {
	geometry
	r        *binary.Reader
	msg      *message.DataLayout
	maxDims  []uint64
	pipeline *filter.Pipeline
	cache    *Cache

	once   sync.Once
	index  *btree.ChunkIndex
	idxErr error
}

func (c *Chunked) Class() message.LayoutClass { return message.LayoutChunked }

// ChunkDims returns the chunk shape in elements.
func (c *Chunked) ChunkDims() []uint64 { return c.msg.ChunkDims }

// ChunkBytes returns the decoded size of one chunk.
func (c *Chunked) ChunkBytes() uint64 {
	n := uint64(c.elemSize)
	for _, d := range c.msg.ChunkDims {
		n *= d
	}
	return n
}

// Index returns every stored chunk. Implicit indexes list the chunks that
// fall inside the current extent.
func (c *Chunked) Index() (*btree.ChunkIndex, error) {
	c.once.Do(func() { c.index, c.idxErr = c.loadIndex() })
	return c.index, c.idxErr
}

func (c *Chunked) loadIndex() (*btree.ChunkIndex, error) {
	rank := len(c.dims)
	addr := c.msg.ChunkIndexAddr
	switch c.msg.ChunkIndex {
	case message.ChunkIndexBTreeV1:
		return btree.ReadChunkIndex(c.r, addr, rank)
	case message.ChunkIndexBTreeV2:
		return btree.ReadChunkIndexV2(c.r, addr, c.msg.ChunkDims)
	case message.ChunkIndexSingle:
		idx := btree.NewChunkIndex(rank)
		if c.r.IsUndefined(addr) {
			return idx, nil
		}
		e := btree.ChunkEntry{Offset: make([]uint64, rank), Address: addr, Size: c.ChunkBytes()}
		if c.msg.ChunkFlags&0x02 != 0 {
			e.Size, e.FilterMask = c.msg.SingleChunkSize, c.msg.SingleChunkMask
		}
		return idx, idx.Add(e)
	case message.ChunkIndexImplicit:
		return c.implicitIndex()
	case message.ChunkIndexFixedArray:
		return c.readFixedArray()
	case message.ChunkIndexExtensibleArray:
		return c.readExtensibleArray()
	}
	return nil, fmt.Errorf("%w: chunk index type %d", ErrUnsupported, c.msg.ChunkIndex)
}

// ReadElement returns the element at coord, decoding its chunk if needed.
// Elements of chunks that were never written are zero.
func (c *Chunked) ReadElement(coord []uint64) ([]byte, error) {
	if err := c.check(coord); err != nil {
		return nil, err
	}
	idx, err := c.Index()
	if err != nil {
		return nil, err
	}
	e := idx.FindChunk(coord, c.msg.ChunkDims)
	if e == nil {
		return make([]byte, c.elemSize), nil
	}
	chunk, err := c.readChunk(e)
	if err != nil {
		return nil, err
	}
	within := make([]uint64, len(coord))
	for i := range coord {
		within[i] = coord[i] - e.Offset[i]
	}
	off := int(linear(within, c.msg.ChunkDims)) * c.elemSize
	return append([]byte(nil), chunk[off:off+c.elemSize]...), nil
}

func (c *Chunked) readChunk(e *btree.ChunkEntry) ([]byte, error) {
	if data, ok := c.cache.Get(e.Address); ok {
		return data, nil
	}
	want := c.ChunkBytes()
	size := e.Size
	if size == 0 {
		size = want
	}
	raw, err := c.r.At(int64(e.Address)).ReadBytes(int(size))
	if err != nil {
		return nil, fmt.Errorf("chunk at %d: %w", e.Address, err)
	}
	data, err := c.pipeline.Decode(raw, e.FilterMask)
	if err != nil {
		return nil, fmt.Errorf("chunk at %d: %w", e.Address, err)
	}
	if uint64(len(data)) < want {
		return nil, fmt.Errorf("chunk at %d decodes to %d bytes, want %d", e.Address, len(data), want)
	}
	c.cache.Put(e.Address, data)
	return data, nil
}

// grid returns the number of chunks along each axis. Array indexes are
// laid out over the maximum extent where it is finite.
func (c *Chunked) grid() []uint64 {
	g := make([]uint64, len(c.dims))
	for i, d := range c.dims {
		if i < len(c.maxDims) && c.maxDims[i] != message.Unlimited && c.maxDims[i] > d {
			d = c.maxDims[i]
		}
		cd := c.msg.ChunkDims[i]
		g[i] = (d + cd - 1) / cd
	}
	return g
}

func (c *Chunked) implicitIndex() (*btree.ChunkIndex, error) {
	rank := len(c.dims)
	idx := btree.NewChunkIndex(rank)
	if c.r.IsUndefined(c.msg.ChunkIndexAddr) {
		return idx, nil
	}
	grid := c.grid()
	order := identity(rank)
	current := make([]uint64, rank)
	var total uint64 = 1
	for i, d := range c.dims {
		current[i] = (d + c.msg.ChunkDims[i] - 1) / c.msg.ChunkDims[i]
		total *= current[i]
	}
	scaled := make([]uint64, rank)
	for n := uint64(0); n < total; n++ {
		rem := n
		for i := rank - 1; i >= 0; i-- {
			scaled[i] = rem % current[i]
			rem /= current[i]
		}
		e := btree.ChunkEntry{
			Offset:  c.offsetOf(scaled),
			Address: c.msg.ChunkIndexAddr + arrayPosition(scaled, grid, order)*c.ChunkBytes(),
		}
		if err := idx.Add(e); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func (c *Chunked) offsetOf(scaled []uint64) []uint64 {
	off := make([]uint64, len(scaled))
	for i, s := range scaled {
		off[i] = s * c.msg.ChunkDims[i]
	}
	return off
}

func identity(n int) []int {
	o := make([]int, n)
	for i := range o {
		o[i] = i
	}
	return o
}

// arrayPosition is the linear position of scaled over grid, visiting axes
// in order with the last one varying fastest.
func arrayPosition(scaled, grid []uint64, order []int) uint64 {
	var n uint64
	for _, ax := range order {
		n = n*grid[ax] + scaled[ax]
	}
	return n
}

// scaledAt inverts arrayPosition.
func scaledAt(pos uint64, grid []uint64, order []int) []uint64 {
	s := make([]uint64, len(grid))
	if len(order) == 0 {
		return s
	}
	for i := len(order) - 1; i > 0; i-- {
		ax := order[i]
		if grid[ax] == 0 {
			continue
		}
		s[ax] = pos % grid[ax]
		pos /= grid[ax]
	}
	// The slowest axis may be unlimited and takes whatever is left.
	s[order[0]] = pos
	return s
}
