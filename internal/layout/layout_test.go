package layout

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"testing"

	binpkg "github.com/robert-malhotra/chunkscan/internal/binary"
	"github.com/robert-malhotra/chunkscan/internal/message"
)

const undef = ^uint64(0)

type image []byte

func (im image) put(at int, b ...byte) { copy(im[at:], b) }

func (im image) u64(at int, v uint64) { binary.LittleEndian.PutUint64(im[at:], v) }

func (im image) reader() *binpkg.Reader {
	return binpkg.NewReader(bytes.NewReader(im), binpkg.DefaultConfig())
}

func space(dims ...uint64) *message.Dataspace {
	return &message.Dataspace{SpaceType: message.DataspaceSimple, Dimensions: dims}
}

func readByte(t *testing.T, s Storage, coord ...uint64) byte {
	t.Helper()
	b, err := s.ReadElement(coord)
	if err != nil {
		t.Fatalf("ReadElement(%v): %v", coord, err)
	}
	if len(b) != 1 {
		t.Fatalf("ReadElement(%v) returned %d bytes", coord, len(b))
	}
	return b[0]
}

func TestCompact(t *testing.T) {
	msg := &message.DataLayout{Class: message.LayoutCompact, CompactData: []byte{1, 2, 3, 4, 5, 6}}
	s, err := New(image(nil).reader(), msg, space(2, 3), 1, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if s.Class() != message.LayoutCompact {
		t.Errorf("class = %d", s.Class())
	}
	if got := readByte(t, s, 1, 2); got != 6 {
		t.Errorf("element (1,2) = %d, want 6", got)
	}
	if _, err := s.ReadElement([]uint64{2, 0}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("out of range read: %v", err)
	}
	if _, err := s.ReadElement([]uint64{0}); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("wrong rank read: %v", err)
	}
}

func TestContiguous(t *testing.T) {
	im := make(image, 64)
	for i := 0; i < 12; i++ {
		im[50+i] = byte(i + 1)
	}
	msg := &message.DataLayout{Class: message.LayoutContiguous, Address: 50}
	s, err := New(im.reader(), msg, space(3), 4, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := s.ReadElement([]uint64{2})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{9, 10, 11, 12}) {
		t.Errorf("element 2 = %v", got)
	}

	msg.Address = undef
	s, _ = New(im.reader(), msg, space(3), 4, nil, nil)
	got, err = s.ReadElement([]uint64{1})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, make([]byte, 4)) {
		t.Errorf("unallocated element = %v, want zeros", got)
	}
}

func TestNewRejects(t *testing.T) {
	r := image(nil).reader()
	if _, err := New(r, nil, space(1), 1, nil, nil); err == nil {
		t.Error("nil layout accepted")
	}
	msg := &message.DataLayout{Class: message.LayoutChunked, ChunkDims: []uint64{2}}
	if _, err := New(r, msg, space(4, 4), 1, nil, nil); err == nil {
		t.Error("chunk rank mismatch accepted")
	}
	if _, err := New(r, &message.DataLayout{Class: message.LayoutVirtual}, space(1), 1, nil, nil); !errors.Is(err, ErrUnsupported) {
		t.Errorf("virtual layout: %v", err)
	}
}

func TestImplicit(t *testing.T) {
	im := make(image, 256)
	for i := 0; i < 16; i++ {
		im[200+i] = byte(i)
	}
	msg := &message.DataLayout{
		Class:          message.LayoutChunked,
		ChunkDims:      []uint64{2, 2},
		ChunkIndex:     message.ChunkIndexImplicit,
		ChunkIndexAddr: 200,
	}
	s, err := New(im.reader(), msg, space(4, 4), 1, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	// Chunk (1,1) is the fourth chunk; element (2,3) is its second byte.
	if got := readByte(t, s, 2, 3); got != 13 {
		t.Errorf("element (2,3) = %d, want 13", got)
	}
	if got := readByte(t, s, 1, 0); got != 2 {
		t.Errorf("element (1,0) = %d, want 2", got)
	}
	idx, err := s.(*Chunked).Index()
	if err != nil {
		t.Fatal(err)
	}
	if len(idx.Entries) != 4 {
		t.Errorf("implicit index lists %d chunks, want 4", len(idx.Entries))
	}
}

func fixedArrayImage() image {
	im := make(image, 256)
	im.put(0, 'F', 'A', 'H', 'D', 0, 0, 8, 10)
	im.u64(8, 4)
	im.u64(16, 100)
	im.put(100, 'F', 'A', 'D', 'B', 0, 0)
	im.u64(106, 0)
	im.u64(114, 200)
	im.u64(122, 204)
	im.u64(130, 208)
	im.u64(138, undef)
	im.put(200, 1, 2, 3, 4, 11, 12, 13, 14, 21, 22, 23, 24)
	return im
}

func TestFixedArray(t *testing.T) {
	msg := &message.DataLayout{
		Class:          message.LayoutChunked,
		ChunkDims:      []uint64{2, 2},
		ChunkIndex:     message.ChunkIndexFixedArray,
		ChunkIndexAddr: 0,
	}
	s, err := New(fixedArrayImage().reader(), msg, space(4, 4), 1, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		coord []uint64
		want  byte
	}{
		{[]uint64{1, 1}, 4},
		{[]uint64{0, 2}, 11},
		{[]uint64{3, 0}, 23},
		{[]uint64{3, 3}, 0}, // never written
	}
	for _, tt := range tests {
		if got := readByte(t, s, tt.coord...); got != tt.want {
			t.Errorf("element %v = %d, want %d", tt.coord, got, tt.want)
		}
	}
}

func TestFixedArrayBadSignature(t *testing.T) {
	im := fixedArrayImage()
	im.put(100, 'X')
	msg := &message.DataLayout{Class: message.LayoutChunked, ChunkDims: []uint64{2, 2}, ChunkIndex: message.ChunkIndexFixedArray}
	s, err := New(im.reader(), msg, space(4, 4), 1, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ReadElement([]uint64{0, 0}); err == nil {
		t.Error("corrupt data block accepted")
	}
}

func extensibleArrayImage(maxIndex uint64) image {
	im := make(image, 256)
	im.put(0, 'E', 'A', 'H', 'D', 0, 0, 8, 32, 4, 2, 4, 10)
	im.u64(44, maxIndex)
	im.u64(52, maxIndex)
	im.u64(60, 100)
	im.put(100, 'E', 'A', 'I', 'B', 0, 0)
	im.u64(106, 0)
	im.u64(114, 200)
	im.u64(122, 204)
	im.put(200, 1, 2, 3, 4, 5, 6, 7, 8)
	return im
}

func TestExtensibleArray(t *testing.T) {
	msg := &message.DataLayout{Class: message.LayoutChunked, ChunkDims: []uint64{2, 2}, ChunkIndex: message.ChunkIndexExtensibleArray}
	sp := space(4, 2)
	sp.MaxDims = []uint64{message.Unlimited, 2}
	s, err := New(extensibleArrayImage(2).reader(), msg, sp, 1, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := readByte(t, s, 3, 1); got != 8 {
		t.Errorf("element (3,1) = %d, want 8", got)
	}
	if got := readByte(t, s, 0, 1); got != 2 {
		t.Errorf("element (0,1) = %d, want 2", got)
	}

	s, _ = New(extensibleArrayImage(5).reader(), msg, sp, 1, nil, nil)
	if _, err := s.ReadElement([]uint64{0, 0}); !errors.Is(err, ErrUnsupported) {
		t.Errorf("elements beyond the index block: %v", err)
	}
}

func TestSingleFilteredChunk(t *testing.T) {
	raw := []byte{1, 0, 2, 0, 3, 0, 4, 0}
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	zw.Write(raw)
	zw.Close()

	im := make(image, 64+buf.Len())
	im.put(64, buf.Bytes()...)
	msg := &message.DataLayout{
		Class:           message.LayoutChunked,
		ChunkDims:       []uint64{2, 2},
		ChunkIndex:      message.ChunkIndexSingle,
		ChunkIndexAddr:  64,
		ChunkFlags:      0x02,
		SingleChunkSize: uint64(buf.Len()),
	}
	fp := &message.FilterPipeline{Filters: []message.FilterInfo{{ID: message.FilterDeflate, ClientData: []uint32{4}}}}
	cache := NewCache(DefaultCacheConfig())
	s, err := New(im.reader(), msg, space(2, 2), 2, fp, cache)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		got, err := s.ReadElement([]uint64{1, 0})
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, []byte{3, 0}) {
			t.Errorf("element (1,0) = %v", got)
		}
	}
	st := cache.Stats()
	if st.Hits != 1 || st.Misses != 1 || st.Chunks != 1 || st.Bytes != 8 {
		t.Errorf("cache stats = %+v", st)
	}
}

func TestCacheEviction(t *testing.T) {
	c := NewCache(CacheConfig{Bytes: 10, Slots: 2})
	c.Put(1, make([]byte, 4))
	c.Put(2, make([]byte, 4))
	c.Get(1)
	c.Put(3, make([]byte, 4)) // slot limit evicts 2, the least recent
	if _, ok := c.Get(2); ok {
		t.Error("chunk 2 survived eviction")
	}
	if _, ok := c.Get(1); !ok {
		t.Error("chunk 1 evicted")
	}
	c.Put(4, make([]byte, 11))
	if _, ok := c.Get(4); ok {
		t.Error("oversized chunk cached")
	}
	c.Put(5, make([]byte, 8)) // byte limit leaves room for this chunk only
	if st := c.Stats(); st.Chunks != 1 || st.Bytes != 8 {
		t.Errorf("after byte eviction: %+v", st)
	}

	var nilCache *Cache
	nilCache.Put(1, []byte{1})
	if _, ok := nilCache.Get(1); ok {
		t.Error("nil cache returned data")
	}
}

func TestArrayPosition(t *testing.T) {
	order := unlimitedFirst([]uint64{2, message.Unlimited, 3}, 3)
	if want := []int{1, 0, 2}; !equalInts(order, want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	grid := []uint64{2, 5, 3}
	for pos := uint64(0); pos < 30; pos++ {
		s := scaledAt(pos, grid, order)
		if got := arrayPosition(s, grid, order); got != pos {
			t.Errorf("position %d -> %v -> %d", pos, s, got)
		}
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
