package heap

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	binpkg "github.com/robert-malhotra/chunkscan/internal/binary"
)

// image is a sparse little-endian file image for building heap fixtures.
type image []byte

func newImage(size int) image { return make(image, size) }

func (im image) put(at int, b ...byte) { copy(im[at:], b) }

func (im image) u16(at int, v uint16) { binary.LittleEndian.PutUint16(im[at:], v) }

func (im image) u32(at int, v uint32) { binary.LittleEndian.PutUint32(im[at:], v) }

func (im image) u64(at int, v uint64) { binary.LittleEndian.PutUint64(im[at:], v) }

func (im image) reader() *binpkg.Reader {
	return binpkg.NewReader(bytes.NewReader(im), binpkg.DefaultConfig())
}

func TestLocalHeap(t *testing.T) {
	im := newImage(256)
	im.put(0, 'H', 'E', 'A', 'P', 0)
	im.u64(8, 24)
	im.u64(16, 0)
	im.u64(24, 64)
	im.put(64, 0)
	im.put(65, []byte("lat\x00lon\x00")...)
	im.put(73, []byte("time")...)

	lh, err := ReadLocalHeap(im.reader(), 0)
	if err != nil {
		t.Fatalf("ReadLocalHeap: %v", err)
	}
	tests := []struct {
		offset uint64
		want   string
	}{
		{0, ""},
		{1, "lat"},
		{5, "lon"},
		{9, "time"},
		{500, ""},
	}
	for _, tt := range tests {
		if got := lh.String(tt.offset); got != tt.want {
			t.Errorf("String(%d) = %q, want %q", tt.offset, got, tt.want)
		}
	}
}

func TestLocalHeapBadSignature(t *testing.T) {
	im := newImage(64)
	im.put(0, 'H', 'E', 'A', 'X')
	if _, err := ReadLocalHeap(im.reader(), 0); err == nil {
		t.Error("expected error for bad signature")
	}
}

func writeGlobalHeap(im image, at int) {
	im.put(at, 'G', 'C', 'O', 'L', 1)
	im.u64(at+8, 4096)
	obj := at + 16
	im.u16(obj, 1)
	im.u64(obj+8, 5)
	im.put(obj+16, []byte("hello")...)
	obj += 16 + 8
	im.u16(obj, 2)
	im.u64(obj+8, 12)
	im.u64(obj+16, 0x1000)
	im.u32(obj+24, 7)
	obj += 16 + 16
	im.u16(obj, 0)
}

func TestGlobalHeap(t *testing.T) {
	im := newImage(8192)
	writeGlobalHeap(im, 0x800)
	r := im.reader()

	gh, err := ReadGlobalHeap(r, 0x800)
	if err != nil {
		t.Fatalf("ReadGlobalHeap: %v", err)
	}
	data, err := gh.Object(1)
	if err != nil || string(data) != "hello" {
		t.Errorf("Object(1) = %q, %v", data, err)
	}
	ref, err := gh.Object(2)
	if err != nil {
		t.Fatalf("Object(2): %v", err)
	}
	id, err := ParseGlobalHeapID(ref, r)
	if err != nil {
		t.Fatalf("ParseGlobalHeapID: %v", err)
	}
	if id.CollectionAddress != 0x1000 || id.Index != 7 {
		t.Errorf("id = %+v", id)
	}
	if _, err := gh.Object(3); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Object(3) error = %v, want ErrObjectNotFound", err)
	}
}

func TestGlobalHeapObjectOverrun(t *testing.T) {
	for _, size := range []uint64{4096, 1 << 44, 1 << 63} {
		im := newImage(8192)
		writeGlobalHeap(im, 0x800)
		im.u64(0x800+16+8, size)
		if _, err := ReadGlobalHeap(im.reader(), 0x800); err == nil {
			t.Errorf("object size %#x: expected error", size)
		}
	}
}

func TestGlobalHeapUndefinedAddress(t *testing.T) {
	im := newImage(64)
	if _, err := ReadGlobalHeap(im.reader(), ^uint64(0)); err == nil {
		t.Error("expected error for undefined address")
	}
}

// writeFractalHeader writes a heap header with 7-byte ids, 512-byte starting
// blocks, 64 KiB direct blocks and 32-bit heap offsets.
func writeFractalHeader(im image, at int, root uint64, rows uint16) {
	im.put(at, 'F', 'R', 'H', 'P', 0)
	im.u16(at+5, 7)
	im.u16(at+7, 0)
	im.u32(at+10, 4096)
	p := at + 14 + 10*8 + 2*8
	im.u16(p, 4)
	im.u64(p+2, 512)
	im.u64(p+10, 65536)
	im.u16(p+18, 32)
	im.u16(p+20, 0)
	im.u64(p+22, root)
	im.u16(p+30, rows)
	end := p + 32
	im.u32(end, binpkg.Lookup3Checksum(im[at:end]))
}

func managedID(off uint32, n uint16) []byte {
	id := make([]byte, 7)
	binary.LittleEndian.PutUint32(id[1:], off)
	binary.LittleEndian.PutUint16(id[5:], n)
	return id
}

func TestFractalHeapDirectRoot(t *testing.T) {
	im := newImage(4096)
	writeFractalHeader(im, 0, 0x200, 0)
	im.put(0x200, 'F', 'H', 'D', 'B')
	im.put(0x200+20, []byte("temperature")...)

	h, err := ReadFractalHeap(im.reader(), 0)
	if err != nil {
		t.Fatalf("ReadFractalHeap: %v", err)
	}
	got, err := h.Object(managedID(20, 11))
	if err != nil {
		t.Fatalf("Object: %v", err)
	}
	if string(got) != "temperature" {
		t.Errorf("Object = %q", got)
	}
}

func TestFractalHeapIndirectRoot(t *testing.T) {
	im := newImage(8192)
	writeFractalHeader(im, 0, 0x100, 1)
	im.put(0x100, 'F', 'H', 'I', 'B', 0)
	for i, child := range []uint64{0x400, 0x600, ^uint64(0), ^uint64(0)} {
		im.u64(0x100+5+8+4+8*i, child)
	}
	im.put(0x600+88, []byte("lon")...)

	h, err := ReadFractalHeap(im.reader(), 0)
	if err != nil {
		t.Fatalf("ReadFractalHeap: %v", err)
	}
	got, err := h.Object(managedID(600, 3))
	if err != nil {
		t.Fatalf("Object: %v", err)
	}
	if string(got) != "lon" {
		t.Errorf("Object = %q", got)
	}
	if _, err := h.Object(managedID(1100, 3)); err == nil {
		t.Error("expected error for offset in unallocated block")
	}
}

func TestFractalHeapTinyObject(t *testing.T) {
	h := &FractalHeap{IDLen: 8}
	id := []byte{0x20 | 2, 'a', 'b', 'c', 0, 0, 0, 0}
	got, err := h.Object(id)
	if err != nil || string(got) != "abc" {
		t.Errorf("Object = %q, %v", got, err)
	}
}

func TestFractalHeapHugeObject(t *testing.T) {
	h := &FractalHeap{IDLen: 8}
	if _, err := h.Object([]byte{0x10, 0, 0, 0, 0, 0, 0, 0}); !errors.Is(err, ErrUnsupportedObject) {
		t.Errorf("error = %v, want ErrUnsupportedObject", err)
	}
}

func TestFractalHeapChecksumMismatch(t *testing.T) {
	im := newImage(1024)
	writeFractalHeader(im, 0, 0x200, 0)
	im.u16(14+10*8+2*8, 8) // table width changed after checksumming
	if _, err := ReadFractalHeap(im.reader(), 0); err == nil {
		t.Error("expected checksum error")
	}
}
