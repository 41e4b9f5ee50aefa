package object

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	binpkg "github.com/robert-malhotra/chunkscan/internal/binary"
	"github.com/robert-malhotra/chunkscan/internal/message"
)

type image []byte

func (im image) put(at int, b ...byte) int { return at + copy(im[at:], b) }

func (im image) u16(at int, v uint16) { binary.LittleEndian.PutUint16(im[at:], v) }

func (im image) u32(at int, v uint32) { binary.LittleEndian.PutUint32(im[at:], v) }

func (im image) u64(at int, v uint64) { binary.LittleEndian.PutUint64(im[at:], v) }

func (im image) reader() *binpkg.Reader {
	return binpkg.NewReader(bytes.NewReader(im), binpkg.DefaultConfig())
}

// v1Message writes a version 1 message and returns the offset after it.
func (im image) v1Message(at int, typ uint16, flags uint8, body []byte) int {
	im.u16(at, typ)
	size := (len(body) + 7) &^ 7
	im.u16(at+2, uint16(size))
	im.put(at+4, flags)
	copy(im[at+8:], body)
	return at + 8 + size
}

func (im image) v1Prefix(at int, count uint16, size uint32) int {
	im.put(at, 1)
	im.u16(at+2, count)
	im.u32(at+4, 1)
	im.u32(at+8, size)
	return at + 16
}

func le64(v uint64) []byte { return binary.LittleEndian.AppendUint64(nil, v) }

var (
	space1D    = append([]byte{1, 1, 0, 0, 0, 0, 0, 0}, le64(40)...)
	floatType  = append([]byte{0x11, 0x20, 0x1F, 0x00, 4, 0, 0, 0}, make([]byte, 12)...)
	contiguous = append(append([]byte{3, 1}, le64(0x2000)...), le64(160)...)
)

func TestReadV1WithContinuation(t *testing.T) {
	im := make(image, 4096)
	p := im.v1Prefix(0x100, 3, 56)
	p = im.v1Message(p, uint16(message.TypeDataspace), 0, space1D)
	im.v1Message(p, uint16(message.TypeContinuation), 0, append(le64(0x400), le64(32)...))
	im.v1Message(0x400, uint16(message.TypeDataLayout), 0, contiguous)

	h, err := Read(im.reader(), 0x100)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if h.Version != 1 {
		t.Errorf("Version = %d", h.Version)
	}
	ds := h.Dataspace()
	if ds == nil || ds.Dimensions[0] != 40 {
		t.Fatalf("Dataspace = %+v", ds)
	}
	l := h.DataLayout()
	if l == nil || l.Class != message.LayoutContiguous || l.Address != 0x2000 {
		t.Fatalf("DataLayout = %+v", l)
	}
	if !h.IsDataset() || h.IsGroup() {
		t.Errorf("IsDataset %v IsGroup %v", h.IsDataset(), h.IsGroup())
	}
	if h.GetMessage(message.TypeContinuation) != nil {
		t.Error("continuation message kept in header")
	}
}

func TestReadV1ContinuationCycle(t *testing.T) {
	im := make(image, 4096)
	p := im.v1Prefix(0x100, 1, 24)
	im.v1Message(p, uint16(message.TypeContinuation), 0, append(le64(0x400), le64(24)...))
	im.v1Message(0x400, uint16(message.TypeContinuation), 0, append(le64(0x400), le64(24)...))

	if _, err := Read(im.reader(), 0x100); err != nil {
		t.Fatalf("Read: %v", err)
	}
}

func TestSharedDatatypeResolved(t *testing.T) {
	im := make(image, 4096)
	p := im.v1Prefix(0x600, 1, 32)
	im.v1Message(p, uint16(message.TypeDatatype), 0, floatType)

	p = im.v1Prefix(0x100, 2, 48)
	p = im.v1Message(p, uint16(message.TypeDataspace), 0, space1D)
	im.v1Message(p, uint16(message.TypeDatatype), message.FlagShared, append([]byte{2, 2}, le64(0x600)...))

	h, err := Read(im.reader(), 0x100)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	dt := h.Datatype()
	if dt == nil || dt.Class != message.ClassFloatPoint || dt.Size != 4 {
		t.Errorf("Datatype = %+v", dt)
	}
}

// writeV2 writes an OHDR header whose chunk #0 holds body and returns the
// offset of its checksum.
func (im image) writeV2(at int, body []byte) int {
	p := im.put(at, 'O', 'H', 'D', 'R', 2, 0, byte(len(body)))
	p = im.put(p, body...)
	im.u32(p, binpkg.Lookup3Checksum(im[at:p]))
	return p
}

func TestReadV2(t *testing.T) {
	im := make(image, 1024)
	space := []byte{2, 1, 0, 1}
	space = append(space, le64(12)...)
	body := append([]byte{byte(message.TypeDataspace)}, byte(len(space)), 0, 0)
	body = append(body, space...)
	body = append(body, 0, 0) // gap

	im.writeV2(0, body)
	h, err := Read(im.reader(), 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if h.Version != 2 || h.Dataspace() == nil || h.Dataspace().Dimensions[0] != 12 {
		t.Errorf("header = %+v", h)
	}
}

func TestReadV2ChecksumMismatch(t *testing.T) {
	im := make(image, 1024)
	body := []byte{byte(message.TypeNIL), 4, 0, 0, 0, 0, 0, 0}
	im.writeV2(0, body)
	im[10] ^= 0xFF
	if _, err := Read(im.reader(), 0); !errors.Is(err, ErrChecksumMismatch) {
		t.Errorf("error = %v, want ErrChecksumMismatch", err)
	}
}

func TestReadInvalid(t *testing.T) {
	im := make(image, 64)
	im.put(0, 7, 7, 7, 7)
	if _, err := Read(im.reader(), 0); !errors.Is(err, ErrInvalidHeader) {
		t.Errorf("error = %v, want ErrInvalidHeader", err)
	}
}

func TestGetMessages(t *testing.T) {
	h := &Header{Messages: []message.Message{
		&message.Attribute{Name: "units"},
		&message.Dataspace{},
		&message.Attribute{Name: "scale_factor"},
	}}
	attrs, err := h.Attributes(binpkg.NewReader(bytes.NewReader(nil), binpkg.DefaultConfig()))
	if err != nil {
		t.Fatalf("Attributes: %v", err)
	}
	if len(attrs) != 2 || attrs[1].Name != "scale_factor" {
		t.Errorf("Attributes = %v", attrs)
	}
	if h.FilterPipeline() != nil {
		t.Error("unexpected filter pipeline")
	}
	if len(h.GetMessages(message.TypeLink)) != 0 {
		t.Error("unexpected links")
	}
}

func TestLinksSortedByCreationOrder(t *testing.T) {
	h := &Header{Messages: []message.Message{
		&message.Link{Name: "b", CreationOrder: 2, HasOrder: true},
		&message.Link{Name: "a", CreationOrder: 0, HasOrder: true},
		&message.Link{Name: "c", CreationOrder: 1, HasOrder: true},
	}}
	links, err := h.Links(binpkg.NewReader(bytes.NewReader(nil), binpkg.DefaultConfig()))
	if err != nil {
		t.Fatalf("Links: %v", err)
	}
	got := ""
	for _, l := range links {
		got += l.Name
	}
	if got != "acb" {
		t.Errorf("order = %q, want %q", got, "acb")
	}
	if !h.IsGroup() {
		t.Error("header with only links should be a group")
	}
}
