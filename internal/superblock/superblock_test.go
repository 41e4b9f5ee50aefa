package superblock

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	binpkg "github.com/robert-malhotra/chunkscan/internal/binary"
)

func v2Superblock(root uint64) []byte {
	var buf bytes.Buffer
	buf.Write(Signature)
	buf.Write([]byte{2, 8, 8, 0})
	for _, v := range []uint64{0, ^uint64(0), 4096, root} {
		binary.Write(&buf, binary.LittleEndian, v)
	}
	binary.Write(&buf, binary.LittleEndian, binpkg.Lookup3Checksum(buf.Bytes()))
	return buf.Bytes()
}

func TestReadV2(t *testing.T) {
	sb, err := Read(bytes.NewReader(v2Superblock(48)))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if sb.Version != 2 || sb.OffsetSize != 8 || sb.LengthSize != 8 {
		t.Errorf("unexpected header %+v", sb)
	}
	if sb.RootGroupAddress != 48 {
		t.Errorf("expected root address 48, got %d", sb.RootGroupAddress)
	}
	if sb.EOFAddress != 4096 {
		t.Errorf("expected EOF 4096, got %d", sb.EOFAddress)
	}
}

func TestReadV2ChecksumMismatch(t *testing.T) {
	data := v2Superblock(48)
	data[len(data)-1] ^= 0xff
	if _, err := Read(bytes.NewReader(data)); !errors.Is(err, ErrChecksum) {
		t.Fatalf("expected ErrChecksum, got %v", err)
	}
}

func TestReadV0WithCachedRootSymbolTable(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(Signature)
	buf.Write([]byte{0, 0, 0, 0, 0, 8, 8, 0})
	binary.Write(&buf, binary.LittleEndian, uint16(4))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	for _, v := range []uint64{0, ^uint64(0), 8192, ^uint64(0), 0, 96} {
		binary.Write(&buf, binary.LittleEndian, v)
	}
	binary.Write(&buf, binary.LittleEndian, uint32(1))
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	binary.Write(&buf, binary.LittleEndian, uint64(136))
	binary.Write(&buf, binary.LittleEndian, uint64(680))

	sb, err := Read(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if sb.RootGroupAddress != 96 {
		t.Errorf("expected root 96, got %d", sb.RootGroupAddress)
	}
	if sb.RootBTreeAddress != 136 || sb.RootHeapAddress != 680 {
		t.Errorf("unexpected cached symbol table %d/%d", sb.RootBTreeAddress, sb.RootHeapAddress)
	}
}

func TestReadNotHDF5(t *testing.T) {
	if _, err := Read(bytes.NewReader(make([]byte, 4096))); !errors.Is(err, ErrNotHDF5) {
		t.Fatalf("expected ErrNotHDF5, got %v", err)
	}
	if _, err := Read(bytes.NewReader([]byte("short"))); !errors.Is(err, ErrNotHDF5) {
		t.Fatalf("expected ErrNotHDF5 for a tiny file, got %v", err)
	}
}

func TestReadSignatureAtUserBlockOffset(t *testing.T) {
	data := append(make([]byte, 512), v2Superblock(600)...)
	sb, err := Read(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if sb.FileOffset != 512 {
		t.Errorf("expected signature at 512, got %d", sb.FileOffset)
	}
}

func TestReadUnsupportedVersion(t *testing.T) {
	data := make([]byte, 64)
	copy(data, Signature)
	data[8] = 9
	if _, err := Read(bytes.NewReader(data)); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expected ErrUnsupportedVersion, got %v", err)
	}
}
