package h5test

import (
	"encoding/binary"
	"testing"
)

func TestSpacePlace(t *testing.T) {
	s := newSpace(48)

	if got := s.place(13, 8); got != 48 {
		t.Errorf("first block: got 0x%x, want 0x%x", got, 48)
	}
	if got := s.place(50, 8); got != 64 {
		t.Errorf("aligned block: got 0x%x, want 0x%x", got, 64)
	}
	if got := s.place(0, 8); got != 120 {
		t.Errorf("empty block: got 0x%x, want 0x%x", got, 120)
	}
	if s.eof != 120 {
		t.Errorf("eof: got 0x%x, want 0x%x", s.eof, 120)
	}
	if len(s.regions) != 2 {
		t.Errorf("got %d regions, want 2", len(s.regions))
	}
	if err := s.check(); err != nil {
		t.Errorf("check: %v", err)
	}
}

func TestSpaceCheck(t *testing.T) {
	s := newSpace(48)
	s.place(16, 8)
	s.regions = append(s.regions, region{addr: 56, size: 8})
	if err := s.check(); err == nil {
		t.Error("overlapping blocks passed the check")
	}

	s = newSpace(48)
	s.regions = append(s.regions, region{addr: 8, size: 8})
	if err := s.check(); err == nil {
		t.Error("block before the base passed the check")
	}
}

func TestBuildLayout(t *testing.T) {
	root := (&Group{}).Add("v", &Dataset{
		Type:   Int16,
		Dims:   []uint64{4},
		Layout: Chunked,
		Chunks: []uint64{2},
		Data:   Int16s(1, 2, 3, 4),
	})
	data, err := Build(root)
	if err != nil {
		t.Fatal(err)
	}
	if eof := binary.LittleEndian.Uint64(data[28:]); eof != uint64(len(data)) {
		t.Errorf("superblock end of file 0x%x, file is %d bytes", eof, len(data))
	}
}
