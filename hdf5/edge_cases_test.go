package hdf5

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/robert-malhotra/chunkscan/internal/h5test"
)

// === ERROR PATH TESTS ===

// TestOpenInvalidHDF5Signature tests opening files with invalid HDF5 signatures.
func TestOpenInvalidHDF5Signature(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
	}{
		{"empty file", []byte{}},
		{"random bytes", []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77}},
		{"almost valid signature", []byte{0x89, 'H', 'D', 'F', '\r', '\n', 0x1a, 'X'}},
		{"text file", []byte("This is not an HDF5 file")},
		{"binary garbage", bytes.Repeat([]byte{0xFF}, 1024)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "invalid.h5")
			if err := os.WriteFile(path, tt.content, 0o644); err != nil {
				t.Fatal(err)
			}
			_, err := Open(path)
			if !IsNotHDF5(err) {
				t.Errorf("expected ErrNotHDF5, got %v", err)
			}
		})
	}
}

// TestOpenTruncatedFile tests opening truncated HDF5 files.
func TestOpenTruncatedFile(t *testing.T) {
	// HDF5 signature only (8 bytes) - truncated before version
	signature := []byte{0x89, 'H', 'D', 'F', '\r', '\n', 0x1a, '\n'}

	full, err := h5test.Build(newFixture().root)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		content []byte
	}{
		{"signature only", signature},
		{"signature plus 1 byte", append(append([]byte(nil), signature...), 0x02)},
		{"signature plus 4 bytes", append(append([]byte(nil), signature...), 0x02, 0x08, 0x08, 0x00)},
		{"superblock only", full[:48]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "truncated.h5")
			if err := os.WriteFile(path, tt.content, 0o644); err != nil {
				t.Fatal(err)
			}
			if f, err := Open(path); err == nil {
				f.Close()
				t.Error("expected error for truncated file")
			}
		})
	}
}

func TestOpenBadChecksum(t *testing.T) {
	data, err := h5test.Build(newFixture().root)
	if err != nil {
		t.Fatal(err)
	}
	data[40] ^= 0xFF
	path := filepath.Join(t.TempDir(), "bad.h5")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = Open(path)
	if err == nil || IsNotHDF5(err) {
		t.Errorf("expected a checksum error, got %v", err)
	}
}

func TestOpenNonExistentFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.h5"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
}

func TestOpenDirectory(t *testing.T) {
	_, err := Open(t.TempDir())
	if !IsNotHDF5(err) {
		t.Errorf("expected ErrNotHDF5 for a directory, got %v", err)
	}
}

func TestUserBlock(t *testing.T) {
	data, err := h5test.Build(newFixture().root)
	if err != nil {
		t.Fatal(err)
	}
	// A 512-byte user block shifts every address.
	path := filepath.Join(t.TempDir(), "userblock.h5")
	if err := os.WriteFile(path, append(make([]byte, 512), data...), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	ds, err := f.OpenDataset("temperature")
	if err != nil {
		t.Fatal(err)
	}
	if v, err := ds.ReadPoint(1, 1); err != nil || v != int16(5) {
		t.Errorf("ReadPoint(1,1) = %v, %v", v, err)
	}
}

func TestDoubleClose(t *testing.T) {
	f, err := Open(writeFixture(t, newFixture().root))
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestOperationsAfterClose(t *testing.T) {
	f, err := Open(writeFixture(t, newFixture().root))
	if err != nil {
		t.Fatal(err)
	}
	f.Close()

	if _, err := f.OpenDataset("temperature"); !errors.Is(err, ErrClosed) {
		t.Errorf("OpenDataset after close: %v", err)
	}
	if _, err := f.OpenGroup("forecast"); !errors.Is(err, ErrClosed) {
		t.Errorf("OpenGroup after close: %v", err)
	}
	if _, err := f.GetAttr("/@title"); !errors.Is(err, ErrClosed) {
		t.Errorf("GetAttr after close: %v", err)
	}
	if err := f.WalkAttrs(func(AttrInfo) error { return nil }); !errors.Is(err, ErrClosed) {
		t.Errorf("WalkAttrs after close: %v", err)
	}
}

func TestOpenNonExistentObjects(t *testing.T) {
	f := openFixture(t, newFixture().root)

	for _, p := range []string{"nonexistent", "/forecast/nonexistent", "/a/b/c"} {
		if _, err := f.OpenDataset(p); !errors.Is(err, ErrNotFound) {
			t.Errorf("OpenDataset(%q): %v", p, err)
		}
		if _, err := f.OpenGroup(p); !errors.Is(err, ErrNotFound) {
			t.Errorf("OpenGroup(%q): %v", p, err)
		}
	}
	if _, err := f.OpenDataset("lat/inner"); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("path through a dataset: %v", err)
	}
}

func TestRootGroupPath(t *testing.T) {
	f := openFixture(t, newFixture().root)

	for _, p := range []string{"/", "", "//"} {
		g, err := f.OpenGroup(p)
		if err != nil {
			t.Errorf("OpenGroup(%q): %v", p, err)
			continue
		}
		if g.Path() != "/" {
			t.Errorf("OpenGroup(%q).Path() = %q", p, g.Path())
		}
	}
}

// TestDeepPathAccess tests accessing deeply nested paths.
func TestDeepPathAccess(t *testing.T) {
	leaf := &h5test.Dataset{Type: h5test.Int32, Dims: []uint64{2}, Data: h5test.Int32s(7, 9)}
	g := (&h5test.Group{}).Add("leaf", leaf)
	for _, name := range []string{"e", "d", "c", "b", "a"} {
		g = (&h5test.Group{}).AddGroup(name, g)
	}
	f := openFixture(t, g)

	ds, err := f.OpenDataset("/a/b/c/d/e/leaf")
	if err != nil {
		t.Fatal(err)
	}
	if ds.Path() != "/a/b/c/d/e/leaf" {
		t.Errorf("Path() = %q", ds.Path())
	}
	sub, err := f.OpenGroup("a/b/c")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := sub.OpenDataset("d/e/leaf"); err != nil {
		t.Errorf("relative path from subgroup: %v", err)
	}
}

func TestSharedHardLink(t *testing.T) {
	shared := &h5test.Dataset{Type: h5test.Uint8, Dims: []uint64{1}, Data: []byte{42}}
	root := (&h5test.Group{}).Add("one", shared).Add("two", shared)
	f := openFixture(t, root)

	one, err := f.OpenDataset("one")
	if err != nil {
		t.Fatal(err)
	}
	two, err := f.OpenDataset("two")
	if err != nil {
		t.Fatal(err)
	}
	if one.Address() != two.Address() {
		t.Errorf("hard links to one object have addresses %d and %d", one.Address(), two.Address())
	}
}

func TestMaxLinkDepthEnforcement(t *testing.T) {
	root := &h5test.Group{}
	root.Add("target", &h5test.Dataset{Type: h5test.Uint8, Dims: []uint64{1}, Data: []byte{1}})
	prev := "target"
	for i := 0; i <= MaxLinkDepth; i++ {
		name := "link" + string(rune('a'+i%26)) + string(rune('a'+i/26))
		root.Members = append(root.Members, h5test.Member{Name: name, SoftLink: prev})
		prev = name
	}
	f := openFixture(t, root)

	if _, err := f.OpenDataset(prev); !errors.Is(err, ErrLinkDepth) {
		t.Errorf("chain of %d links: %v", MaxLinkDepth+1, err)
	}
	if _, err := f.OpenDataset("linkaa"); err != nil {
		t.Errorf("single link: %v", err)
	}
}

func TestFilePath(t *testing.T) {
	path := writeFixture(t, newFixture().root)
	f, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if f.Path() != path {
		t.Errorf("Path() = %q, want %q", f.Path(), path)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if f.Size() != info.Size() {
		t.Errorf("Size() = %d, want %d", f.Size(), info.Size())
	}
}
