// Package binary provides positioned, width-aware reads over HDF5 metadata.
package binary

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrShortRead is returned when fewer bytes than requested could be read.
var ErrShortRead = errors.New("short read")

// Reader reads little-endian HDF5 structures whose address and length
// fields have a file-specific width (2, 4 or 8 bytes).
//
// A Reader carries its own position; At derives an independent cursor over
// the same underlying io.ReaderAt so concurrent callers never share state.
//
// When the size of the source is known, reads past its end fail with
// ErrShortRead before any buffer is allocated, so a corrupt length field
// cannot request more memory than the file holds.
type Reader struct {
	src        io.ReaderAt
	size       int64 // -1 when unknown
	order      binary.ByteOrder
	offsetSize int
	lengthSize int
	pos        int64
}

// Config holds the field widths announced by the superblock.
type Config struct {
	ByteOrder  binary.ByteOrder
	OffsetSize int
	LengthSize int
	// Size is the number of readable bytes in the source. Zero means the
	// size is taken from the source when it has a Size method.
	Size int64
}

// DefaultConfig is used before the superblock has been decoded.
func DefaultConfig() Config {
	return Config{ByteOrder: binary.LittleEndian, OffsetSize: 8, LengthSize: 8}
}

// NewReader returns a Reader positioned at offset 0.
func NewReader(src io.ReaderAt, cfg Config) *Reader {
	if cfg.ByteOrder == nil {
		cfg.ByteOrder = binary.LittleEndian
	}
	size := cfg.Size
	if size <= 0 {
		size = -1
		if s, ok := src.(interface{ Size() int64 }); ok {
			size = s.Size()
		}
	}
	return &Reader{src: src, size: size, order: cfg.ByteOrder, offsetSize: cfg.OffsetSize, lengthSize: cfg.LengthSize}
}

// At returns a cursor at offset sharing this reader's source and widths.
func (r *Reader) At(offset int64) *Reader {
	c := *r
	c.pos = offset
	return &c
}

// Over returns a cursor over an in-memory buffer, typically a header
// message body, with this reader's widths and byte order.
func (r *Reader) Over(data []byte) *Reader {
	return &Reader{src: bytes.NewReader(data), size: int64(len(data)), order: r.order, offsetSize: r.offsetSize, lengthSize: r.lengthSize}
}

// Remaining reports how many bytes are left before the end of the source.
// It returns -1 when the size is unknown.
func (r *Reader) Remaining() int64 {
	if r.size < 0 {
		return -1
	}
	return r.size - r.pos
}

// Size returns the size of the source, or -1 when it is unknown.
func (r *Reader) Size() int64 { return r.size }

// Pos returns the current position.
func (r *Reader) Pos() int64 { return r.pos }

// Skip advances the position by n bytes.
func (r *Reader) Skip(n int64) { r.pos += n }

// Align rounds the position up to a multiple of alignment, measured from base.
func (r *Reader) Align(base, alignment int64) {
	if alignment <= 1 {
		return
	}
	if rem := (r.pos - base) % alignment; rem != 0 {
		r.pos += alignment - rem
	}
}

// ReadBytes reads exactly n bytes and advances.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	buf, err := r.Peek(n)
	if err != nil {
		return nil, err
	}
	r.pos += int64(n)
	return buf, nil
}

// Peek reads n bytes without advancing. A negative n, which is what an
// oversized length field turns into after conversion to int, is an error.
func (r *Reader) Peek(n int) ([]byte, error) {
	switch {
	case n < 0:
		return nil, fmt.Errorf("reading %d bytes at %d: %w", n, r.pos, ErrShortRead)
	case n == 0:
		return nil, nil
	case r.pos < 0 || r.size >= 0 && int64(n) > r.size-r.pos:
		return nil, fmt.Errorf("reading %d bytes at %d of %d: %w", n, r.pos, r.size, ErrShortRead)
	}
	buf := make([]byte, n)
	got, err := r.src.ReadAt(buf, r.pos)
	if got == n {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = ErrShortRead
	}
	return nil, fmt.Errorf("reading %d bytes at %d: %w", n, r.pos, err)
}

// ReadUint8 reads one byte.
func (r *Reader) ReadUint8() (uint8, error) {
	b, err := r.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadUint16 reads a 2-byte unsigned integer.
func (r *Reader) ReadUint16() (uint16, error) {
	v, err := r.ReadUintN(2)
	return uint16(v), err
}

// ReadUint32 reads a 4-byte unsigned integer.
func (r *Reader) ReadUint32() (uint32, error) {
	v, err := r.ReadUintN(4)
	return uint32(v), err
}

// ReadUint64 reads an 8-byte unsigned integer.
func (r *Reader) ReadUint64() (uint64, error) {
	return r.ReadUintN(8)
}

// ReadUintN reads an n-byte unsigned integer.
func (r *Reader) ReadUintN(n int) (uint64, error) {
	b, err := r.ReadBytes(n)
	if err != nil {
		return 0, err
	}
	return r.Uint(b, n), nil
}

// ReadOffset reads a file address.
func (r *Reader) ReadOffset() (uint64, error) { return r.ReadUintN(r.offsetSize) }

// ReadLength reads a length field.
func (r *Reader) ReadLength() (uint64, error) { return r.ReadUintN(r.lengthSize) }

// Uint decodes the first size bytes of buf in the reader's byte order.
// Sizes other than 1, 2, 4 and 8 are decoded little-endian.
func (r *Reader) Uint(buf []byte, size int) uint64 {
	switch size {
	case 1:
		return uint64(buf[0])
	case 2:
		return uint64(r.order.Uint16(buf))
	case 4:
		return uint64(r.order.Uint32(buf))
	case 8:
		return r.order.Uint64(buf)
	}
	var v uint64
	for i := size - 1; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v
}

// IsUndefined reports whether addr is the all-ones "undefined address".
func (r *Reader) IsUndefined(addr uint64) bool {
	if r.offsetSize >= 8 {
		return addr == ^uint64(0)
	}
	return addr == uint64(1)<<(8*r.offsetSize)-1
}

// OffsetSize returns the address width in bytes.
func (r *Reader) OffsetSize() int { return r.offsetSize }

// LengthSize returns the length width in bytes.
func (r *Reader) LengthSize() int { return r.lengthSize }

// ByteOrder returns the configured byte order.
func (r *Reader) ByteOrder() binary.ByteOrder { return r.order }
