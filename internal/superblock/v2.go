package superblock

import (
	"encoding/binary"
	"fmt"
	"io"

	binpkg "github.com/robert-malhotra/chunkscan/internal/binary"
)

/*
Version 2/3 Superblock Layout:
Offset  Size  Description
0       8     Signature
8       1     Version (2 or 3)
9       1     Size of offsets
10      1     Size of lengths
11      1     File consistency flags
12      O     Base address
12+O    O     Superblock extension address
12+2O   O     EOF address
12+3O   O     Root group object header address
12+4O   4     Checksum (lookup3 over all preceding bytes)
*/

func readV2(src io.ReaderAt, offset int64, version uint8) (*Superblock, error) {
	r := binpkg.NewReader(src, binpkg.DefaultConfig()).At(offset + 9)
	sizes, err := r.ReadBytes(3)
	if err != nil {
		return nil, fmt.Errorf("reading superblock v%d: %w", version, err)
	}
	sb := &Superblock{Version: version, OffsetSize: sizes[0], LengthSize: sizes[1]}
	if !validSize(sb.OffsetSize) || !validSize(sb.LengthSize) {
		return nil, fmt.Errorf("superblock v%d: invalid field sizes %d/%d", version, sb.OffsetSize, sb.LengthSize)
	}

	body := 12 + 4*int(sb.OffsetSize)
	raw, err := r.At(offset).ReadBytes(body + 4)
	if err != nil {
		return nil, fmt.Errorf("reading superblock v%d: %w", version, err)
	}
	if binpkg.Lookup3Checksum(raw[:body]) != binary.LittleEndian.Uint32(raw[body:]) {
		return nil, ErrChecksum
	}

	fields := binpkg.NewReader(src, sb.ReaderConfig())
	o := int(sb.OffsetSize)
	sb.BaseAddress = fields.Uint(raw[12:], o)
	sb.EOFAddress = fields.Uint(raw[12+2*o:], o)
	sb.RootGroupAddress = fields.Uint(raw[12+3*o:], o)
	return sb, nil
}
