package superblock

import (
	"fmt"
	"io"

	binpkg "github.com/robert-malhotra/chunkscan/internal/binary"
)

/*
Version 0/1 Superblock Layout:
Offset  Size  Description
0       8     Signature
8       1     Version (0 or 1)
9       1     Free-space storage version
10      1     Root group symbol table entry version
11      1     Reserved
12      1     Shared header message format version
13      1     Size of offsets
14      1     Size of lengths
15      1     Reserved
16      2     Group leaf node K
18      2     Group internal node K
20      4     File consistency flags
24      4     Indexed storage K + reserved (version 1 only)
var     O     Base address
var     O     Free-space info address
var     O     EOF address
var     O     Driver info block address
var     var   Root group symbol table entry

Root group symbol table entry:
0       O     Link name offset
O       O     Object header address
2O      4     Cache type
2O+4    4     Reserved
2O+8    16    Scratch pad (B-tree address, local heap address when cache type 1)
*/

func readV0(src io.ReaderAt, offset int64, version uint8) (*Superblock, error) {
	r := binpkg.NewReader(src, binpkg.DefaultConfig()).At(offset + 8)
	fixed, err := r.ReadBytes(16)
	if err != nil {
		return nil, fmt.Errorf("reading superblock v%d: %w", version, err)
	}
	sb := &Superblock{Version: version, OffsetSize: fixed[5], LengthSize: fixed[6]}
	if !validSize(sb.OffsetSize) || !validSize(sb.LengthSize) {
		return nil, fmt.Errorf("superblock v%d: invalid field sizes %d/%d", version, sb.OffsetSize, sb.LengthSize)
	}
	if version == 1 {
		r.Skip(4)
	}

	r = binpkg.NewReader(src, sb.ReaderConfig()).At(r.Pos())
	if sb.BaseAddress, err = r.ReadOffset(); err != nil {
		return nil, err
	}
	r.Skip(int64(sb.OffsetSize)) // free-space info
	if sb.EOFAddress, err = r.ReadOffset(); err != nil {
		return nil, err
	}
	r.Skip(int64(sb.OffsetSize)) // driver info
	r.Skip(int64(sb.OffsetSize)) // link name offset
	if sb.RootGroupAddress, err = r.ReadOffset(); err != nil {
		return nil, err
	}

	cacheType, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	r.Skip(4)
	if cacheType == 1 {
		if sb.RootBTreeAddress, err = r.ReadOffset(); err != nil {
			return nil, err
		}
		if sb.RootHeapAddress, err = r.ReadOffset(); err != nil {
			return nil, err
		}
	}
	return sb, nil
}
