package object

import (
	"fmt"

	"github.com/robert-malhotra/chunkscan/internal/binary"
	"github.com/robert-malhotra/chunkscan/internal/message"
)

/*
Version 2 Object Header Layout:
0       4     Signature ("OHDR")
4       1     Version (2)
5       1     Flags
              bits 0-1: width of the chunk #0 size field (1 << n bytes)
              bit 2: message creation order tracked
              bit 4: attribute phase change values stored
              bit 5: timestamps stored
var     16    Access, modification, change and birth times (bit 5)
var     4     Max compact and min dense attributes (bit 4)
var     1-8   Size of chunk #0
var     var   Header messages, possibly followed by a gap
var     4     Checksum

Each message:
0       1     Message type
1       2     Size of message data
3       1     Flags
4       2     Creation order (header flag bit 2)
var     var   Message data

Continuation blocks: "OCHK", messages, checksum.
*/

func readV2(r *binary.Reader, address uint64) (*Header, error) {
	hr := r.At(int64(address) + 4)
	version, err := hr.ReadUint8()
	if err != nil {
		return nil, err
	}
	if version != 2 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	flags, err := hr.ReadUint8()
	if err != nil {
		return nil, err
	}
	if flags&0x20 != 0 {
		hr.Skip(16)
	}
	if flags&0x10 != 0 {
		hr.Skip(4)
	}
	size, err := hr.ReadUintN(1 << (flags & 0x03))
	if err != nil {
		return nil, err
	}

	h := &Header{Address: address, Version: 2}
	ordered := flags&0x04 != 0
	first := block{start: hr.Pos(), end: hr.Pos() + int64(size)}
	if err := verifyBlock(r, int64(address), first.end); err != nil {
		return nil, fmt.Errorf("object header at %d: %w", address, err)
	}

	err = walkBlocks(first, func(b block) ([]block, error) {
		if b != first {
			if err := openContinuation(r, &b); err != nil {
				return nil, err
			}
		}
		return readV2Block(r, b, ordered, h)
	})
	if err != nil {
		return nil, fmt.Errorf("object header at %d: %w", address, err)
	}
	return h, nil
}

// openContinuation checks an OCHK block and narrows b to its messages.
func openContinuation(r *binary.Reader, b *block) error {
	sig, err := r.At(b.start).ReadBytes(4)
	if err != nil {
		return err
	}
	if string(sig) != "OCHK" {
		return fmt.Errorf("%w: continuation block at %d has signature %q", ErrInvalidHeader, b.start, sig)
	}
	if err := verifyBlock(r, b.start, b.end-4); err != nil {
		return fmt.Errorf("continuation block at %d: %w", b.start, err)
	}
	b.start += 4
	b.end -= 4
	return nil
}

// verifyBlock compares the lookup3 checksum of [start, end) against the
// four bytes stored at end.
func verifyBlock(r *binary.Reader, start, end int64) error {
	if end <= start {
		return fmt.Errorf("%w: empty block", ErrInvalidHeader)
	}
	raw, err := r.At(start).ReadBytes(int(end - start + 4))
	if err != nil {
		return err
	}
	n := len(raw) - 4
	stored := r.ByteOrder().Uint32(raw[n:])
	if sum := binary.Lookup3Checksum(raw[:n]); sum != stored {
		return fmt.Errorf("%w: computed %#08x, stored %#08x", ErrChecksumMismatch, sum, stored)
	}
	return nil
}

func readV2Block(r *binary.Reader, b block, ordered bool, h *Header) ([]block, error) {
	prefix := int64(4)
	if ordered {
		prefix += 2
	}
	var next []block
	br := r.At(b.start)
	// Space too small for a message prefix is a gap.
	for br.Pos()+prefix <= b.end {
		typ, err := br.ReadUint8()
		if err != nil {
			return nil, err
		}
		size, err := br.ReadUint16()
		if err != nil {
			return nil, err
		}
		flags, err := br.ReadUint8()
		if err != nil {
			return nil, err
		}
		if ordered {
			br.Skip(2)
		}
		if br.Pos()+int64(size) > b.end {
			return nil, fmt.Errorf("%w: message %#02x overruns its block", ErrInvalidHeader, typ)
		}
		data, err := br.ReadBytes(int(size))
		if err != nil {
			return nil, err
		}
		cont, err := h.add(message.Type(typ), data, flags, r)
		if err != nil {
			return nil, err
		}
		if cont != nil {
			next = append(next, block{int64(cont.Offset), int64(cont.Offset + cont.Length)})
		}
	}
	return next, nil
}
