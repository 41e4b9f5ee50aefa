package object

import (
	"fmt"

	"github.com/robert-malhotra/chunkscan/internal/binary"
	"github.com/robert-malhotra/chunkscan/internal/message"
)

/*
Version 1 Object Header Layout:
0       1     Version (1)
1       1     Reserved
2       2     Number of header messages
4       4     Object reference count
8       4     Object header size (bytes of messages)
12      4     Reserved (pads the prefix to 16)
16      var   Header messages

Each message, aligned to 8 bytes from the start of its block:
0       2     Message type
2       2     Size of message data
4       1     Flags
5       3     Reserved
8       var   Message data

Continuation blocks hold messages only, with no prefix.
*/

// maxBlocks bounds continuation chains in corrupt files.
const maxBlocks = 1024

type block struct {
	start, end int64
}

func readV1(r *binary.Reader, address uint64) (*Header, error) {
	hr := r.At(int64(address))
	version, err := hr.ReadUint8()
	if err != nil {
		return nil, err
	}
	if version != 1 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}
	hr.Skip(1)
	count, err := hr.ReadUint16()
	if err != nil {
		return nil, err
	}
	hr.Skip(4)
	size, err := hr.ReadUint32()
	if err != nil {
		return nil, err
	}

	h := &Header{Address: address, Version: 1, Messages: make([]message.Message, 0, count)}
	start := int64(address) + 16
	err = walkBlocks(block{start, start + int64(size)}, func(b block) ([]block, error) {
		return readV1Block(r, b, h)
	})
	if err != nil {
		return nil, fmt.Errorf("object header at %d: %w", address, err)
	}
	return h, nil
}

func readV1Block(r *binary.Reader, b block, h *Header) ([]block, error) {
	var next []block
	br := r.At(b.start)
	for br.Pos()+8 <= b.end {
		typ, err := br.ReadUint16()
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
		br.Skip(3)
		if br.Pos()+int64(size) > b.end {
			return nil, fmt.Errorf("%w: message %#04x overruns its block", ErrInvalidHeader, typ)
		}
		data, err := br.ReadBytes(int(size))
		if err != nil {
			return nil, err
		}
		br.Align(b.start, 8)

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

// add decodes one message into h. Continuations are returned, not stored.
func (h *Header) add(typ message.Type, data []byte, flags uint8, r *binary.Reader) (*message.Continuation, error) {
	if typ == message.TypeNIL {
		return nil, nil
	}
	msg, err := message.Parse(typ, data, flags, r)
	if err != nil {
		return nil, err
	}
	if c, ok := msg.(*message.Continuation); ok {
		return c, nil
	}
	h.Messages = append(h.Messages, msg)
	return nil, nil
}

// walkBlocks reads first and every continuation block it leads to, each
// block at most once.
func walkBlocks(first block, read func(block) ([]block, error)) error {
	seen := make(map[int64]bool)
	queue := []block{first}
	for len(queue) > 0 {
		b := queue[0]
		queue = queue[1:]
		if seen[b.start] {
			continue
		}
		if len(seen) >= maxBlocks {
			return fmt.Errorf("%w: more than %d continuation blocks", ErrInvalidHeader, maxBlocks)
		}
		seen[b.start] = true
		next, err := read(b)
		if err != nil {
			return err
		}
		queue = append(queue, next...)
	}
	return nil
}
