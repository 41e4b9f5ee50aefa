// Package message decodes the HDF5 object header messages needed to
// describe datasets and groups: dataspace, datatype, layout, filters,
// attributes and links.
package message

import (
	"fmt"

	"github.com/robert-malhotra/chunkscan/internal/binary"
)

// Type identifies a header message.
type Type uint16

const (
	TypeNIL            Type = 0x0000
	TypeDataspace      Type = 0x0001
	TypeLinkInfo       Type = 0x0002
	TypeDatatype       Type = 0x0003
	TypeFillValueOld   Type = 0x0004
	TypeFillValue      Type = 0x0005
	TypeLink           Type = 0x0006
	TypeDataLayout     Type = 0x0008
	TypeGroupInfo      Type = 0x000A
	TypeFilterPipeline Type = 0x000B
	TypeAttribute      Type = 0x000C
	TypeContinuation   Type = 0x0010
	TypeSymbolTable    Type = 0x0011
	TypeAttributeInfo  Type = 0x0015
)

// FlagShared marks a message body that is a reference to a shared message.
const FlagShared uint8 = 0x02

// Message is implemented by every decoded header message.
type Message interface {
	Type() Type
}

// Parse decodes a message body. Types without a decoder come back as *Unknown.
func Parse(typ Type, data []byte, flags uint8, r *binary.Reader) (Message, error) {
	if flags&FlagShared != 0 {
		return parseShared(typ, data, r)
	}
	var (
		msg Message
		err error
	)
	switch typ {
	case TypeDataspace:
		msg, err = parseDataspace(data, r)
	case TypeDatatype:
		msg, err = parseDatatype(data)
	case TypeDataLayout:
		msg, err = parseDataLayout(data, r)
	case TypeFilterPipeline:
		msg, err = parseFilterPipeline(data)
	case TypeAttribute:
		msg, err = parseAttribute(data, r)
	case TypeLink:
		msg, err = parseLink(data, r)
	case TypeLinkInfo:
		msg, err = parseLinkInfo(data, r)
	case TypeSymbolTable:
		msg, err = parseSymbolTable(data, r)
	case TypeAttributeInfo:
		msg, err = parseAttributeInfo(data, r)
	case TypeContinuation:
		msg, err = parseContinuation(data, r)
	default:
		return &Unknown{typ: typ, data: data}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("message %#04x: %w", uint16(typ), err)
	}
	return msg, nil
}

// Unknown carries the raw body of a message type this package does not decode.
type Unknown struct {
	typ  Type
	data []byte
}

func (m *Unknown) Type() Type   { return m.typ }
func (m *Unknown) Data() []byte { return m.data }

// Continuation points at the next block of header messages.
type Continuation struct {
	Offset uint64
	Length uint64
}

func (m *Continuation) Type() Type { return TypeContinuation }

func parseContinuation(data []byte, r *binary.Reader) (*Continuation, error) {
	c := r.Over(data)
	off, err := c.ReadOffset()
	if err != nil {
		return nil, err
	}
	length, err := c.ReadLength()
	if err != nil {
		return nil, err
	}
	return &Continuation{Offset: off, Length: length}, nil
}

// Shared is a reference to a message stored in another object header
// (a committed datatype, typically). The object reader resolves it.
type Shared struct {
	Of      Type
	Address uint64
}

func (m *Shared) Type() Type { return m.Of }

/*
Shared Message Layout:
Version 1: version(1) type(1) reserved(6) address(O)
Version 2: version(1) type(1) address(O)
Version 3: version(1) type(1) address(O) when type == 2, else 8-byte heap ID
*/
func parseShared(typ Type, data []byte, r *binary.Reader) (Message, error) {
	c := r.Over(data)
	version, err := c.ReadUint8()
	if err != nil {
		return nil, err
	}
	kind, err := c.ReadUint8()
	if err != nil {
		return nil, err
	}
	switch version {
	case 1:
		c.Skip(6)
	case 2:
	case 3:
		if kind != 2 {
			// Stored in the shared message heap; not supported.
			return &Unknown{typ: typ, data: data}, nil
		}
	default:
		return nil, fmt.Errorf("unsupported shared message version %d", version)
	}
	addr, err := c.ReadOffset()
	if err != nil {
		return nil, err
	}
	return &Shared{Of: typ, Address: addr}, nil
}

// cstring returns the bytes of b up to the first NUL.
func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
