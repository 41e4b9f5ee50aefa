package message

import (
	"encoding/binary"
	"fmt"

	binpkg "github.com/robert-malhotra/chunkscan/internal/binary"
)

// Attribute is message 0x000C.
type Attribute struct {
	Version   uint8
	Name      string
	Datatype  *Datatype
	Dataspace *Dataspace
	Data      []byte

	// SharedDatatype is the object header address of a committed datatype
	// when the attribute's type is stored by reference; Datatype is nil
	// until the object reader resolves it.
	SharedDatatype uint64
}

func (m *Attribute) Type() Type { return TypeAttribute }

/*
Attribute Layout:
0       1     Version
1       1     Reserved (v1) or flags (v2/v3; bit 0 datatype shared)
2       2     Name size, including NUL
4       2     Datatype size
6       2     Dataspace size
8       1     Name character set (v3 only)
var           Name, datatype, dataspace, each padded to 8 bytes in v1
var           Raw value
*/
func parseAttribute(data []byte, r *binpkg.Reader) (*Attribute, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("attribute message too short")
	}
	a := &Attribute{Version: data[0]}
	flags := data[1]
	nameSize := int(binary.LittleEndian.Uint16(data[2:]))
	typeSize := int(binary.LittleEndian.Uint16(data[4:]))
	spaceSize := int(binary.LittleEndian.Uint16(data[6:]))

	off := 8
	pad := func(n int) int { return n }
	switch a.Version {
	case 1:
		pad = func(n int) int { return (n + 7) &^ 7 }
	case 2:
	case 3:
		off = 9
	default:
		return nil, fmt.Errorf("unsupported attribute version %d", a.Version)
	}

	field := func(size int, what string) ([]byte, error) {
		if off+size > len(data) {
			return nil, fmt.Errorf("attribute %s truncated", what)
		}
		b := data[off : off+size]
		off += pad(size)
		return b, nil
	}

	name, err := field(nameSize, "name")
	if err != nil {
		return nil, err
	}
	a.Name = cstring(name)

	typeBytes, err := field(typeSize, "datatype")
	if err != nil {
		return nil, err
	}
	if flags&0x01 != 0 {
		shared, err := parseShared(TypeDatatype, typeBytes, r)
		if err != nil {
			return nil, fmt.Errorf("attribute %q datatype: %w", a.Name, err)
		}
		if s, ok := shared.(*Shared); ok {
			a.SharedDatatype = s.Address
		}
	} else if a.Datatype, err = parseDatatype(typeBytes); err != nil {
		return nil, fmt.Errorf("attribute %q datatype: %w", a.Name, err)
	}

	spaceBytes, err := field(spaceSize, "dataspace")
	if err != nil {
		return nil, err
	}
	if a.Dataspace, err = parseDataspace(spaceBytes, r); err != nil {
		return nil, fmt.Errorf("attribute %q dataspace: %w", a.Name, err)
	}

	if off < len(data) {
		a.Data = data[off:]
	}
	return a, nil
}

// AttributeInfo is message 0x0015. A defined FractalHeapAddress means
// attributes are stored densely instead of as attribute messages.
type AttributeInfo struct {
	FractalHeapAddress uint64
	NameIndexAddress   uint64
}

func (m *AttributeInfo) Type() Type { return TypeAttributeInfo }

func parseAttributeInfo(data []byte, r *binpkg.Reader) (*AttributeInfo, error) {
	c := r.Over(data)
	if _, err := c.ReadUint8(); err != nil {
		return nil, err
	}
	flags, err := c.ReadUint8()
	if err != nil {
		return nil, err
	}
	if flags&0x01 != 0 {
		c.Skip(2)
	}
	ai := &AttributeInfo{}
	if ai.FractalHeapAddress, err = c.ReadOffset(); err != nil {
		return nil, err
	}
	if ai.NameIndexAddress, err = c.ReadOffset(); err != nil {
		return nil, err
	}
	return ai, nil
}
