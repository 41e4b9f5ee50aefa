package message

import (
	"encoding/binary"
	"fmt"
)

// DatatypeClass is the HDF5 datatype class.
type DatatypeClass uint8

const (
	ClassFixedPoint DatatypeClass = 0
	ClassFloatPoint DatatypeClass = 1
	ClassTime       DatatypeClass = 2
	ClassString     DatatypeClass = 3
	ClassBitfield   DatatypeClass = 4
	ClassOpaque     DatatypeClass = 5
	ClassCompound   DatatypeClass = 6
	ClassReference  DatatypeClass = 7
	ClassEnum       DatatypeClass = 8
	ClassVarLen     DatatypeClass = 9
	ClassArray      DatatypeClass = 10
)

var classNames = map[DatatypeClass]string{
	ClassFixedPoint: "integer",
	ClassFloatPoint: "float",
	ClassTime:       "time",
	ClassString:     "string",
	ClassBitfield:   "bitfield",
	ClassOpaque:     "opaque",
	ClassCompound:   "compound",
	ClassReference:  "reference",
	ClassEnum:       "enum",
	ClassVarLen:     "vlen",
	ClassArray:      "array",
}

func (c DatatypeClass) String() string {
	if s, ok := classNames[c]; ok {
		return s
	}
	return fmt.Sprintf("class(%d)", uint8(c))
}

// Datatype is message 0x0003. Only the properties needed to decode numeric
// scalars, strings and object references are interpreted.
type Datatype struct {
	Class     DatatypeClass
	Version   uint8
	Size      uint32
	BigEndian bool
	Signed    bool

	// String padding (0 null-terminated, 1 null-padded, 2 space-padded).
	Padding uint8

	// VarLenString is set for variable-length strings; Base describes the
	// element type of variable-length sequences.
	VarLenString bool
	Base         *Datatype
}

func (m *Datatype) Type() Type { return TypeDatatype }

// IsString reports whether values of this type decode to Go strings.
func (m *Datatype) IsString() bool {
	return m.Class == ClassString || (m.Class == ClassVarLen && m.VarLenString)
}

/*
Datatype Layout:
0       1     Class (low 4 bits) and version (high 4 bits)
1       3     Class bit field
4       4     Size in bytes
8       var   Class properties

Class bit field, bit 0 for fixed/float: byte order (1 = big-endian)
                 bit 3 for fixed: signed
                 bits 0-3 for string: padding
                 bits 0-3 for vlen: 0 sequence, 1 string
*/
func parseDatatype(data []byte) (*Datatype, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("datatype message too short")
	}
	bits := uint32(data[1]) | uint32(data[2])<<8 | uint32(data[3])<<16
	dt := &Datatype{
		Class:   DatatypeClass(data[0] & 0x0F),
		Version: data[0] >> 4,
		Size:    binary.LittleEndian.Uint32(data[4:8]),
	}

	switch dt.Class {
	case ClassFixedPoint:
		dt.BigEndian = bits&0x01 != 0
		dt.Signed = bits&0x08 != 0
	case ClassFloatPoint:
		dt.BigEndian = bits&0x01 != 0
		dt.Signed = true
	case ClassString:
		dt.Padding = uint8(bits & 0x0F)
	case ClassVarLen:
		dt.VarLenString = bits&0x0F == 1
		if len(data) > 8 {
			base, err := parseDatatype(data[8:])
			if err != nil {
				return nil, fmt.Errorf("vlen base type: %w", err)
			}
			dt.Base = base
		}
	}
	return dt, nil
}
