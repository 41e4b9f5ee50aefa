package dtype

import (
	"encoding/binary"
	"fmt"

	"github.com/robert-malhotra/chunkscan/internal/message"
)

// Name returns the NetCDF-style name of a datatype: int8 through uint64,
// float32 and float64, "str" for variable-length strings and "|S<n>" for
// fixed-length ones.
func Name(dt *message.Datatype) string {
	if dt == nil {
		return "unknown"
	}
	switch dt.Class {
	case message.ClassFixedPoint, message.ClassEnum:
		if dt.Signed {
			return fmt.Sprintf("int%d", 8*dt.Size)
		}
		return fmt.Sprintf("uint%d", 8*dt.Size)
	case message.ClassFloatPoint:
		return fmt.Sprintf("float%d", 8*dt.Size)
	case message.ClassString:
		return fmt.Sprintf("|S%d", dt.Size)
	case message.ClassVarLen:
		if dt.VarLenString {
			return "str"
		}
		if dt.Base != nil {
			return "vlen(" + Name(dt.Base) + ")"
		}
		return "vlen"
	}
	return dt.Class.String()
}

// ByteOrder returns the byte order of a numeric datatype.
func ByteOrder(dt *message.Datatype) binary.ByteOrder {
	if dt.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// ElementSize returns the size of a single element in bytes.
func ElementSize(dt *message.Datatype) int {
	return int(dt.Size)
}

// IsNumeric returns true if the datatype is an integer or floating-point type.
func IsNumeric(dt *message.Datatype) bool {
	return dt != nil && (dt.Class == message.ClassFixedPoint || dt.Class == message.ClassFloatPoint)
}
