package dtype

import (
	"fmt"
	"math"

	"github.com/robert-malhotra/chunkscan/internal/message"
)

// Value decodes one element. Integers and floats keep their width.
func Value(dt *message.Datatype, data []byte) (any, error) {
	if dt == nil {
		return nil, fmt.Errorf("nil datatype")
	}
	size := int(dt.Size)
	if len(data) < size {
		return nil, fmt.Errorf("%d bytes for a %d-byte element", len(data), size)
	}
	data = data[:size]
	order := ByteOrder(dt)

	switch dt.Class {
	case message.ClassFixedPoint, message.ClassEnum:
		switch size {
		case 1:
			if dt.Signed {
				return int8(data[0]), nil
			}
			return data[0], nil
		case 2:
			v := order.Uint16(data)
			if dt.Signed {
				return int16(v), nil
			}
			return v, nil
		case 4:
			v := order.Uint32(data)
			if dt.Signed {
				return int32(v), nil
			}
			return v, nil
		case 8:
			v := order.Uint64(data)
			if dt.Signed {
				return int64(v), nil
			}
			return v, nil
		}
		return nil, fmt.Errorf("unsupported integer size: %d", size)

	case message.ClassFloatPoint:
		switch size {
		case 4:
			return math.Float32frombits(order.Uint32(data)), nil
		case 8:
			return math.Float64frombits(order.Uint64(data)), nil
		}
		return nil, fmt.Errorf("unsupported float size: %d", size)

	case message.ClassString:
		return String(dt, data), nil
	}
	return nil, fmt.Errorf("cannot decode %s elements", dt.Class)
}

// Values decodes n consecutive elements.
func Values(dt *message.Datatype, data []byte, n int) ([]any, error) {
	if dt == nil {
		return nil, fmt.Errorf("nil datatype")
	}
	size := int(dt.Size)
	if size == 0 || n < 0 || n > len(data)/size {
		return nil, fmt.Errorf("%d bytes for %d elements of %d bytes", len(data), n, size)
	}
	out := make([]any, n)
	for i := range out {
		v, err := Value(dt, data[i*size:(i+1)*size])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Float64 decodes one numeric element as a float64.
func Float64(dt *message.Datatype, data []byte) (float64, error) {
	v, err := Value(dt, data)
	if err != nil {
		return 0, err
	}
	f, ok := ToFloat64(v)
	if !ok {
		return 0, fmt.Errorf("%s is not numeric", Name(dt))
	}
	return f, nil
}

// ToFloat64 converts a decoded numeric value.
func ToFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case int8:
		return float64(x), true
	case uint8:
		return float64(x), true
	case int16:
		return float64(x), true
	case uint16:
		return float64(x), true
	case int32:
		return float64(x), true
	case uint32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// String decodes a fixed-length string, stopping at the first null and
// trimming space padding.
func String(dt *message.Datatype, data []byte) string {
	end := len(data)
	for j, b := range data {
		if b == 0 {
			end = j
			break
		}
	}
	if dt != nil && dt.Padding == 2 {
		for end > 0 && data[end-1] == ' ' {
			end--
		}
	}
	return string(data[:end])
}

// ReadScalar decodes one element into T.
func ReadScalar[T any](dt *message.Datatype, data []byte) (T, error) {
	var zero T
	v, err := Value(dt, data)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%s element decodes to %T, not %T", Name(dt), v, zero)
	}
	return t, nil
}
