package dtype

import (
	"math"
	"testing"

	"github.com/robert-malhotra/chunkscan/internal/message"
)

func TestName(t *testing.T) {
	tests := []struct {
		name     string
		dt       *message.Datatype
		expected string
	}{
		{"int8", &message.Datatype{Class: message.ClassFixedPoint, Size: 1, Signed: true}, "int8"},
		{"uint8", &message.Datatype{Class: message.ClassFixedPoint, Size: 1}, "uint8"},
		{"int16", &message.Datatype{Class: message.ClassFixedPoint, Size: 2, Signed: true}, "int16"},
		{"uint64", &message.Datatype{Class: message.ClassFixedPoint, Size: 8}, "uint64"},
		{"float32", &message.Datatype{Class: message.ClassFloatPoint, Size: 4, Signed: true}, "float32"},
		{"float64", &message.Datatype{Class: message.ClassFloatPoint, Size: 8, Signed: true}, "float64"},
		{"char", &message.Datatype{Class: message.ClassString, Size: 1}, "|S1"},
		{"vlen string", &message.Datatype{Class: message.ClassVarLen, Size: 16, VarLenString: true}, "str"},
		{"compound", &message.Datatype{Class: message.ClassCompound}, "compound"},
		{"nil", nil, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Name(tt.dt); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestValueIntegers(t *testing.T) {
	data := []byte{0xFE, 0xFF, 0xFF, 0xFF}
	tests := []struct {
		dt       *message.Datatype
		expected any
	}{
		{&message.Datatype{Class: message.ClassFixedPoint, Size: 1, Signed: true}, int8(-2)},
		{&message.Datatype{Class: message.ClassFixedPoint, Size: 1}, uint8(0xFE)},
		{&message.Datatype{Class: message.ClassFixedPoint, Size: 2, Signed: true}, int16(-2)},
		{&message.Datatype{Class: message.ClassFixedPoint, Size: 4, Signed: true}, int32(-2)},
		{&message.Datatype{Class: message.ClassFixedPoint, Size: 4}, uint32(0xFFFFFFFE)},
		{&message.Datatype{Class: message.ClassFixedPoint, Size: 2, BigEndian: true}, uint16(0xFEFF)},
	}
	for _, tt := range tests {
		got, err := Value(tt.dt, data)
		if err != nil {
			t.Fatalf("Value(%s): %v", Name(tt.dt), err)
		}
		if got != tt.expected {
			t.Errorf("Value(%s) = %v (%T), want %v (%T)", Name(tt.dt), got, got, tt.expected, tt.expected)
		}
	}
}

func TestFloat64(t *testing.T) {
	dt := &message.Datatype{Class: message.ClassFloatPoint, Size: 4, Signed: true}
	data := make([]byte, 4)
	bits := math.Float32bits(0.5)
	data[0], data[1], data[2], data[3] = byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24)

	got, err := Float64(dt, data)
	if err != nil {
		t.Fatal(err)
	}
	if got != 0.5 {
		t.Errorf("Float64 = %v, want 0.5", got)
	}

	if _, err := Float64(&message.Datatype{Class: message.ClassString, Size: 4}, data); err == nil {
		t.Error("expected error for string element")
	}
	if _, err := Float64(dt, data[:2]); err == nil {
		t.Error("expected error for short data")
	}
}

func TestValues(t *testing.T) {
	dt := &message.Datatype{Class: message.ClassFixedPoint, Size: 2, Signed: true}
	got, err := Values(dt, []byte{1, 0, 2, 0, 3, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []int16{1, 2, 3} {
		if got[i] != want {
			t.Errorf("value %d = %v, want %d", i, got[i], want)
		}
	}
	if _, err := Values(dt, []byte{1, 0}, 3); err == nil {
		t.Error("expected error for short data")
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		name     string
		padding  uint8
		data     string
		expected string
	}{
		{"null terminated", 0, "degrees_north\x00\x00", "degrees_north"},
		{"space padded", 2, "K   ", "K"},
		{"full width", 1, "time", "time"},
	}
	for _, tt := range tests {
		dt := &message.Datatype{Class: message.ClassString, Size: uint32(len(tt.data)), Padding: tt.padding}
		if got := String(dt, []byte(tt.data)); got != tt.expected {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.expected)
		}
	}
}

func TestReadScalar(t *testing.T) {
	dt := &message.Datatype{Class: message.ClassFixedPoint, Size: 4, Signed: true}
	v, err := ReadScalar[int32](dt, []byte{7, 0, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	if v != 7 {
		t.Errorf("ReadScalar = %d, want 7", v)
	}
	if _, err := ReadScalar[float64](dt, []byte{7, 0, 0, 0}); err == nil {
		t.Error("expected type mismatch error")
	}
}

func TestIsNumeric(t *testing.T) {
	if !IsNumeric(&message.Datatype{Class: message.ClassFloatPoint}) {
		t.Error("float is numeric")
	}
	if IsNumeric(&message.Datatype{Class: message.ClassString}) {
		t.Error("string is not numeric")
	}
	if IsNumeric(nil) {
		t.Error("nil is not numeric")
	}
}
