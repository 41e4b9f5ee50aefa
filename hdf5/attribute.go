package hdf5

import (
	"fmt"

	"github.com/robert-malhotra/chunkscan/internal/dtype"
	"github.com/robert-malhotra/chunkscan/internal/heap"
	"github.com/robert-malhotra/chunkscan/internal/message"
	"github.com/robert-malhotra/chunkscan/internal/object"
)

// Attribute represents an HDF5 attribute attached to a dataset or group.
type Attribute struct {
	msg  *message.Attribute
	file *File
}

func attributes(f *File, h *object.Header) ([]*Attribute, error) {
	msgs, err := h.Attributes(f.reader)
	if err != nil {
		return nil, classify(err)
	}
	out := make([]*Attribute, len(msgs))
	for i, m := range msgs {
		out[i] = &Attribute{msg: m, file: f}
	}
	return out, nil
}

func attribute(f *File, h *object.Header, name string) (*Attribute, error) {
	m, err := h.Attribute(f.reader, name)
	if err != nil {
		return nil, classify(err)
	}
	if m == nil {
		return nil, nil
	}
	return &Attribute{msg: m, file: f}, nil
}

// Name returns the attribute name.
func (a *Attribute) Name() string {
	return a.msg.Name
}

// Shape returns the dimensions of the attribute value, nil for a scalar.
func (a *Attribute) Shape() []uint64 {
	if a.msg.Dataspace == nil || a.msg.Dataspace.IsScalar() {
		return nil
	}
	return a.msg.Dataspace.Dimensions
}

// NumElements returns the total number of elements.
func (a *Attribute) NumElements() uint64 {
	if a.msg.Dataspace == nil {
		return 1
	}
	return a.msg.Dataspace.NumElements()
}

// IsScalar returns true if the attribute is a scalar value.
func (a *Attribute) IsScalar() bool {
	return a.msg.Dataspace == nil || a.msg.Dataspace.IsScalar()
}

// DtypeName returns the NetCDF-style name of the attribute's datatype.
func (a *Attribute) DtypeName() string {
	return dtype.Name(a.msg.Datatype)
}

// Values decodes every element. Numbers keep their width, strings are
// Go strings, object references are uint64 addresses, and variable-length
// sequences are []any (or []uint64 for sequences of references).
func (a *Attribute) Values() ([]any, error) {
	dt := a.msg.Datatype
	if dt == nil {
		return nil, fmt.Errorf("attribute %q has no datatype", a.msg.Name)
	}
	n := int(a.NumElements())
	size := int(dt.Size)
	if size == 0 || n < 0 || n > len(a.msg.Data)/size {
		return nil, fmt.Errorf("attribute %q holds %d bytes for %d elements of %d bytes", a.msg.Name, len(a.msg.Data), n, size)
	}
	out := make([]any, n)
	for i := range out {
		elem := a.msg.Data[i*size : (i+1)*size]
		var err error
		switch dt.Class {
		case message.ClassVarLen:
			out[i], err = a.file.vlenValue(dt, elem)
		case message.ClassReference:
			out[i] = a.file.reader.Uint(elem, min(size, a.file.reader.OffsetSize()))
		default:
			out[i], err = dtype.Value(dt, elem)
		}
		if err != nil {
			return nil, fmt.Errorf("attribute %q element %d: %w", a.msg.Name, i, classify(err))
		}
	}
	return out, nil
}

// Value returns the single element of a scalar or one-element attribute,
// or every element as []any otherwise.
func (a *Attribute) Value() (any, error) {
	vals, err := a.Values()
	if err != nil {
		return nil, err
	}
	if len(vals) == 1 {
		return vals[0], nil
	}
	return vals, nil
}

// String returns a string attribute's value. Multi-element string
// attributes are joined, which is how NetCDF stores char arrays.
func (a *Attribute) String() (string, error) {
	if a.msg.Datatype == nil || !a.msg.Datatype.IsString() {
		return "", fmt.Errorf("attribute %q is %s, not a string", a.msg.Name, a.DtypeName())
	}
	vals, err := a.Values()
	if err != nil {
		return "", err
	}
	var s string
	for _, v := range vals {
		s += v.(string)
	}
	return s, nil
}

// Float64s returns a numeric attribute's values.
func (a *Attribute) Float64s() ([]float64, error) {
	if !dtype.IsNumeric(a.msg.Datatype) {
		return nil, fmt.Errorf("attribute %q is %s, not numeric", a.msg.Name, a.DtypeName())
	}
	vals, err := a.Values()
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i], _ = dtype.ToFloat64(v)
	}
	return out, nil
}

// References returns a variable-length-of-reference attribute, such as
// DIMENSION_LIST, as one list of object addresses per element.
func (a *Attribute) References() ([][]uint64, error) {
	dt := a.msg.Datatype
	if dt == nil || dt.Class != message.ClassVarLen || dt.Base == nil || dt.Base.Class != message.ClassReference {
		return nil, fmt.Errorf("attribute %q is %s, not a list of references", a.msg.Name, a.DtypeName())
	}
	vals, err := a.Values()
	if err != nil {
		return nil, err
	}
	out := make([][]uint64, len(vals))
	for i, v := range vals {
		out[i], _ = v.([]uint64)
	}
	return out, nil
}

/*
Variable-length element:
0       4     Number of base elements (bytes for strings)
4       O     Global heap collection address
4+O     4     Object index
*/
func (f *File) vlenValue(dt *message.Datatype, elem []byte) (any, error) {
	if len(elem) < 8+f.reader.OffsetSize() {
		return nil, fmt.Errorf("variable-length element of %d bytes", len(elem))
	}
	count := int(f.reader.Uint(elem, 4))
	id, err := heap.ParseGlobalHeapID(elem[4:], f.reader)
	if err != nil {
		return nil, err
	}
	var data []byte
	if count > 0 && id.CollectionAddress != 0 && !f.reader.IsUndefined(id.CollectionAddress) {
		gh, err := f.globalHeap(id.CollectionAddress)
		if err != nil {
			return nil, err
		}
		if data, err = gh.Object(id.Index); err != nil {
			return nil, err
		}
	}

	if dt.VarLenString {
		if count < len(data) {
			data = data[:count]
		}
		return dtype.String(nil, data), nil
	}
	base := dt.Base
	if base == nil {
		return data, nil
	}
	size := int(base.Size)
	if size == 0 || count > len(data)/size {
		return nil, fmt.Errorf("variable-length sequence of %d %s elements in %d bytes", count, dtype.Name(base), len(data))
	}
	if base.Class == message.ClassReference {
		refs := make([]uint64, count)
		for i := range refs {
			refs[i] = f.reader.Uint(data[i*size:], min(size, f.reader.OffsetSize()))
		}
		return refs, nil
	}
	return dtype.Values(base, data, count)
}

func (f *File) globalHeap(addr uint64) (*heap.GlobalHeap, error) {
	f.heapMu.Lock()
	defer f.heapMu.Unlock()
	if gh, ok := f.heaps[addr]; ok {
		return gh, nil
	}
	gh, err := heap.ReadGlobalHeap(f.reader, addr)
	if err != nil {
		return nil, err
	}
	if f.heaps == nil {
		f.heaps = make(map[uint64]*heap.GlobalHeap)
	}
	f.heaps[addr] = gh
	return gh, nil
}
