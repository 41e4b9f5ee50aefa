// Package h5test builds small HDF5 files in memory for tests: a version 2
// superblock, version 1 object headers, compact link storage, and chunked
// datasets indexed by a version 1 B-tree. Files written here are read back
// through the real reader, so tests exercise the same parsing paths as
// production files.
package h5test

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	binpkg "github.com/robert-malhotra/chunkscan/internal/binary"
)

const undefined = ^uint64(0)

// Unlimited marks an extendible axis in Dataset.MaxDims.
const Unlimited = ^uint64(0)

// Type is an HDF5 datatype description.
type Type struct {
	class uint8
	bits  uint32
	size  uint32
	props []byte
	base  *Type
}

// Size returns the element size in bytes.
func (t Type) Size() int { return int(t.size) }

func fixed(size uint32, signed bool) Type {
	t := Type{class: 0, size: size}
	if signed {
		t.bits = 0x08
	}
	t.props = make([]byte, 4)
	binary.LittleEndian.PutUint16(t.props[2:], uint16(8*size))
	return t
}

func float(size uint32) Type {
	t := Type{class: 1, size: size, props: make([]byte, 12)}
	binary.LittleEndian.PutUint16(t.props[2:], uint16(8*size))
	if size == 4 {
		t.bits = 0x20 | 31<<8
		copy(t.props[4:], []byte{23, 8, 0, 23})
		binary.LittleEndian.PutUint32(t.props[8:], 127)
	} else {
		t.bits = 0x20 | 63<<8
		copy(t.props[4:], []byte{52, 11, 0, 52})
		binary.LittleEndian.PutUint32(t.props[8:], 1023)
	}
	return t
}

var (
	Int8    = fixed(1, true)
	Uint8   = fixed(1, false)
	Int16   = fixed(2, true)
	Uint16  = fixed(2, false)
	Int32   = fixed(4, true)
	Uint32  = fixed(4, false)
	Int64   = fixed(8, true)
	Uint64  = fixed(8, false)
	Float32 = float(4)
	Float64 = float(8)

	// VarString is a variable-length UTF-8 string.
	VarString = Type{class: 9, bits: 1 | 1<<8, size: 16, base: &Uint8}
)

// FixedString is a null-terminated string of n bytes.
func FixedString(n int) Type {
	return Type{class: 3, size: uint32(n)}
}

var objectRef = Type{class: 7, size: 8}

// referenceList is a variable-length sequence of object references, the
// type of DIMENSION_LIST.
var referenceList = Type{class: 9, size: 16, base: &objectRef}

func (t Type) encode() []byte {
	b := make([]byte, 8, 8+len(t.props))
	b[0] = t.class | 1<<4
	b[1], b[2], b[3] = byte(t.bits), byte(t.bits>>8), byte(t.bits>>16)
	binary.LittleEndian.PutUint32(b[4:], t.size)
	b = append(b, t.props...)
	if t.base != nil {
		b = append(b, t.base.encode()...)
	}
	return b
}

// Attr is an attribute. Data holds Dims-many elements of Type; Strings
// replaces Data for VarString attributes.
type Attr struct {
	Name    string
	Type    Type
	Dims    []uint64 // nil for a scalar
	Data    []byte
	Strings []string
}

// String returns a scalar fixed-length string attribute.
func String(name, s string) Attr {
	return Attr{Name: name, Type: FixedString(len(s) + 1), Data: append([]byte(s), 0)}
}

// VarStringAttr returns a scalar variable-length string attribute.
func VarStringAttr(name, s string) Attr {
	return Attr{Name: name, Type: VarString, Strings: []string{s}}
}

// Float32Attr returns a float32 attribute, scalar for a single value.
func Float32Attr(name string, v ...float32) Attr {
	return Attr{Name: name, Type: Float32, Dims: vectorDims(len(v)), Data: Float32s(v...)}
}

// Float64Attr returns a float64 attribute, scalar for a single value.
func Float64Attr(name string, v ...float64) Attr {
	return Attr{Name: name, Type: Float64, Dims: vectorDims(len(v)), Data: Float64s(v...)}
}

// Int32Attr returns an int32 attribute, scalar for a single value.
func Int32Attr(name string, v ...int32) Attr {
	return Attr{Name: name, Type: Int32, Dims: vectorDims(len(v)), Data: Int32s(v...)}
}

func vectorDims(n int) []uint64 {
	if n == 1 {
		return nil
	}
	return []uint64{uint64(n)}
}

// Layout selects raw data storage.
type Layout int

const (
	Contiguous Layout = iota
	Compact
	Chunked
)

// Filter is a filter pipeline stage.
type Filter struct {
	ID         uint16
	Optional   bool
	ClientData []uint32
}

// Deflate compresses chunks with zlib at level.
func Deflate(level int) Filter { return Filter{ID: 1, ClientData: []uint32{uint32(level)}} }

// Shuffle groups the bytes of each element.
func Shuffle(elemSize int) Filter { return Filter{ID: 2, ClientData: []uint32{uint32(elemSize)}} }

// Fletcher32 appends a checksum to each chunk.
func Fletcher32() Filter { return Filter{ID: 3} }

// Dataset describes one dataset. Data is the row-major raw element bytes;
// nil leaves the storage unallocated. Filters other than deflate, shuffle
// and fletcher32 are declared but not applied to the data.
type Dataset struct {
	Type    Type
	Dims    []uint64 // nil for a scalar
	MaxDims []uint64
	Layout  Layout
	Chunks  []uint64
	Filters []Filter
	Data    []byte
	Attrs   []Attr

	// Dimensions become the DIMENSION_LIST attribute, one scale per axis.
	Dimensions []*Dataset
}

// Member is one link of a group. Exactly one of Group, Dataset and
// SoftLink is set.
type Member struct {
	Name     string
	Group    *Group
	Dataset  *Dataset
	SoftLink string
}

// Group is a group with compact link storage.
type Group struct {
	Members []Member
	Attrs   []Attr
}

// Add appends a dataset member and returns g.
func (g *Group) Add(name string, ds *Dataset) *Group {
	g.Members = append(g.Members, Member{Name: name, Dataset: ds})
	return g
}

// AddGroup appends a subgroup member and returns g.
func (g *Group) AddGroup(name string, sub *Group) *Group {
	g.Members = append(g.Members, Member{Name: name, Group: sub})
	return g
}

type builder struct {
	buf   []byte
	space *space
	addr  map[any]uint64
}

// Build returns the bytes of a file whose root group is root.
func Build(root *Group) ([]byte, error) {
	b := &builder{buf: make([]byte, 48), space: newSpace(48), addr: make(map[any]uint64)}
	rootAddr, err := b.group(root)
	if err != nil {
		return nil, err
	}
	if err := b.space.check(); err != nil {
		return nil, err
	}

	sb := b.buf[:48]
	copy(sb, []byte{0x89, 'H', 'D', 'F', '\r', '\n', 0x1a, '\n'})
	sb[8], sb[9], sb[10], sb[11] = 2, 8, 8, 0
	binary.LittleEndian.PutUint64(sb[12:], 0)
	binary.LittleEndian.PutUint64(sb[20:], undefined)
	binary.LittleEndian.PutUint64(sb[28:], uint64(len(b.buf)))
	binary.LittleEndian.PutUint64(sb[36:], rootAddr)
	binary.LittleEndian.PutUint32(sb[44:], binpkg.Lookup3Checksum(sb[:44]))
	return b.buf, nil
}

// WriteFile builds the file and writes it to dir/name, returning the path.
func WriteFile(dir, name string, root *Group) (string, error) {
	data, err := Build(root)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// alloc writes data at the next 8-byte boundary and returns its address.
func (b *builder) alloc(data []byte) uint64 {
	addr := b.space.place(uint64(len(data)), 8)
	b.buf = append(b.buf, make([]byte, addr-uint64(len(b.buf)))...)
	b.buf = append(b.buf, data...)
	return addr
}

type msg struct {
	typ  uint16
	data []byte
}

/*
Version 1 object header: version(1) reserved(1) nmsgs(2) refcount(4)
size(4) pad(4), then type(2) size(2) flags(1) reserved(3) data padded to 8.
*/
func (b *builder) header(msgs []msg) uint64 {
	var body []byte
	for _, m := range msgs {
		data := pad8(m.data)
		h := make([]byte, 8)
		binary.LittleEndian.PutUint16(h[0:], m.typ)
		binary.LittleEndian.PutUint16(h[2:], uint16(len(data)))
		body = append(body, h...)
		body = append(body, data...)
	}
	prefix := make([]byte, 16)
	prefix[0] = 1
	binary.LittleEndian.PutUint16(prefix[2:], uint16(len(msgs)))
	binary.LittleEndian.PutUint32(prefix[4:], 1)
	binary.LittleEndian.PutUint32(prefix[8:], uint32(len(body)))
	return b.alloc(append(prefix, body...))
}

func (b *builder) group(g *Group) (uint64, error) {
	if a, ok := b.addr[g]; ok {
		return a, nil
	}
	linkInfo := make([]byte, 18)
	binary.LittleEndian.PutUint64(linkInfo[2:], undefined)
	binary.LittleEndian.PutUint64(linkInfo[10:], undefined)
	msgs := []msg{{0x0002, linkInfo}}

	for i, m := range g.Members {
		var (
			target uint64
			err    error
		)
		switch {
		case m.Group != nil:
			target, err = b.group(m.Group)
		case m.Dataset != nil:
			target, err = b.dataset(m.Dataset)
		case m.SoftLink == "":
			err = fmt.Errorf("member %q has no target", m.Name)
		}
		if err != nil {
			return 0, err
		}
		msgs = append(msgs, msg{0x0006, link(m.Name, uint64(i), target, m.SoftLink)})
	}
	attrs, err := b.attributes(g.Attrs)
	if err != nil {
		return 0, err
	}
	a := b.header(append(msgs, attrs...))
	b.addr[g] = a
	return a, nil
}

// link encodes a version 1 link message with a creation order and a
// one-byte name length.
func link(name string, order, target uint64, soft string) []byte {
	flags := byte(0x04)
	if soft != "" {
		flags |= 0x08
	}
	out := []byte{1, flags}
	if soft != "" {
		out = append(out, 1)
	}
	out = binary.LittleEndian.AppendUint64(out, order)
	out = append(out, byte(len(name)))
	out = append(out, name...)
	if soft != "" {
		out = binary.LittleEndian.AppendUint16(out, uint16(len(soft)))
		return append(out, soft...)
	}
	return binary.LittleEndian.AppendUint64(out, target)
}

func (b *builder) dataset(ds *Dataset) (uint64, error) {
	if a, ok := b.addr[ds]; ok {
		return a, nil
	}
	refs := make([]uint64, len(ds.Dimensions))
	for i, dim := range ds.Dimensions {
		a, err := b.dataset(dim)
		if err != nil {
			return 0, err
		}
		refs[i] = a
	}

	n := uint64(1)
	for _, d := range ds.Dims {
		n *= d
	}
	if ds.Data != nil && uint64(len(ds.Data)) != n*uint64(ds.Type.size) {
		return 0, fmt.Errorf("dataset data is %d bytes, want %d", len(ds.Data), n*uint64(ds.Type.size))
	}

	layout, err := b.storage(ds)
	if err != nil {
		return 0, err
	}
	msgs := []msg{
		{0x0001, dataspace(ds.Dims, ds.MaxDims)},
		{0x0003, ds.Type.encode()},
	}
	if len(ds.Filters) > 0 {
		msgs = append(msgs, msg{0x000B, pipeline(ds.Filters)})
	}
	msgs = append(msgs, msg{0x0008, layout})

	attrs := ds.Attrs
	if len(refs) > 0 {
		attrs = append(append([]Attr(nil), attrs...), b.dimensionList(refs))
	}
	am, err := b.attributes(attrs)
	if err != nil {
		return 0, err
	}
	a := b.header(append(msgs, am...))
	b.addr[ds] = a
	return a, nil
}

/*
Dataspace version 1: version(1) rank(1) flags(1) reserved(5) dims(8*rank)
[maxdims(8*rank)].
*/
func dataspace(dims, maxDims []uint64) []byte {
	out := []byte{1, byte(len(dims)), 0, 0, 0, 0, 0, 0}
	if maxDims != nil {
		out[2] = 1
	}
	for _, d := range dims {
		out = binary.LittleEndian.AppendUint64(out, d)
	}
	for _, d := range maxDims {
		out = binary.LittleEndian.AppendUint64(out, d)
	}
	return out
}

func pipeline(filters []Filter) []byte {
	out := []byte{1, byte(len(filters)), 0, 0, 0, 0, 0, 0}
	for _, f := range filters {
		var flags uint16
		if f.Optional {
			flags = 1
		}
		out = binary.LittleEndian.AppendUint16(out, f.ID)
		out = binary.LittleEndian.AppendUint16(out, 0)
		out = binary.LittleEndian.AppendUint16(out, flags)
		out = binary.LittleEndian.AppendUint16(out, uint16(len(f.ClientData)))
		for _, v := range f.ClientData {
			out = binary.LittleEndian.AppendUint32(out, v)
		}
		if len(f.ClientData)%2 != 0 {
			out = append(out, 0, 0, 0, 0)
		}
	}
	return out
}

// storage writes the raw data and returns a version 3 layout message.
func (b *builder) storage(ds *Dataset) ([]byte, error) {
	switch ds.Layout {
	case Compact:
		out := []byte{3, 0}
		out = binary.LittleEndian.AppendUint16(out, uint16(len(ds.Data)))
		return append(out, ds.Data...), nil

	case Contiguous:
		addr := undefined
		if ds.Data != nil {
			addr = b.alloc(ds.Data)
		}
		out := []byte{3, 1}
		out = binary.LittleEndian.AppendUint64(out, addr)
		return binary.LittleEndian.AppendUint64(out, uint64(len(ds.Data))), nil

	case Chunked:
		if len(ds.Chunks) != len(ds.Dims) || len(ds.Dims) == 0 {
			return nil, fmt.Errorf("chunk rank %d for dataset rank %d", len(ds.Chunks), len(ds.Dims))
		}
		tree := undefined
		if ds.Data != nil {
			var err error
			if tree, err = b.chunks(ds); err != nil {
				return nil, err
			}
		}
		out := []byte{3, 2, byte(len(ds.Chunks) + 1)}
		out = binary.LittleEndian.AppendUint64(out, tree)
		for _, c := range ds.Chunks {
			out = binary.LittleEndian.AppendUint32(out, uint32(c))
		}
		return binary.LittleEndian.AppendUint32(out, ds.Type.size), nil
	}
	return nil, fmt.Errorf("unknown layout %d", ds.Layout)
}

// chunks writes every chunk of ds and a single-leaf version 1 B-tree
// indexing them.
func (b *builder) chunks(ds *Dataset) (uint64, error) {
	rank := len(ds.Dims)
	grid := make([]uint64, rank)
	total := uint64(1)
	for i := range grid {
		grid[i] = (ds.Dims[i] + ds.Chunks[i] - 1) / ds.Chunks[i]
		total *= grid[i]
	}

	type entry struct {
		size   uint32
		offset []uint64
		addr   uint64
	}
	var entries []entry
	scaled := make([]uint64, rank)
	for n := uint64(0); n < total; n++ {
		rem := n
		for i := rank - 1; i >= 0; i-- {
			scaled[i] = rem % grid[i]
			rem /= grid[i]
		}
		offset := make([]uint64, rank)
		for i := range offset {
			offset[i] = scaled[i] * ds.Chunks[i]
		}
		raw, err := encodeChunk(extract(ds, offset), ds.Filters)
		if err != nil {
			return 0, err
		}
		entries = append(entries, entry{uint32(len(raw)), offset, b.alloc(raw)})
	}

	// TREE, type 1, level 0, entries used, siblings, then keys and children.
	node := []byte{'T', 'R', 'E', 'E', 1, 0}
	node = binary.LittleEndian.AppendUint16(node, uint16(len(entries)))
	node = binary.LittleEndian.AppendUint64(node, undefined)
	node = binary.LittleEndian.AppendUint64(node, undefined)
	key := func(size uint32, offset []uint64) {
		node = binary.LittleEndian.AppendUint32(node, size)
		node = binary.LittleEndian.AppendUint32(node, 0)
		for _, o := range offset {
			node = binary.LittleEndian.AppendUint64(node, o)
		}
		node = binary.LittleEndian.AppendUint64(node, 0)
	}
	for _, e := range entries {
		key(e.size, e.offset)
		node = binary.LittleEndian.AppendUint64(node, e.addr)
	}
	key(0, ds.Dims)
	return b.alloc(node), nil
}

// extract copies one full chunk out of the row-major data, zero-filling
// the parts past the dataset edge.
func extract(ds *Dataset, offset []uint64) []byte {
	rank := len(ds.Dims)
	size := uint64(ds.Type.size)
	n := uint64(1)
	for _, c := range ds.Chunks {
		n *= c
	}
	out := make([]byte, n*size)
	local := make([]uint64, rank)
	for k := uint64(0); k < n; k++ {
		rem := k
		for i := rank - 1; i >= 0; i-- {
			local[i] = rem % ds.Chunks[i]
			rem /= ds.Chunks[i]
		}
		src, inside := uint64(0), true
		for i := 0; i < rank; i++ {
			c := offset[i] + local[i]
			if c >= ds.Dims[i] {
				inside = false
				break
			}
			src = src*ds.Dims[i] + c
		}
		if inside {
			copy(out[k*size:(k+1)*size], ds.Data[src*size:(src+1)*size])
		}
	}
	return out
}

func encodeChunk(data []byte, filters []Filter) ([]byte, error) {
	for _, f := range filters {
		switch f.ID {
		case 1:
			level := zlib.DefaultCompression
			if len(f.ClientData) > 0 {
				level = int(f.ClientData[0])
			}
			var buf bytes.Buffer
			w, err := zlib.NewWriterLevel(&buf, level)
			if err != nil {
				return nil, err
			}
			if _, err := w.Write(data); err != nil {
				return nil, err
			}
			if err := w.Close(); err != nil {
				return nil, err
			}
			data = buf.Bytes()
		case 2:
			size := 1
			if len(f.ClientData) > 0 {
				size = int(f.ClientData[0])
			}
			data = shuffle(data, size)
		case 3:
			data = binary.LittleEndian.AppendUint32(append([]byte(nil), data...), binpkg.Fletcher32(data))
		}
	}
	return data, nil
}

func shuffle(in []byte, size int) []byte {
	n := len(in) / size
	if size <= 1 || n <= 1 {
		return in
	}
	out := make([]byte, len(in))
	for i := 0; i < n; i++ {
		for b := 0; b < size; b++ {
			out[b*n+i] = in[i*size+b]
		}
	}
	copy(out[n*size:], in[n*size:])
	return out
}

func (b *builder) attributes(attrs []Attr) ([]msg, error) {
	out := make([]msg, 0, len(attrs))
	for _, a := range attrs {
		data := a.Data
		if a.Strings != nil {
			objs := make([][]byte, len(a.Strings))
			for i, s := range a.Strings {
				objs[i] = []byte(s)
			}
			data = b.vlenElements(objs, func(o []byte) int { return len(o) })
		}
		body, err := attribute(a.Name, a.Type, a.Dims, data)
		if err != nil {
			return nil, err
		}
		out = append(out, msg{0x000C, body})
	}
	return out, nil
}

// dimensionList returns the DIMENSION_LIST attribute pointing each axis at
// the dimension scale dataset at refs[i].
func (b *builder) dimensionList(refs []uint64) Attr {
	objs := make([][]byte, len(refs))
	for i, r := range refs {
		objs[i] = binary.LittleEndian.AppendUint64(nil, r)
	}
	data := b.vlenElements(objs, func([]byte) int { return 1 })
	return Attr{Name: "DIMENSION_LIST", Type: referenceList, Dims: []uint64{uint64(len(refs))}, Data: data}
}

/*
Global heap collection: "GCOL" version(1) reserved(3) size(8), then objects
index(2) refcount(2) reserved(4) size(8) data padded to 8.
Each variable-length element is count(4) collection(8) index(4).
*/
func (b *builder) vlenElements(objs [][]byte, count func([]byte) int) []byte {
	var body []byte
	for i, o := range objs {
		body = binary.LittleEndian.AppendUint16(body, uint16(i+1))
		body = binary.LittleEndian.AppendUint16(body, 1)
		body = append(body, 0, 0, 0, 0)
		body = binary.LittleEndian.AppendUint64(body, uint64(len(o)))
		body = append(body, pad8(o)...)
	}
	col := []byte{'G', 'C', 'O', 'L', 1, 0, 0, 0}
	col = binary.LittleEndian.AppendUint64(col, uint64(16+len(body)))
	addr := b.alloc(append(col, body...))

	var out []byte
	for i, o := range objs {
		out = binary.LittleEndian.AppendUint32(out, uint32(count(o)))
		out = binary.LittleEndian.AppendUint64(out, addr)
		out = binary.LittleEndian.AppendUint32(out, uint32(i+1))
	}
	return out
}

/*
Attribute version 1: version(1) reserved(1) name size(2) datatype size(2)
dataspace size(2), then name, datatype and dataspace each padded to 8,
then the value.
*/
func attribute(name string, t Type, dims []uint64, data []byte) ([]byte, error) {
	n := uint64(1)
	for _, d := range dims {
		n *= d
	}
	if uint64(len(data)) != n*uint64(t.size) {
		return nil, fmt.Errorf("attribute %q value is %d bytes, want %d", name, len(data), n*uint64(t.size))
	}
	nameBytes := append([]byte(name), 0)
	typeBytes := t.encode()
	spaceBytes := dataspace(dims, nil)

	out := []byte{1, 0}
	out = binary.LittleEndian.AppendUint16(out, uint16(len(nameBytes)))
	out = binary.LittleEndian.AppendUint16(out, uint16(len(typeBytes)))
	out = binary.LittleEndian.AppendUint16(out, uint16(len(spaceBytes)))
	out = append(out, pad8(nameBytes)...)
	out = append(out, pad8(typeBytes)...)
	out = append(out, pad8(spaceBytes)...)
	return append(out, data...), nil
}

func pad8(b []byte) []byte {
	if len(b)%8 == 0 {
		return b
	}
	return append(append([]byte(nil), b...), make([]byte, 8-len(b)%8)...)
}

// Float32s encodes values little-endian.
func Float32s(v ...float32) []byte {
	out := make([]byte, 0, 4*len(v))
	for _, x := range v {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(x))
	}
	return out
}

// Float64s encodes values little-endian.
func Float64s(v ...float64) []byte {
	out := make([]byte, 0, 8*len(v))
	for _, x := range v {
		out = binary.LittleEndian.AppendUint64(out, math.Float64bits(x))
	}
	return out
}

// Int16s encodes values little-endian.
func Int16s(v ...int16) []byte {
	out := make([]byte, 0, 2*len(v))
	for _, x := range v {
		out = binary.LittleEndian.AppendUint16(out, uint16(x))
	}
	return out
}

// Int32s encodes values little-endian.
func Int32s(v ...int32) []byte {
	out := make([]byte, 0, 4*len(v))
	for _, x := range v {
		out = binary.LittleEndian.AppendUint32(out, uint32(x))
	}
	return out
}
