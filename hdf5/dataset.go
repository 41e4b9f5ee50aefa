package hdf5

import (
	"fmt"
	"path"
	"sync"

	"github.com/robert-malhotra/chunkscan/internal/dtype"
	"github.com/robert-malhotra/chunkscan/internal/filter"
	"github.com/robert-malhotra/chunkscan/internal/layout"
	"github.com/robert-malhotra/chunkscan/internal/message"
	"github.com/robert-malhotra/chunkscan/internal/object"
)

// Dataset represents an HDF5 dataset.
type Dataset struct {
	file      *File
	path      string
	header    *object.Header
	dataspace *message.Dataspace
	datatype  *message.Datatype
	layout    *message.DataLayout
	filters   *message.FilterPipeline

	once    sync.Once
	storage layout.Storage
	cache   *layout.Cache
	err     error
}

// Filter is one stage of a dataset's filter pipeline.
type Filter struct {
	ID         uint16
	Name       string
	Optional   bool
	ClientData []uint32
}

func newDataset(f *File, path string, header *object.Header) (*Dataset, error) {
	ds := &Dataset{
		file:      f,
		path:      path,
		header:    header,
		dataspace: header.Dataspace(),
		datatype:  header.Datatype(),
		layout:    header.DataLayout(),
		filters:   header.FilterPipeline(),
	}
	if ds.dataspace == nil {
		return nil, fmt.Errorf("dataset %s missing dataspace message", path)
	}
	if ds.datatype == nil {
		return nil, fmt.Errorf("dataset %s missing datatype message", path)
	}
	if ds.layout == nil {
		return nil, fmt.Errorf("dataset %s missing layout message", path)
	}
	return ds, nil
}

// Name returns the dataset name (last component of path).
func (d *Dataset) Name() string {
	return path.Base(d.path)
}

// Path returns the full path to this dataset.
func (d *Dataset) Path() string {
	return d.path
}

// Address returns the address of the dataset's object header, which is
// what object references point at.
func (d *Dataset) Address() uint64 {
	return d.header.Address
}

// Shape returns the dimensions of the dataset, nil for a scalar.
func (d *Dataset) Shape() []uint64 {
	if d.dataspace.IsScalar() {
		return nil
	}
	return d.dataspace.Dimensions
}

// MaxShape returns the maximum dimensions; unlimited axes are
// message.Unlimited. It returns Shape when no maximum is stored.
func (d *Dataset) MaxShape() []uint64 {
	if d.dataspace.MaxDims == nil {
		return d.Shape()
	}
	return d.dataspace.MaxDims
}

// Rank returns the number of dimensions.
func (d *Dataset) Rank() int {
	return d.dataspace.Rank()
}

// NumElements returns the total number of elements.
func (d *Dataset) NumElements() uint64 {
	return d.dataspace.NumElements()
}

// IsScalar returns true if the dataset is a scalar (single value).
func (d *Dataset) IsScalar() bool {
	return d.dataspace.IsScalar()
}

// Datatype returns the element datatype.
func (d *Dataset) Datatype() *message.Datatype {
	return d.datatype
}

// DtypeName returns the NetCDF-style element type name, like "float32".
func (d *Dataset) DtypeName() string {
	return dtype.Name(d.datatype)
}

// DtypeSize returns the size of each element in bytes.
func (d *Dataset) DtypeSize() int {
	return int(d.datatype.Size)
}

// LayoutClass returns how the raw data is stored.
func (d *Dataset) LayoutClass() message.LayoutClass {
	return d.layout.Class
}

// IsChunked reports whether the data is stored in chunks.
func (d *Dataset) IsChunked() bool {
	return d.layout.Class == message.LayoutChunked
}

// ChunkDims returns the chunk shape, nil for unchunked storage.
func (d *Dataset) ChunkDims() []uint64 {
	if !d.IsChunked() {
		return nil
	}
	return d.layout.ChunkDims
}

// ChunkIndex returns the structure indexing the chunks.
func (d *Dataset) ChunkIndex() message.ChunkIndexType {
	return d.layout.ChunkIndex
}

// Filters returns the filter pipeline in application order.
func (d *Dataset) Filters() []Filter {
	if d.filters == nil {
		return nil
	}
	out := make([]Filter, len(d.filters.Filters))
	for i, fi := range d.filters.Filters {
		name := fi.Name
		if name == "" {
			name = filter.Name(fi.ID)
		}
		out[i] = Filter{ID: fi.ID, Name: name, Optional: fi.IsOptional(), ClientData: fi.ClientData}
	}
	return out
}

// CacheConfig returns the chunk cache configuration the dataset reads with.
// ok is false for unchunked datasets, which have no chunk cache.
func (d *Dataset) CacheConfig() (cfg layout.CacheConfig, ok bool) {
	if !d.IsChunked() {
		return layout.CacheConfig{}, false
	}
	return d.file.opts.cache, true
}

// CacheStats returns the chunk cache counters accumulated by reads.
func (d *Dataset) CacheStats() layout.CacheStats {
	return d.cache.Stats()
}

// StoredChunks returns the number of chunks written to the file.
func (d *Dataset) StoredChunks() (int, error) {
	s, err := d.open()
	if err != nil {
		return 0, err
	}
	c, ok := s.(*layout.Chunked)
	if !ok {
		return 0, nil
	}
	idx, err := c.Index()
	if err != nil {
		return 0, classify(err)
	}
	return len(idx.Entries), nil
}

func (d *Dataset) open() (layout.Storage, error) {
	d.once.Do(func() {
		if d.IsChunked() {
			d.cache = layout.NewCache(d.file.opts.cache)
		}
		space := d.dataspace
		if space.IsScalar() {
			space = &message.Dataspace{SpaceType: message.DataspaceSimple, Dimensions: []uint64{1}}
		}
		d.storage, d.err = layout.New(d.file.reader, d.layout, space, int(d.datatype.Size), d.filters, d.cache)
		if d.err != nil {
			d.err = fmt.Errorf("dataset %s: %w", d.path, classify(d.err))
		}
	})
	return d.storage, d.err
}

// ReadPointRaw returns the bytes of the element at coord. A scalar dataset
// is read with no coordinates.
func (d *Dataset) ReadPointRaw(coord ...uint64) ([]byte, error) {
	s, err := d.open()
	if err != nil {
		return nil, err
	}
	if d.IsScalar() && len(coord) == 0 {
		coord = []uint64{0}
	}
	b, err := s.ReadElement(coord)
	if err != nil {
		return nil, fmt.Errorf("dataset %s at %v: %w", d.path, coord, classify(err))
	}
	return b, nil
}

// ReadPoint decodes the element at coord.
func (d *Dataset) ReadPoint(coord ...uint64) (any, error) {
	b, err := d.ReadPointRaw(coord...)
	if err != nil {
		return nil, err
	}
	if d.datatype.Class == message.ClassVarLen {
		return d.file.vlenValue(d.datatype, b)
	}
	return dtype.Value(d.datatype, b)
}

// ReadFloat64 reads every element of a numeric dataset in row-major order.
// It is meant for coordinate variables, not bulk data.
func (d *Dataset) ReadFloat64() ([]float64, error) {
	if !dtype.IsNumeric(d.datatype) {
		return nil, fmt.Errorf("dataset %s has %s elements", d.path, d.DtypeName())
	}
	if d.IsScalar() {
		b, err := d.ReadPointRaw()
		if err != nil {
			return nil, err
		}
		v, err := dtype.Float64(d.datatype, b)
		return []float64{v}, err
	}
	n := d.NumElements()
	var out []float64
	coord := make([]uint64, d.Rank())
	dims := d.Shape()
	for i := uint64(0); i < n; i++ {
		b, err := d.ReadPointRaw(coord...)
		if err != nil {
			return nil, err
		}
		v, err := dtype.Float64(d.datatype, b)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		for ax := len(coord) - 1; ax >= 0; ax-- {
			coord[ax]++
			if coord[ax] < dims[ax] {
				break
			}
			coord[ax] = 0
		}
	}
	return out, nil
}

// Attributes returns the dataset's attributes.
func (d *Dataset) Attributes() ([]*Attribute, error) {
	return attributes(d.file, d.header)
}

// Attribute returns the named attribute, or nil when absent.
func (d *Dataset) Attribute(name string) (*Attribute, error) {
	return attribute(d.file, d.header, name)
}
