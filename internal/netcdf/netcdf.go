// Package netcdf presents an HDF5 file through the netCDF-4 data model:
// named dimensions, variables in definition order, and the attributes that
// describe packing and coordinates.
//
// Dimensions come from dimension scales (datasets with CLASS set to
// DIMENSION_SCALE). Scales whose NAME marks them as pure dimensions are not
// variables. Variables without a DIMENSION_LIST get phony_dim_N dimensions,
// one per distinct length, as the netCDF library does.
package netcdf

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/robert-malhotra/chunkscan/hdf5"
	"github.com/robert-malhotra/chunkscan/internal/chunking"
	"github.com/robert-malhotra/chunkscan/internal/layout"
	"github.com/robert-malhotra/chunkscan/internal/message"
)

const (
	attrClass         = "CLASS"
	attrName          = "NAME"
	attrDimensionList = "DIMENSION_LIST"
	attrDimID         = "_Netcdf4Dimid"
	attrCoordinates   = "coordinates"
	attrScaleFactor   = "scale_factor"
	attrAddOffset     = "add_offset"

	dimensionScale = "DIMENSION_SCALE"
	pureDimension  = "This is a netCDF dimension but not a netCDF variable"
)

// Axis names matched, case-insensitively, when locating a probe point.
var (
	LatitudeNames  = []string{"lat", "latitude", "y"}
	LongitudeNames = []string{"lon", "longitude", "x"}
)

// Filters that compress, by HDF5 filter id, named as netCDF reports them.
var compressors = map[uint16]string{
	message.FilterDeflate:     "zlib",
	message.FilterSZIP:        "szip",
	message.FilterNBit:        "nbit",
	message.FilterScaleOffset: "scaleoffset",
	307:                       "bzip2",
	32001:                     "blosc",
	32015:                     "zstd",
}

// CacheConfig is the chunk cache given to every chunked variable.
type CacheConfig struct {
	Bytes      int64
	Slots      int
	Preemption float64
}

// DefaultCacheConfig returns the netCDF library's default chunk cache.
func DefaultCacheConfig() CacheConfig {
	c := layout.DefaultCacheConfig()
	return CacheConfig{Bytes: c.Bytes, Slots: c.Slots, Preemption: c.Preemption}
}

// File is an open netCDF-4 file.
type File struct {
	path   string
	h5     *hdf5.File
	dims   []chunking.Dimension
	vars   []*variable
	byName map[string]*variable

	mu     sync.Mutex
	coords map[string][]float64
}

type variable struct {
	ds         *hdf5.Dataset
	dims       []string
	coordinate bool
}

// Open reads the dimensions and variables of the file at path. Errors are
// classified with the chunking error kinds.
func Open(path string, cache CacheConfig) (*File, error) {
	h, err := hdf5.Open(path, hdf5.WithChunkCache(cache.Bytes, cache.Slots, cache.Preemption))
	if err != nil {
		return nil, classify(path, err)
	}
	f := &File{
		path:   path,
		h5:     h,
		byName: make(map[string]*variable),
		coords: make(map[string][]float64),
	}
	if err := f.load(); err != nil {
		h.Close()
		return nil, classify(path, err)
	}
	return f, nil
}

type scale struct {
	ds    *hdf5.Dataset
	dimID int
	hasID bool
}

func (f *File) load() error {
	datasets, err := f.h5.Root().Datasets()
	if err != nil {
		return err
	}

	var scales []scale
	names := make(map[uint64]string)
	for _, ds := range datasets {
		isScale, pure, err := scaleKind(ds)
		if err != nil {
			return err
		}
		if isScale {
			s := scale{ds: ds}
			if id, ok, err := numericAttr(ds, attrDimID); err != nil {
				return err
			} else if ok {
				s.dimID, s.hasID = int(id), true
			}
			scales = append(scales, s)
			names[ds.Address()] = ds.Name()
		}
		if !pure {
			f.vars = append(f.vars, &variable{ds: ds, coordinate: isScale})
		}
	}

	ordered := true
	for _, s := range scales {
		ordered = ordered && s.hasID
	}
	if ordered {
		sort.SliceStable(scales, func(i, j int) bool { return scales[i].dimID < scales[j].dimID })
	}
	for _, s := range scales {
		f.dims = append(f.dims, dimensionOf(s.ds.Name(), s.ds))
	}

	phony := make(map[uint64]string)
	auxiliary := make(map[string]bool)
	for _, v := range f.vars {
		v.dims, err = f.dimensionNames(v, names, phony)
		if err != nil {
			return err
		}
		f.byName[v.ds.Name()] = v
		if coords, ok, err := stringAttr(v.ds, attrCoordinates); err != nil {
			return err
		} else if ok {
			for _, c := range strings.Fields(coords) {
				auxiliary[c] = true
			}
		}
	}
	for _, v := range f.vars {
		if auxiliary[v.ds.Name()] {
			v.coordinate = true
		}
	}
	return nil
}

func dimensionOf(name string, ds *hdf5.Dataset) chunking.Dimension {
	d := chunking.Dimension{Name: name}
	if shape := ds.Shape(); len(shape) > 0 {
		d.Size = shape[0]
		d.Unlimited = ds.MaxShape()[0] == message.Unlimited
	}
	return d
}

// scaleKind reports whether ds is a dimension scale, and whether it is a
// pure dimension rather than a variable.
func scaleKind(ds *hdf5.Dataset) (isScale, pure bool, err error) {
	class, ok, err := stringAttr(ds, attrClass)
	if err != nil || !ok || class != dimensionScale {
		return false, false, err
	}
	name, ok, err := stringAttr(ds, attrName)
	if err != nil {
		return false, false, err
	}
	return true, ok && strings.HasPrefix(name, pureDimension), nil
}

func (f *File) dimensionNames(v *variable, scales map[uint64]string, phony map[uint64]string) ([]string, error) {
	shape := v.ds.Shape()
	if len(shape) == 0 {
		return nil, nil
	}
	if v.coordinate && len(shape) == 1 {
		return []string{v.ds.Name()}, nil
	}

	attr, err := v.ds.Attribute(attrDimensionList)
	if err != nil {
		return nil, err
	}
	if attr != nil {
		refs, err := attr.References()
		if err != nil {
			return nil, err
		}
		if len(refs) != len(shape) {
			return nil, fmt.Errorf("%s: %s has %d entries for rank %d", v.ds.Path(), attrDimensionList, len(refs), len(shape))
		}
		dims := make([]string, len(refs))
		for i, r := range refs {
			if len(r) == 0 {
				return nil, fmt.Errorf("%s: dimension %d has no scale", v.ds.Path(), i)
			}
			name, ok := scales[r[0]]
			if !ok {
				return nil, fmt.Errorf("%s: dimension %d refers to %#x, which is not a dimension scale", v.ds.Path(), i, r[0])
			}
			dims[i] = name
		}
		return dims, nil
	}

	dims := make([]string, len(shape))
	for i, n := range shape {
		name, ok := phony[n]
		if !ok {
			name = fmt.Sprintf("phony_dim_%d", len(phony))
			phony[n] = name
			f.dims = append(f.dims, chunking.Dimension{Name: name, Size: n})
		}
		dims[i] = name
	}
	return dims, nil
}

// Path returns the path the file was opened with.
func (f *File) Path() string { return f.path }

// Size returns the file size in bytes.
func (f *File) Size() int64 { return f.h5.Size() }

// Dimensions returns the file's dimensions: dimension scales first, in
// definition order, then phony dimensions.
func (f *File) Dimensions() []chunking.Dimension {
	return slices.Clone(f.dims)
}

// Variables returns the variable names in definition order.
func (f *File) Variables() []string {
	out := make([]string, len(f.vars))
	for i, v := range f.vars {
		out[i] = v.ds.Name()
	}
	return out
}

// IsCoordinate reports whether name is a dimension coordinate or is listed
// in some variable's coordinates attribute.
func (f *File) IsCoordinate(name string) bool {
	v, ok := f.byName[name]
	return ok && v.coordinate
}

func (f *File) lookup(name string) (*variable, error) {
	v, ok := f.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q in %s", chunking.ErrVariableNotFound, name, f.path)
	}
	return v, nil
}

// Fact describes the storage layout of the named variable.
func (f *File) Fact(name string) (chunking.VariableLayoutFact, error) {
	v, err := f.lookup(name)
	if err != nil {
		return chunking.VariableLayoutFact{}, err
	}
	ds := v.ds
	fact := chunking.VariableLayoutFact{
		Name:        name,
		Dimensions:  slices.Clone(v.dims),
		Shape:       slices.Clone(ds.Shape()),
		Dtype:       ds.DtypeName(),
		Compression: chunking.CompressionNone,
		Coordinate:  v.coordinate,
	}
	if ds.IsChunked() {
		fact.Chunks, err = chunking.NewChunkShape(ds.ChunkDims()...)
		if err != nil {
			return chunking.VariableLayoutFact{}, fmt.Errorf("%w: %s: %s: %w", chunking.ErrCorruptMetadata, f.path, name, err)
		}
	}
	if c, ok := ds.CacheConfig(); ok {
		fact.Cache = chunking.Cache{Bytes: c.Bytes, Slots: c.Slots, Preemption: c.Preemption, Available: true}
	}

	if v, ok, err := numericAttr(ds, attrScaleFactor); err != nil {
		return chunking.VariableLayoutFact{}, classify(f.path, err)
	} else if ok {
		fact.Scale = chunking.Some(v)
	}
	if v, ok, err := numericAttr(ds, attrAddOffset); err != nil {
		return chunking.VariableLayoutFact{}, classify(f.path, err)
	} else if ok {
		fact.Offset = chunking.Some(v)
	}

	for _, fl := range ds.Filters() {
		switch fl.ID {
		case message.FilterShuffle:
			fact.Shuffle = true
		case message.FilterFletcher32:
			fact.Fletcher32 = true
		default:
			name, ok := compressors[fl.ID]
			if !ok || fact.Compression != chunking.CompressionNone {
				continue
			}
			fact.Compression = name
			if fl.ID == message.FilterDeflate && len(fl.ClientData) > 0 {
				fact.Level = chunking.Some(int(fl.ClientData[0]))
			}
		}
	}
	return fact, nil
}

// ReadPoint reads one element of the named variable: the one nearest lon
// and lat along its longitude and latitude dimensions, and index 0 along
// any other dimension.
func (f *File) ReadPoint(name string, lon, lat float64) (any, error) {
	v, err := f.lookup(name)
	if err != nil {
		return nil, err
	}
	coord := make([]uint64, len(v.dims))
	for i, d := range v.dims {
		var target float64
		switch {
		case matches(d, LatitudeNames):
			target = lat
		case matches(d, LongitudeNames):
			target = lon
		default:
			continue
		}
		coord[i], err = f.nearest(d, target)
		if err != nil {
			return nil, classify(f.path, err)
		}
	}
	val, err := v.ds.ReadPoint(coord...)
	if err != nil {
		return nil, classify(f.path, err)
	}
	return val, nil
}

func matches(dim string, names []string) bool {
	return slices.Contains(names, strings.ToLower(dim))
}

// nearest returns the index of the coordinate value of dim closest to
// target, or 0 when dim has no coordinate variable.
func (f *File) nearest(dim string, target float64) (uint64, error) {
	values, err := f.coordinateValues(dim)
	if err != nil || len(values) == 0 {
		return 0, err
	}
	best, bestDist := 0, math.Inf(1)
	for i, x := range values {
		if d := math.Abs(x - target); d < bestDist {
			best, bestDist = i, d
		}
	}
	return uint64(best), nil
}

func (f *File) coordinateValues(dim string) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if values, ok := f.coords[dim]; ok {
		return values, nil
	}
	var values []float64
	if v, ok := f.byName[dim]; ok && v.ds.Rank() == 1 {
		var err error
		if values, err = v.ds.ReadFloat64(); err != nil {
			return nil, err
		}
	}
	f.coords[dim] = values
	return values, nil
}

// Close releases the file.
func (f *File) Close() error {
	return f.h5.Close()
}

func stringAttr(ds *hdf5.Dataset, name string) (string, bool, error) {
	a, err := ds.Attribute(name)
	if err != nil || a == nil {
		return "", false, err
	}
	s, err := a.String()
	if err != nil {
		return "", false, nil
	}
	return s, true, nil
}

func numericAttr(ds *hdf5.Dataset, name string) (float64, bool, error) {
	a, err := ds.Attribute(name)
	if err != nil || a == nil {
		return 0, false, err
	}
	vals, err := a.Float64s()
	if err != nil || len(vals) == 0 {
		return 0, false, nil
	}
	return vals[0], true, nil
}

// classify maps reader errors onto the chunking error kinds.
func classify(path string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, chunking.ErrFileNotFound),
		errors.Is(err, chunking.ErrVariableNotFound),
		errors.Is(err, chunking.ErrCorruptMetadata),
		errors.Is(err, chunking.ErrExtraction):
		return err
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", chunking.ErrFileNotFound, path)
	case errors.Is(err, hdf5.ErrUnsupported), errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %s: %w", chunking.ErrExtraction, path, err)
	}
	return fmt.Errorf("%w: %s: %w", chunking.ErrCorruptMetadata, path, err)
}
