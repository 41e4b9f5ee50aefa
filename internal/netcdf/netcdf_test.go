package netcdf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/chunkscan/internal/chunking"
	"github.com/robert-malhotra/chunkscan/internal/h5test"
)

// sampleFile builds a file laid out like one written by the netCDF library:
//
//	dimensions: time (unlimited) = 2, lat = 3, lon = 4
//	float32 lat(lat), float64 lon(lon)
//	int16 temperature(time, lat, lon), chunked 1x2x3, shuffled and deflated
//	float32 height, listed in temperature's coordinates
//	uint8 mask, no dimension list
func sampleFile() *h5test.Group {
	timeDim := h5test.Dimension(2, true).WithDimID(0)
	lat := h5test.Scale("lat", h5test.Float32, h5test.Float32s(10, 20, 30)).WithDimID(1)
	lon := h5test.Scale("lon", h5test.Float64, h5test.Float64s(0, 5, 10, 15)).WithDimID(2)

	temperature := &h5test.Dataset{
		Type:    h5test.Int16,
		Dims:    []uint64{2, 3, 4},
		MaxDims: []uint64{h5test.Unlimited, 3, 4},
		Layout:  h5test.Chunked,
		Chunks:  []uint64{1, 2, 3},
		Filters: []h5test.Filter{h5test.Shuffle(2), h5test.Deflate(4)},
		Data:    h5test.Range(0, 24),
		Attrs: []h5test.Attr{
			h5test.Float32Attr("scale_factor", 0.5),
			h5test.Float64Attr("add_offset", 273.25),
			h5test.String("coordinates", "height"),
		},
		Dimensions: []*h5test.Dataset{timeDim, lat, lon},
	}
	height := &h5test.Dataset{Type: h5test.Float32, Data: h5test.Float32s(2)}
	mask := &h5test.Dataset{Type: h5test.Uint8, Dims: []uint64{3, 4}, Data: make([]byte, 12)}

	// Scales come first in the file, but not in dimension id order.
	return (&h5test.Group{}).
		Add("lat", lat).
		Add("lon", lon).
		Add("time", timeDim).
		Add("temperature", temperature).
		Add("height", height).
		Add("mask", mask)
}

func openSample(t *testing.T, root *h5test.Group) *File {
	t.Helper()
	path, err := h5test.WriteFile(t.TempDir(), "sample.nc", root)
	require.NoError(t, err)
	f, err := Open(path, DefaultCacheConfig())
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestDimensions(t *testing.T) {
	f := openSample(t, sampleFile())

	assert.Equal(t, []chunking.Dimension{
		{Name: "time", Size: 2, Unlimited: true},
		{Name: "lat", Size: 3},
		{Name: "lon", Size: 4},
		{Name: "phony_dim_0", Size: 3},
		{Name: "phony_dim_1", Size: 4},
	}, f.Dimensions())
}

func TestVariables(t *testing.T) {
	f := openSample(t, sampleFile())

	assert.Equal(t, []string{"lat", "lon", "temperature", "height", "mask"}, f.Variables())
	for name, want := range map[string]bool{
		"lat": true, "lon": true, "height": true,
		"temperature": false, "mask": false, "time": false,
	} {
		assert.Equal(t, want, f.IsCoordinate(name), name)
	}
}

func TestChunkedFact(t *testing.T) {
	f := openSample(t, sampleFile())

	fact, err := f.Fact("temperature")
	require.NoError(t, err)

	def := DefaultCacheConfig()
	assert.Equal(t, chunking.VariableLayoutFact{
		Name:        "temperature",
		Dimensions:  []string{"time", "lat", "lon"},
		Shape:       []uint64{2, 3, 4},
		Chunks:      chunking.MustChunkShape(1, 2, 3),
		Cache:       chunking.Cache{Bytes: def.Bytes, Slots: def.Slots, Preemption: def.Preemption, Available: true},
		Dtype:       "int16",
		Scale:       chunking.Some(0.5),
		Offset:      chunking.Some(273.25),
		Compression: "zlib",
		Level:       chunking.Some(4),
		Shuffle:     true,
	}, fact)
	assert.Equal(t, uint64(24), fact.NumElements())
}

func TestContiguousFact(t *testing.T) {
	f := openSample(t, sampleFile())

	fact, err := f.Fact("lat")
	require.NoError(t, err)
	assert.True(t, fact.Chunks.IsContiguous())
	assert.False(t, fact.Cache.Available)
	assert.Equal(t, chunking.CompressionNone, fact.Compression)
	assert.False(t, fact.Level.Valid)
	assert.False(t, fact.Scale.Valid)
	assert.True(t, fact.Coordinate)
	assert.Equal(t, []string{"lat"}, fact.Dimensions)
	assert.Equal(t, "float32", fact.Dtype)

	fact, err = f.Fact("mask")
	require.NoError(t, err)
	assert.Equal(t, []string{"phony_dim_0", "phony_dim_1"}, fact.Dimensions)

	fact, err = f.Fact("height")
	require.NoError(t, err)
	assert.Empty(t, fact.Shape)
	assert.Equal(t, uint64(1), fact.NumElements())
}

func TestFactMissingVariable(t *testing.T) {
	f := openSample(t, sampleFile())

	_, err := f.Fact("pressure")
	assert.ErrorIs(t, err, chunking.ErrVariableNotFound)
	_, err = f.Fact("time")
	assert.ErrorIs(t, err, chunking.ErrVariableNotFound)
	_, err = f.ReadPoint("pressure", 0, 0)
	assert.ErrorIs(t, err, chunking.ErrVariableNotFound)
}

func TestReadPoint(t *testing.T) {
	f := openSample(t, sampleFile())

	// lat 19 is nearest 20 (index 1), lon 11 is nearest 10 (index 2).
	v, err := f.ReadPoint("temperature", 11, 19)
	require.NoError(t, err)
	assert.Equal(t, int16(6), v)

	v, err = f.ReadPoint("temperature", 100, -100)
	require.NoError(t, err)
	assert.Equal(t, int16(3), v)

	v, err = f.ReadPoint("mask", 11, 19)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), v)

	v, err = f.ReadPoint("height", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, float32(2), v)
}

func TestOrderWithoutDimIDs(t *testing.T) {
	lat := h5test.Scale("lat", h5test.Float32, h5test.Float32s(1, 2))
	lon := h5test.Scale("lon", h5test.Float32, h5test.Float32s(1, 2, 3))
	root := (&h5test.Group{}).
		Add("lon", lon).
		Add("lat", lat).
		Add("field", &h5test.Dataset{
			Type:       h5test.Float32,
			Dims:       []uint64{2, 3},
			Data:       h5test.Float32s(0, 1, 2, 3, 4, 5),
			Dimensions: []*h5test.Dataset{lat, lon},
		})
	f := openSample(t, root)

	assert.Equal(t, []chunking.Dimension{{Name: "lon", Size: 3}, {Name: "lat", Size: 2}}, f.Dimensions())
	fact, err := f.Fact("field")
	require.NoError(t, err)
	assert.Equal(t, []string{"lat", "lon"}, fact.Dimensions)
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(filepath.Join(dir, "missing.nc"), DefaultCacheConfig())
	assert.ErrorIs(t, err, chunking.ErrFileNotFound)

	garbage := filepath.Join(dir, "garbage.nc")
	require.NoError(t, os.WriteFile(garbage, []byte("not a netCDF file at all"), 0o644))
	_, err = Open(garbage, DefaultCacheConfig())
	assert.ErrorIs(t, err, chunking.ErrCorruptMetadata)
}

func TestUnsupportedFilter(t *testing.T) {
	root := (&h5test.Group{}).Add("packed", &h5test.Dataset{
		Type:    h5test.Int16,
		Dims:    []uint64{4},
		Layout:  h5test.Chunked,
		Chunks:  []uint64{2},
		Filters: []h5test.Filter{{ID: 4, ClientData: []uint32{4, 32}}},
		Data:    h5test.Range(0, 4),
	})
	f := openSample(t, root)

	fact, err := f.Fact("packed")
	require.NoError(t, err)
	assert.Equal(t, "szip", fact.Compression)
	assert.False(t, fact.Level.Valid)

	_, err = f.ReadPoint("packed", 0, 0)
	assert.ErrorIs(t, err, chunking.ErrExtraction)
}
