package h5test

import "fmt"

// Scale returns a one-dimensional coordinate variable that is also the
// dimension scale of the same name.
func Scale(name string, t Type, data []byte) *Dataset {
	n := uint64(len(data) / t.Size())
	return &Dataset{
		Type:  t,
		Dims:  []uint64{n},
		Data:  data,
		Attrs: []Attr{String("CLASS", "DIMENSION_SCALE"), String("NAME", name)},
	}
}

// Dimension returns a dimension scale that is not a variable, the way the
// netCDF library stores a dimension without a coordinate variable.
func Dimension(n uint64, unlimited bool) *Dataset {
	ds := &Dataset{
		Type: Float32,
		Dims: []uint64{n},
		Attrs: []Attr{
			String("CLASS", "DIMENSION_SCALE"),
			String("NAME", fmt.Sprintf("This is a netCDF dimension but not a netCDF variable.%10d", n)),
		},
	}
	if unlimited {
		ds.MaxDims = []uint64{Unlimited}
	}
	return ds
}

// WithDimID sets the _Netcdf4Dimid attribute of a scale and returns it.
func (ds *Dataset) WithDimID(id int32) *Dataset {
	ds.Attrs = append(ds.Attrs, Int32Attr("_Netcdf4Dimid", id))
	return ds
}

// Range returns the int16 values lo, lo+1, ... hi-1 encoded.
func Range(lo, hi int) []byte {
	v := make([]int16, 0, hi-lo)
	for i := lo; i < hi; i++ {
		v = append(v, int16(i))
	}
	return Int16s(v...)
}
