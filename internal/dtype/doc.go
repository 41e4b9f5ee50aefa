// Package dtype decodes fixed-size HDF5 element bytes into Go values and
// names datatypes the way NetCDF tools print them.
//
// HDF5 datatypes map to Go values as follows:
//
//	HDF5 Class        | Go value
//	------------------|------------------
//	Fixed-point (int) | int8/16/32/64 or uint8/16/32/64 by size and signedness
//	Floating-point    | float32 (4 bytes) or float64 (8 bytes)
//	String (fixed)    | string, padding removed
//
// Variable-length data lives in the global heap and is resolved by the
// caller; [Name] still describes it.
package dtype
