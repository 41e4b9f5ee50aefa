package message

import (
	"encoding/binary"
	"fmt"
)

// Filter identifiers defined by the HDF5 library.
const (
	FilterDeflate     uint16 = 1
	FilterShuffle     uint16 = 2
	FilterFletcher32  uint16 = 3
	FilterSZIP        uint16 = 4
	FilterNBit        uint16 = 5
	FilterScaleOffset uint16 = 6
)

// FilterInfo describes one stage of a filter pipeline.
type FilterInfo struct {
	ID         uint16
	Flags      uint16
	Name       string
	ClientData []uint32
}

// IsOptional reports whether a chunk may skip this filter.
func (f FilterInfo) IsOptional() bool { return f.Flags&0x01 != 0 }

// FilterPipeline is message 0x000B.
type FilterPipeline struct {
	Version uint8
	Filters []FilterInfo
}

func (m *FilterPipeline) Type() Type { return TypeFilterPipeline }

// Find returns the first filter with the given id.
func (m *FilterPipeline) Find(id uint16) (FilterInfo, bool) {
	if m == nil {
		return FilterInfo{}, false
	}
	for _, f := range m.Filters {
		if f.ID == id {
			return f, true
		}
	}
	return FilterInfo{}, false
}

/*
Filter Pipeline Layout:
Version 1: version(1) nfilters(1) reserved(6) filters...
Version 2: version(1) nfilters(1) filters...

Filter description:
0       2     Filter ID
2       2     Name length (version 1, or version 2 with ID >= 256)
var     2     Flags
var     2     Number of client data values
var     var   Name (version 1: padded to a multiple of 8)
var     4*n   Client data (version 1: padded to an even count)
*/
func parseFilterPipeline(data []byte) (*FilterPipeline, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("filter pipeline message too short")
	}
	fp := &FilterPipeline{Version: data[0], Filters: make([]FilterInfo, data[1])}
	off := 2
	switch fp.Version {
	case 1:
		off = 8
	case 2:
	default:
		return nil, fmt.Errorf("unsupported filter pipeline version %d", fp.Version)
	}

	for i := range fp.Filters {
		f, n, err := parseFilterInfo(data[min(off, len(data)):], fp.Version)
		if err != nil {
			return nil, fmt.Errorf("filter %d: %w", i, err)
		}
		fp.Filters[i] = f
		off += n
	}
	return fp, nil
}

func parseFilterInfo(data []byte, version uint8) (FilterInfo, int, error) {
	var f FilterInfo
	need := func(n int) error {
		if n > len(data) {
			return fmt.Errorf("filter description truncated")
		}
		return nil
	}
	if err := need(2); err != nil {
		return f, 0, err
	}
	f.ID = binary.LittleEndian.Uint16(data)
	off := 2

	var nameLen int
	if version == 1 || f.ID >= 256 {
		if err := need(off + 2); err != nil {
			return f, 0, err
		}
		nameLen = int(binary.LittleEndian.Uint16(data[off:]))
		off += 2
	}
	if err := need(off + 4); err != nil {
		return f, 0, err
	}
	f.Flags = binary.LittleEndian.Uint16(data[off:])
	ncd := int(binary.LittleEndian.Uint16(data[off+2:]))
	off += 4

	if nameLen > 0 {
		if version == 1 && nameLen%8 != 0 {
			nameLen += 8 - nameLen%8
		}
		if err := need(off + nameLen); err != nil {
			return f, 0, err
		}
		f.Name = cstring(data[off : off+nameLen])
		off += nameLen
	}

	if err := need(off + 4*ncd); err != nil {
		return f, 0, err
	}
	f.ClientData = make([]uint32, ncd)
	for i := range f.ClientData {
		f.ClientData[i] = binary.LittleEndian.Uint32(data[off:])
		off += 4
	}
	if version == 1 && ncd%2 != 0 {
		off += 4
	}
	return f, off, nil
}
