// Package filter undoes the HDF5 filters applied to stored chunks.
//
// A [Pipeline] is built from a dataset's filter pipeline message and decodes
// chunks by running the registered decoders in reverse order. Deflate,
// shuffle and Fletcher-32 are built in; optional filters without a decoder
// are skipped, mandatory ones make the dataset unreadable.
package filter

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/chunkscan/internal/message"
)

// ErrUnsupported is returned when a mandatory filter has no decoder.
var ErrUnsupported = errors.New("unsupported filter")

// Decoder reverses one filter.
type Decoder interface {
	ID() uint16
	Decode(in []byte) ([]byte, error)
}

var registry = map[uint16]func(cd []uint32) Decoder{
	message.FilterDeflate:    func([]uint32) Decoder { return deflate{} },
	message.FilterShuffle:    newShuffle,
	message.FilterFletcher32: func([]uint32) Decoder { return fletcher32{} },
}

var names = map[uint16]string{
	message.FilterDeflate:     "deflate",
	message.FilterShuffle:     "shuffle",
	message.FilterFletcher32:  "fletcher32",
	message.FilterSZIP:        "szip",
	message.FilterNBit:        "nbit",
	message.FilterScaleOffset: "scaleoffset",
}

// Name returns a short name for a filter id.
func Name(id uint16) string {
	if n, ok := names[id]; ok {
		return n
	}
	return fmt.Sprintf("filter(%d)", id)
}

// Pipeline decodes chunk data.
type Pipeline struct {
	// stages is indexed by position in the filter pipeline message; nil
	// entries are optional filters this package cannot decode.
	stages []Decoder
}

// NewPipeline builds a pipeline from a filter pipeline message, which may be nil.
func NewPipeline(fp *message.FilterPipeline) (*Pipeline, error) {
	p := &Pipeline{}
	if fp == nil {
		return p, nil
	}
	for _, info := range fp.Filters {
		ctor, ok := registry[info.ID]
		if !ok {
			if info.IsOptional() {
				p.stages = append(p.stages, nil)
				continue
			}
			return nil, fmt.Errorf("%w: %s", ErrUnsupported, Name(info.ID))
		}
		p.stages = append(p.stages, ctor(info.ClientData))
	}
	return p, nil
}

// Decode reverses the pipeline. Bit i of mask set means stage i was not
// applied when the chunk was written.
func (p *Pipeline) Decode(data []byte, mask uint32) ([]byte, error) {
	for i := len(p.stages) - 1; i >= 0; i-- {
		if mask&(1<<uint(i)) != 0 {
			continue
		}
		d := p.stages[i]
		if d == nil {
			return nil, fmt.Errorf("%w: optional filter %d was applied to this chunk", ErrUnsupported, i)
		}
		var err error
		if data, err = d.Decode(data); err != nil {
			return nil, fmt.Errorf("%s: %w", Name(d.ID()), err)
		}
	}
	return data, nil
}

// Len returns the number of stages.
func (p *Pipeline) Len() int { return len(p.stages) }
