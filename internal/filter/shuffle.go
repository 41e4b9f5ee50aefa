package filter

import "github.com/robert-malhotra/chunkscan/internal/message"

// shuffle stores byte k of every element contiguously; client data [0] is
// the element size.
type shuffle struct {
	size int
}

func newShuffle(cd []uint32) Decoder {
	s := shuffle{size: 1}
	if len(cd) > 0 && cd[0] > 0 {
		s.size = int(cd[0])
	}
	return s
}

func (shuffle) ID() uint16 { return message.FilterShuffle }

func (s shuffle) Decode(in []byte) ([]byte, error) {
	n := len(in) / s.size
	if s.size <= 1 || n <= 1 {
		return in, nil
	}
	out := make([]byte, len(in))
	for b := 0; b < s.size; b++ {
		plane := in[b*n : (b+1)*n]
		for i, v := range plane {
			out[i*s.size+b] = v
		}
	}
	// Trailing bytes that do not fill an element are stored unshuffled.
	copy(out[n*s.size:], in[n*s.size:])
	return out, nil
}
