package filter

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	binpkg "github.com/robert-malhotra/chunkscan/internal/binary"
	"github.com/robert-malhotra/chunkscan/internal/message"
)

// fletcher32 strips and checks the trailing checksum.
type fletcher32 struct{}

func (fletcher32) ID() uint16 { return message.FilterFletcher32 }

func (fletcher32) Decode(in []byte) ([]byte, error) {
	if len(in) < 4 {
		return nil, fmt.Errorf("chunk of %d bytes has no checksum", len(in))
	}
	data := in[:len(in)-4]
	stored := binary.LittleEndian.Uint32(in[len(in)-4:])
	sum := binpkg.Fletcher32(data)
	// Files from some early library releases stored the checksum byte-swapped.
	if stored != sum && stored != bits.ReverseBytes32(sum) {
		return nil, fmt.Errorf("checksum %#08x, stored %#08x", sum, stored)
	}
	return data, nil
}
