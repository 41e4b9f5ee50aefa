package filter

import (
	"bytes"
	"compress/zlib"
	"io"

	"github.com/robert-malhotra/chunkscan/internal/message"
)

type deflate struct{}

func (deflate) ID() uint16 { return message.FilterDeflate }

func (deflate) Decode(in []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(in))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
