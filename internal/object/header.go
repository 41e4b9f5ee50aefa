package object

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/chunkscan/internal/binary"
	"github.com/robert-malhotra/chunkscan/internal/message"
)

var (
	ErrInvalidHeader      = errors.New("invalid object header")
	ErrUnsupportedVersion = errors.New("unsupported object header version")
	ErrChecksumMismatch   = errors.New("object header checksum mismatch")
)

// maxSharedDepth bounds chains of committed datatypes.
const maxSharedDepth = 4

// Header is a parsed object header.
type Header struct {
	Address  uint64
	Version  uint8
	Messages []message.Message
}

// Read parses the object header at address.
func Read(r *binary.Reader, address uint64) (*Header, error) {
	return read(r, address, 0)
}

func read(r *binary.Reader, address uint64, depth int) (*Header, error) {
	if r.IsUndefined(address) {
		return nil, fmt.Errorf("%w: undefined address", ErrInvalidHeader)
	}
	peek, err := r.At(int64(address)).Peek(4)
	if err != nil {
		return nil, fmt.Errorf("object header at %d: %w", address, err)
	}

	var h *Header
	switch {
	case string(peek) == "OHDR":
		h, err = readV2(r, address)
	case peek[0] == 1:
		h, err = readV1(r, address)
	default:
		return nil, fmt.Errorf("%w at %d", ErrInvalidHeader, address)
	}
	if err != nil {
		return nil, err
	}
	if err := h.resolveShared(r, depth); err != nil {
		return nil, fmt.Errorf("object header at %d: %w", address, err)
	}
	return h, nil
}

// resolveShared replaces shared datatype references with the committed
// datatype they name.
func (h *Header) resolveShared(r *binary.Reader, depth int) error {
	committed := func(addr uint64) (*message.Datatype, error) {
		if depth >= maxSharedDepth {
			return nil, fmt.Errorf("shared datatype chain deeper than %d", maxSharedDepth)
		}
		target, err := read(r, addr, depth+1)
		if err != nil {
			return nil, fmt.Errorf("committed datatype: %w", err)
		}
		dt := target.Datatype()
		if dt == nil {
			return nil, fmt.Errorf("committed datatype at %d has no datatype message", addr)
		}
		return dt, nil
	}

	for i, msg := range h.Messages {
		switch m := msg.(type) {
		case *message.Shared:
			if m.Of != message.TypeDatatype {
				continue
			}
			dt, err := committed(m.Address)
			if err != nil {
				return err
			}
			h.Messages[i] = dt
		case *message.Attribute:
			if m.Datatype != nil || m.SharedDatatype == 0 {
				continue
			}
			dt, err := committed(m.SharedDatatype)
			if err != nil {
				return fmt.Errorf("attribute %q: %w", m.Name, err)
			}
			m.Datatype = dt
		}
	}
	return nil
}

// GetMessage returns the first message of type typ, or nil.
func (h *Header) GetMessage(typ message.Type) message.Message {
	for _, msg := range h.Messages {
		if msg.Type() == typ {
			return msg
		}
	}
	return nil
}

// GetMessages returns every message of type typ.
func (h *Header) GetMessages(typ message.Type) []message.Message {
	var out []message.Message
	for _, msg := range h.Messages {
		if msg.Type() == typ {
			out = append(out, msg)
		}
	}
	return out
}

func get[T message.Message](h *Header, typ message.Type) T {
	var zero T
	for _, msg := range h.Messages {
		if msg.Type() != typ {
			continue
		}
		if m, ok := msg.(T); ok {
			return m
		}
	}
	return zero
}

func (h *Header) Dataspace() *message.Dataspace {
	return get[*message.Dataspace](h, message.TypeDataspace)
}

func (h *Header) Datatype() *message.Datatype {
	return get[*message.Datatype](h, message.TypeDatatype)
}

func (h *Header) DataLayout() *message.DataLayout {
	return get[*message.DataLayout](h, message.TypeDataLayout)
}

func (h *Header) FilterPipeline() *message.FilterPipeline {
	return get[*message.FilterPipeline](h, message.TypeFilterPipeline)
}

func (h *Header) SymbolTable() *message.SymbolTable {
	return get[*message.SymbolTable](h, message.TypeSymbolTable)
}

func (h *Header) LinkInfo() *message.LinkInfo {
	return get[*message.LinkInfo](h, message.TypeLinkInfo)
}

func (h *Header) AttributeInfo() *message.AttributeInfo {
	return get[*message.AttributeInfo](h, message.TypeAttributeInfo)
}

// IsGroup reports whether the header describes a group.
func (h *Header) IsGroup() bool {
	return h.SymbolTable() != nil || h.LinkInfo() != nil ||
		(h.DataLayout() == nil && h.GetMessage(message.TypeLink) != nil)
}

// IsDataset reports whether the header describes a dataset.
func (h *Header) IsDataset() bool {
	return h.DataLayout() != nil && h.Dataspace() != nil
}
