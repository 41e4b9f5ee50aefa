package object

import (
	"fmt"
	"sort"

	"github.com/robert-malhotra/chunkscan/internal/binary"
	"github.com/robert-malhotra/chunkscan/internal/btree"
	"github.com/robert-malhotra/chunkscan/internal/heap"
	"github.com/robert-malhotra/chunkscan/internal/message"
)

// Links returns the links of a new-style group, compact or dense. When every
// link carries a creation order the result is sorted by it.
func (h *Header) Links(r *binary.Reader) ([]*message.Link, error) {
	var links []*message.Link
	for _, msg := range h.GetMessages(message.TypeLink) {
		links = append(links, msg.(*message.Link))
	}

	if li := h.LinkInfo(); li != nil && !r.IsUndefined(li.FractalHeapAddress) {
		err := walkDense(r, li.FractalHeapAddress, li.NameIndexAddress, btree.TypeLinkName,
			func(rec []byte, hp *heap.FractalHeap) ([]byte, uint8, error) {
				if len(rec) < 4+hp.IDLen {
					return nil, 0, fmt.Errorf("link name record of %d bytes", len(rec))
				}
				return rec[4 : 4+hp.IDLen], 0, nil
			},
			func(msg message.Message) {
				if l, ok := msg.(*message.Link); ok {
					links = append(links, l)
				}
			}, message.TypeLink)
		if err != nil {
			return nil, fmt.Errorf("dense links of object %d: %w", h.Address, err)
		}
	}

	ordered := true
	for _, l := range links {
		ordered = ordered && l.HasOrder
	}
	if ordered {
		sort.SliceStable(links, func(i, j int) bool { return links[i].CreationOrder < links[j].CreationOrder })
	}
	return links, nil
}

// Attributes returns the object's attributes, compact or dense.
func (h *Header) Attributes(r *binary.Reader) ([]*message.Attribute, error) {
	var attrs []*message.Attribute
	for _, msg := range h.GetMessages(message.TypeAttribute) {
		attrs = append(attrs, msg.(*message.Attribute))
	}

	ai := h.AttributeInfo()
	if ai == nil || r.IsUndefined(ai.FractalHeapAddress) {
		return attrs, nil
	}
	dense := &Header{Address: h.Address}
	err := walkDense(r, ai.FractalHeapAddress, ai.NameIndexAddress, btree.TypeAttributeName,
		func(rec []byte, hp *heap.FractalHeap) ([]byte, uint8, error) {
			if len(rec) < hp.IDLen+1 {
				return nil, 0, fmt.Errorf("attribute name record of %d bytes", len(rec))
			}
			return rec[:hp.IDLen], rec[hp.IDLen], nil
		},
		func(msg message.Message) { dense.Messages = append(dense.Messages, msg) },
		message.TypeAttribute)
	if err != nil {
		return nil, fmt.Errorf("dense attributes of object %d: %w", h.Address, err)
	}
	if err := dense.resolveShared(r, 0); err != nil {
		return nil, err
	}
	for _, msg := range dense.Messages {
		if a, ok := msg.(*message.Attribute); ok {
			attrs = append(attrs, a)
		}
	}
	return attrs, nil
}

// Attribute returns the named attribute, or nil.
func (h *Header) Attribute(r *binary.Reader, name string) (*message.Attribute, error) {
	attrs, err := h.Attributes(r)
	if err != nil {
		return nil, err
	}
	for _, a := range attrs {
		if a.Name == name {
			return a, nil
		}
	}
	return nil, nil
}

// walkDense decodes every message stored in a fractal heap and indexed by
// the name B-tree at index.
func walkDense(
	r *binary.Reader,
	heapAddr, index uint64,
	recordType uint8,
	heapID func(rec []byte, hp *heap.FractalHeap) ([]byte, uint8, error),
	emit func(message.Message),
	typ message.Type,
) error {
	hp, err := heap.ReadFractalHeap(r, heapAddr)
	if err != nil {
		return err
	}
	tree, err := btree.OpenV2(r, index)
	if err != nil {
		return err
	}
	if tree.Type != recordType {
		return fmt.Errorf("name index has record type %d, want %d", tree.Type, recordType)
	}
	return tree.Walk(func(rec []byte) error {
		id, flags, err := heapID(rec, hp)
		if err != nil {
			return err
		}
		data, err := hp.Object(id)
		if err != nil {
			return err
		}
		msg, err := message.Parse(typ, data, flags, r)
		if err != nil {
			return err
		}
		emit(msg)
		return nil
	})
}
