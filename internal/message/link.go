package message

import (
	"fmt"

	"github.com/robert-malhotra/chunkscan/internal/binary"
)

// LinkType is the kind of link stored in a link message.
type LinkType uint8

const (
	LinkHard     LinkType = 0
	LinkSoft     LinkType = 1
	LinkExternal LinkType = 64
)

// Link is message 0x0006: one named member of a compact-storage group.
type Link struct {
	Version       uint8
	LinkType      LinkType
	CreationOrder uint64
	HasOrder      bool
	Name          string

	ObjectAddress uint64 // hard links
	Target        string // soft links
}

func (m *Link) Type() Type { return TypeLink }

/*
Link Layout:
0       1     Version (1)
1       1     Flags
              bits 0-1: size of the name length field (1 << n bytes)
              bit 2: creation order present
              bit 3: link type present
              bit 4: character set present
var     1     Link type
var     8     Creation order
var     1     Character set
var     1-8   Name length
var     var   Name
var     var   Hard: address(O); soft: length(2) path; external: length(2) blob
*/
func parseLink(data []byte, r *binary.Reader) (*Link, error) {
	c := r.Over(data)
	version, err := c.ReadUint8()
	if err != nil {
		return nil, err
	}
	if version != 1 {
		return nil, fmt.Errorf("unsupported link version %d", version)
	}
	flags, err := c.ReadUint8()
	if err != nil {
		return nil, err
	}
	l := &Link{Version: version}

	if flags&0x08 != 0 {
		t, err := c.ReadUint8()
		if err != nil {
			return nil, err
		}
		l.LinkType = LinkType(t)
	}
	if flags&0x04 != 0 {
		if l.CreationOrder, err = c.ReadUint64(); err != nil {
			return nil, err
		}
		l.HasOrder = true
	}
	if flags&0x10 != 0 {
		c.Skip(1)
	}
	nameLen, err := c.ReadUintN(1 << (flags & 0x03))
	if err != nil {
		return nil, err
	}
	name, err := c.ReadBytes(int(nameLen))
	if err != nil {
		return nil, fmt.Errorf("link name: %w", err)
	}
	l.Name = string(name)

	switch l.LinkType {
	case LinkHard:
		l.ObjectAddress, err = c.ReadOffset()
	case LinkSoft:
		var n uint16
		if n, err = c.ReadUint16(); err == nil {
			var target []byte
			target, err = c.ReadBytes(int(n))
			l.Target = string(target)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("link %q: %w", l.Name, err)
	}
	return l, nil
}

// LinkInfo is message 0x0002. A defined FractalHeapAddress means the
// group stores its links densely rather than as link messages.
type LinkInfo struct {
	FractalHeapAddress uint64
	NameIndexAddress   uint64
}

func (m *LinkInfo) Type() Type { return TypeLinkInfo }

func parseLinkInfo(data []byte, r *binary.Reader) (*LinkInfo, error) {
	c := r.Over(data)
	if _, err := c.ReadUint8(); err != nil {
		return nil, err
	}
	flags, err := c.ReadUint8()
	if err != nil {
		return nil, err
	}
	if flags&0x01 != 0 {
		c.Skip(8)
	}
	li := &LinkInfo{}
	if li.FractalHeapAddress, err = c.ReadOffset(); err != nil {
		return nil, err
	}
	if li.NameIndexAddress, err = c.ReadOffset(); err != nil {
		return nil, err
	}
	return li, nil
}

// SymbolTable is message 0x0011: the B-tree and local heap of an
// old-style group.
type SymbolTable struct {
	BTreeAddress     uint64
	LocalHeapAddress uint64
}

func (m *SymbolTable) Type() Type { return TypeSymbolTable }

func parseSymbolTable(data []byte, r *binary.Reader) (*SymbolTable, error) {
	c := r.Over(data)
	bt, err := c.ReadOffset()
	if err != nil {
		return nil, fmt.Errorf("symbol table message: %w", err)
	}
	lh, err := c.ReadOffset()
	if err != nil {
		return nil, fmt.Errorf("symbol table message: %w", err)
	}
	return &SymbolTable{BTreeAddress: bt, LocalHeapAddress: lh}, nil
}
