package hdf5

import (
	"errors"
	"fmt"
	"path"

	"github.com/robert-malhotra/chunkscan/internal/btree"
	"github.com/robert-malhotra/chunkscan/internal/heap"
	"github.com/robert-malhotra/chunkscan/internal/message"
	"github.com/robert-malhotra/chunkscan/internal/object"
)

// Group represents an HDF5 group.
type Group struct {
	file   *File
	path   string
	header *object.Header
}

// member is one named link of a group.
type member struct {
	name     string
	address  uint64
	soft     string
	external bool
}

// Name returns the group name (last component of path).
func (g *Group) Name() string {
	if g.path == "/" {
		return "/"
	}
	return path.Base(g.path)
}

// Path returns the full path to this group.
func (g *Group) Path() string {
	return g.path
}

// Address returns the address of the group's object header.
func (g *Group) Address() uint64 {
	return g.header.Address
}

// Members returns the names of the group's links. New-style groups list them
// in creation order when it is tracked; symbol-table groups in name order.
func (g *Group) Members() ([]string, error) {
	members, err := g.members()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(members))
	for i, m := range members {
		names[i] = m.name
	}
	return names, nil
}

func (g *Group) members() ([]member, error) {
	r := g.file.reader
	st := g.header.SymbolTable()
	if st == nil && g.path == "/" && g.file.superblock.RootBTreeAddress != 0 {
		st = &message.SymbolTable{
			BTreeAddress:     g.file.superblock.RootBTreeAddress,
			LocalHeapAddress: g.file.superblock.RootHeapAddress,
		}
	}
	if st != nil {
		names, err := heap.ReadLocalHeap(r, st.LocalHeapAddress)
		if err != nil {
			return nil, fmt.Errorf("group %s: reading local heap: %w", g.path, classify(err))
		}
		entries, err := btree.ReadGroupEntries(r, st.BTreeAddress, names)
		if err != nil {
			return nil, fmt.Errorf("group %s: reading B-tree: %w", g.path, classify(err))
		}
		out := make([]member, len(entries))
		for i, e := range entries {
			out[i] = member{name: e.Name, address: e.ObjectAddress, soft: e.SoftLink}
		}
		return out, nil
	}

	links, err := g.header.Links(r)
	if err != nil {
		return nil, fmt.Errorf("group %s: %w", g.path, classify(err))
	}
	out := make([]member, 0, len(links))
	for _, l := range links {
		m := member{name: l.Name, address: l.ObjectAddress}
		switch l.LinkType {
		case message.LinkSoft:
			m.soft = l.Target
		case message.LinkHard:
		default:
			m.external = true
		}
		out = append(out, m)
	}
	return out, nil
}

// Datasets returns the datasets directly in this group, in member order.
// Links that do not resolve to a dataset are skipped.
func (g *Group) Datasets() ([]*Dataset, error) {
	var out []*Dataset
	err := g.eachChild(func(obj any) {
		if ds, ok := obj.(*Dataset); ok {
			out = append(out, ds)
		}
	})
	return out, err
}

// Groups returns the subgroups of this group, in member order.
func (g *Group) Groups() ([]*Group, error) {
	var out []*Group
	err := g.eachChild(func(obj any) {
		if sub, ok := obj.(*Group); ok {
			out = append(out, sub)
		}
	})
	return out, err
}

func (g *Group) eachChild(fn func(any)) error {
	members, err := g.members()
	if err != nil {
		return err
	}
	for _, m := range members {
		if m.external {
			continue
		}
		obj, err := g.resolve(m, make(map[string]bool))
		if err != nil {
			if errors.Is(err, ErrNotFound) && m.soft != "" {
				continue // dangling soft link
			}
			return err
		}
		fn(obj)
	}
	return nil
}

// OpenGroup opens a subgroup by relative path.
func (g *Group) OpenGroup(relativePath string) (*Group, error) {
	obj, err := g.open(relativePath)
	if err != nil {
		return nil, err
	}
	group, ok := obj.(*Group)
	if !ok {
		return nil, ErrNotGroup
	}
	return group, nil
}

// OpenDataset opens a dataset by relative path.
func (g *Group) OpenDataset(relativePath string) (*Dataset, error) {
	obj, err := g.open(relativePath)
	if err != nil {
		return nil, err
	}
	dataset, ok := obj.(*Dataset)
	if !ok {
		return nil, ErrNotDataset
	}
	return dataset, nil
}

// open resolves a path relative to g; an absolute path starts at the root.
func (g *Group) open(p string) (any, error) {
	return g.openVisited(p, make(map[string]bool))
}

func (g *Group) openVisited(p string, visited map[string]bool) (any, error) {
	start := g
	if len(p) > 0 && p[0] == '/' {
		start = g.file.root
	}
	parts := SplitPath(p)
	if len(parts) == 0 {
		return start, nil
	}

	current := start
	for i, name := range parts {
		m, err := current.find(name)
		if err != nil {
			return nil, err
		}
		obj, err := current.resolve(m, visited)
		if err != nil {
			return nil, err
		}
		if i == len(parts)-1 {
			return obj, nil
		}
		next, ok := obj.(*Group)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a group", ErrInvalidPath, path.Join(current.path, name))
		}
		current = next
	}
	return current, nil
}

func (g *Group) find(name string) (member, error) {
	members, err := g.members()
	if err != nil {
		return member{}, err
	}
	for _, m := range members {
		if m.name == name {
			return m, nil
		}
	}
	return member{}, fmt.Errorf("%s: %w", path.Join(g.path, name), ErrNotFound)
}

// resolve opens the object a member points at, following soft links.
func (g *Group) resolve(m member, visited map[string]bool) (any, error) {
	full := path.Join(g.path, m.name)
	switch {
	case m.external:
		return nil, fmt.Errorf("%w: external link %s", ErrUnsupported, full)
	case m.soft != "":
		if len(visited) >= MaxLinkDepth {
			return nil, ErrLinkDepth
		}
		target := m.soft
		if target[0] != '/' {
			target = path.Join(g.path, target)
		}
		if visited[target] {
			return nil, fmt.Errorf("circular soft link %s -> %s", full, target)
		}
		visited[target] = true
		return g.file.root.openVisited(target, visited)
	}
	return g.file.openObjectAt(m.address, full)
}

// Attributes returns the group's attributes.
func (g *Group) Attributes() ([]*Attribute, error) {
	return attributes(g.file, g.header)
}

// Attribute returns the named attribute, or nil when the group has none by
// that name.
func (g *Group) Attribute(name string) (*Attribute, error) {
	return attribute(g.file, g.header, name)
}
