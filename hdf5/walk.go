package hdf5

import (
	"errors"
	"path"
)

// WalkFunc is called for each object during traversal.
// path is the full path to the object.
// obj is either *Group or *Dataset.
// err is any error encountered opening the object.
// Return nil to continue walking, ErrStopWalk to stop quietly, or any other
// error to stop and return it.
type WalkFunc func(path string, obj any, err error) error

// ErrStopWalk can be returned from a WalkFunc to stop walking without an error.
var ErrStopWalk = errors.New("walk stopped")

// Walk traverses all groups and datasets below g, g included, in member
// order. Groups reachable twice through hard links are visited once.
func Walk(g *Group, fn WalkFunc) error {
	err := walkGroup(g, fn, make(map[uint64]bool))
	if errors.Is(err, ErrStopWalk) {
		return nil
	}
	return err
}

func walkGroup(g *Group, fn WalkFunc, seen map[uint64]bool) error {
	if seen[g.Address()] {
		return nil
	}
	seen[g.Address()] = true

	if err := fn(g.Path(), g, nil); err != nil {
		return err
	}

	members, err := g.members()
	if err != nil {
		return fn(g.Path(), nil, err)
	}
	for _, m := range members {
		childPath := path.Join(g.Path(), m.name)
		obj, err := g.resolve(m, make(map[string]bool))
		if err != nil {
			if err := fn(childPath, nil, err); err != nil {
				return err
			}
			continue
		}
		switch o := obj.(type) {
		case *Group:
			if err := walkGroup(o, fn, seen); err != nil {
				return err
			}
		case *Dataset:
			if err := fn(childPath, o, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// AttrInfo describes one attribute met by WalkAttrs.
type AttrInfo struct {
	// Path is the full attribute path (e.g., "/group/dataset@attr")
	Path string

	// ObjectPath is the path to the object containing this attribute
	ObjectPath string

	Attr *Attribute

	// Value is the decoded value, nil when Err is set.
	Value any
	Err   error
}

// WalkAttrs calls fn for every attribute of every group and dataset in
// the file.
func (f *File) WalkAttrs(fn func(AttrInfo) error) error {
	if f.closed {
		return ErrClosed
	}
	return Walk(f.root, func(p string, obj any, err error) error {
		if err != nil {
			return nil
		}
		var attrs []*Attribute
		switch o := obj.(type) {
		case *Group:
			attrs, err = o.Attributes()
		case *Dataset:
			attrs, err = o.Attributes()
		}
		if err != nil {
			return fn(AttrInfo{ObjectPath: p, Err: err})
		}
		for _, a := range attrs {
			info := AttrInfo{Path: JoinAttrPath(p, a.Name()), ObjectPath: p, Attr: a}
			info.Value, info.Err = a.Value()
			if err := fn(info); err != nil {
				return err
			}
		}
		return nil
	})
}
