package btree

import (
	"fmt"

	"github.com/robert-malhotra/chunkscan/internal/binary"
)

// Node types of a version 1 B-tree.
const (
	nodeGroup uint8 = 0
	nodeChunk uint8 = 1
)

// maxV1Depth bounds recursion through corrupt trees whose levels never
// reach zero.
const maxV1Depth = 32

// v1Node is one "TREE" node. Keys has one more element than Children.
type v1Node struct {
	Level    uint8
	Keys     [][]byte
	Children []uint64
}

/*
Version 1 B-tree Node Layout:
0       4     Signature ("TREE")
4       1     Node type (0 group, 1 chunk)
5       1     Node level (0 leaf)
6       2     Entries used
8       O     Left sibling address
var     O     Right sibling address
var           key[0] child[0] key[1] child[1] ... key[n]
*/
func readV1Node(r *binary.Reader, address uint64, typ uint8, keySize int) (*v1Node, error) {
	nr := r.At(int64(address))
	sig, err := nr.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("B-tree node at %d: %w", address, err)
	}
	if string(sig) != "TREE" {
		return nil, fmt.Errorf("B-tree node at %d: bad signature %q", address, sig)
	}
	nodeType, err := nr.ReadUint8()
	if err != nil {
		return nil, err
	}
	if nodeType != typ {
		return nil, fmt.Errorf("B-tree node at %d has type %d, want %d", address, nodeType, typ)
	}
	level, err := nr.ReadUint8()
	if err != nil {
		return nil, err
	}
	used, err := nr.ReadUint16()
	if err != nil {
		return nil, err
	}
	nr.Skip(2 * int64(r.OffsetSize()))

	n := &v1Node{
		Level:    level,
		Keys:     make([][]byte, used+1),
		Children: make([]uint64, used),
	}
	for i := 0; i <= int(used); i++ {
		if n.Keys[i], err = nr.ReadBytes(keySize); err != nil {
			return nil, fmt.Errorf("B-tree node at %d key %d: %w", address, i, err)
		}
		if i == int(used) {
			break
		}
		if n.Children[i], err = nr.ReadOffset(); err != nil {
			return nil, fmt.Errorf("B-tree node at %d child %d: %w", address, i, err)
		}
	}
	return n, nil
}

// walkV1 calls leaf for every child address of every leaf node under address,
// passing the key that precedes it.
func walkV1(r *binary.Reader, address uint64, typ uint8, keySize int, leaf func(key []byte, child uint64) error) error {
	var walk func(addr uint64, depth int, parentLevel int) error
	walk = func(addr uint64, depth int, parentLevel int) error {
		if depth > maxV1Depth {
			return fmt.Errorf("B-tree at %d nested more than %d levels", address, maxV1Depth)
		}
		n, err := readV1Node(r, addr, typ, keySize)
		if err != nil {
			return err
		}
		if parentLevel >= 0 && int(n.Level) != parentLevel-1 {
			return fmt.Errorf("B-tree node at %d has level %d under level %d", addr, n.Level, parentLevel)
		}
		for i, child := range n.Children {
			if n.Level == 0 {
				if err := leaf(n.Keys[i], child); err != nil {
					return err
				}
				continue
			}
			if err := walk(child, depth+1, int(n.Level)); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(address, 0, -1)
}
