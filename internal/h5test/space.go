package h5test

import "fmt"

// space hands out file addresses for the structures of a file being built.
// Placement is append-only: every block goes at the aligned end of file.
type space struct {
	base    uint64
	eof     uint64
	regions []region
}

type region struct {
	addr, size uint64
}

func newSpace(base uint64) *space {
	return &space{base: base, eof: base}
}

// place reserves size bytes at the next multiple of align and returns the
// address. Empty blocks reserve nothing.
func (s *space) place(size, align uint64) uint64 {
	if align > 1 && s.eof%align != 0 {
		s.eof += align - s.eof%align
	}
	addr := s.eof
	if size > 0 {
		s.eof += size
		s.regions = append(s.regions, region{addr, size})
	}
	return addr
}

// check verifies that the reserved blocks lie within [base, eof) and do not
// overlap.
func (s *space) check() error {
	var prev region
	for i, r := range s.regions {
		if r.addr < s.base || r.addr+r.size > s.eof {
			return fmt.Errorf("h5test: block at 0x%x size %d outside [0x%x, 0x%x)", r.addr, r.size, s.base, s.eof)
		}
		if i > 0 && r.addr < prev.addr+prev.size {
			return fmt.Errorf("h5test: block at 0x%x overlaps block at 0x%x size %d", r.addr, prev.addr, prev.size)
		}
		prev = r
	}
	return nil
}
