package rawsyscalls

import (
	"fmt"
	"sort"
)

// FakeMapper is an in-memory stand-in for RealMapper used by tests in this
// and downstream packages (layout, csvlayout, hpbr, pool, interposer,
// rpcshim). It tracks mapped ranges by
// address instead of touching the address space, so tests can run without
// hugetlbfs or CAP_SYS_ADMIN and still exercise the real carve/coalesce
// logic above it.
type FakeMapper struct {
	// NextAddr is hand out for addr==0 mmap requests; advanced by each
	// anonymous allocation so consecutive calls don't collide.
	NextAddr uintptr
	mapped   map[uintptr]uintptr // addr -> length, for non-overlap checks
}

var _ Mapper = (*FakeMapper)(nil)

func NewFakeMapper(base uintptr) *FakeMapper {
	return &FakeMapper{NextAddr: base, mapped: make(map[uintptr]uintptr)}
}

func (f *FakeMapper) Mmap(addr uintptr, length uintptr, prot, flags int, fd int, offset int64) (uintptr, error) {
	if addr == 0 {
		addr = f.NextAddr
		f.NextAddr += length
	} else if flags&MapFixed == 0 {
		return 0, fmt.Errorf("fake mapper: non-fixed hinted mmap not supported")
	}
	if flags&MapFixed != 0 {
		for a, l := range f.mapped {
			if addr < a+l && a < addr+length {
				// MAP_FIXED is allowed to overlap/replace existing mappings,
				// matching real mmap(2) semantics.
				delete(f.mapped, a)
			}
		}
	}
	f.mapped[addr] = length
	return addr, nil
}

func (f *FakeMapper) Munmap(addr uintptr, length uintptr) error {
	if l, ok := f.mapped[addr]; ok && l == length {
		delete(f.mapped, addr)
		return nil
	}
	// Partial unmap of a tracked region: shrink or drop it, mirroring
	// munmap(2) allowing sub-range unmaps.
	for a, l := range f.mapped {
		if addr >= a && addr+length <= a+l {
			delete(f.mapped, a)
			if addr > a {
				f.mapped[a] = addr - a
			}
			if addr+length < a+l {
				f.mapped[addr+length] = (a + l) - (addr + length)
			}
			return nil
		}
	}
	return nil
}

func (f *FakeMapper) Mprotect(addr uintptr, length uintptr, prot int) error {
	return nil
}

// MappedRanges returns the current set of tracked ranges sorted by address,
// for assertions in tests.
func (f *FakeMapper) MappedRanges() []struct{ Addr, Length uintptr } {
	out := make([]struct{ Addr, Length uintptr }, 0, len(f.mapped))
	for a, l := range f.mapped {
		out = append(out, struct{ Addr, Length uintptr }{a, l})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}
