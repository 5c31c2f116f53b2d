// Package pool wires one FFA and one HPBR together per memory pool (C8):
// anonymous mmap, file-backed mmap, and brk/sbrk.
package pool

import (
	"fmt"
	"sync"

	"github.com/mosalloc-go/mosalloc/internal/csvlayout"
	"github.com/mosalloc-go/mosalloc/internal/ffa"
	"github.com/mosalloc-go/mosalloc/internal/hpbr"
	"github.com/mosalloc-go/mosalloc/internal/rawsyscalls"
)

// resizeThreshold is the minimum amount of trailing slack a shrink must
// free before the region is actually resized — resizing on every free
// would mean a munmap syscall per deallocation.
const resizeThreshold = 2 * 1024 * 1024

// Allocator owns the three pools and enforces the mutual exclusion each
// pool's FFA+HPBR pair needs: one mutex per pool, not a single global lock,
// so the anon-mmap, file-mmap, and brk pools never contend with each other.
type Allocator struct {
	mapper rawsyscalls.Mapper

	anonMu   sync.Mutex
	anonFFA  ffa.FFA
	anonHPBR hpbr.HPBR

	fileMu   sync.Mutex
	fileFFA  ffa.FFA
	fileHPBR hpbr.HPBR

	brkMu   sync.Mutex
	brkHPBR hpbr.HPBR

	anonMaxSize uint64
	fileMaxSize uint64
	brkMaxSize  uint64
}

// PoolParams is one pool's resolved configuration: its CSV layout result
// plus its FFA free-list capacity.
type PoolParams struct {
	Layout      csvlayout.Result
	FFAListSize int
}

// Init builds all three pools from their resolved parameters. brkBase, if
// non-zero, fixes the brk region's address (mirroring the process's real
// program break); zero lets the kernel choose.
func (a *Allocator) Init(mapper rawsyscalls.Mapper, anon, file, brk PoolParams, brkBase uintptr) error {
	a.mapper = mapper

	if err := a.anonHPBR.Initialize(mapper, anon.Layout.Size, anon.Layout.Intervals.Slice(), 0); err != nil {
		return fmt.Errorf("pool: anon-mmap hpbr: %w", err)
	}
	anonStart := a.anonHPBR.BaseAddr()
	anonEnd := anonStart + uintptr(anon.Layout.Size)
	if err := a.anonFFA.Initialize(anon.FFAListSize, anonStart, anonEnd); err != nil {
		return fmt.Errorf("pool: anon-mmap ffa: %w", err)
	}

	if err := a.fileHPBR.Initialize(mapper, file.Layout.Size, file.Layout.Intervals.Slice(), 0); err != nil {
		return fmt.Errorf("pool: file-mmap hpbr: %w", err)
	}
	fileStart := a.fileHPBR.BaseAddr()
	// Bounded by the file pool's own base, not the anon pool's — the
	// opposite produces a file-mmap FFA spanning the wrong address range
	// whenever the two pools don't happen to sit at the same base.
	fileEnd := fileStart + uintptr(file.Layout.Size)
	if err := a.fileFFA.Initialize(file.FFAListSize, fileStart, fileEnd); err != nil {
		return fmt.Errorf("pool: file-mmap ffa: %w", err)
	}

	if err := a.brkHPBR.Initialize(mapper, brk.Layout.Size, brk.Layout.Intervals.Slice(), brkBase); err != nil {
		return fmt.Errorf("pool: brk hpbr: %w", err)
	}

	if _, err := a.anonHPBR.Resize(0); err != nil {
		return fmt.Errorf("pool: anon-mmap initial resize: %w", err)
	}
	if _, err := a.fileHPBR.Resize(0); err != nil {
		return fmt.Errorf("pool: file-mmap initial resize: %w", err)
	}
	if _, err := a.brkHPBR.Resize(0); err != nil {
		return fmt.Errorf("pool: brk initial resize: %w", err)
	}
	return nil
}

// AllocateAnon carves length bytes from the anonymous mmap pool, growing
// its HPBR if the FFA's high-water mark now exceeds the materialized size.
func (a *Allocator) AllocateAnon(length uint64) (uintptr, error) {
	a.anonMu.Lock()
	defer a.anonMu.Unlock()

	ptr, ok := a.anonFFA.Allocate(uintptr(length))
	if !ok {
		return 0, fmt.Errorf("pool: anonymous mmap pool is out of memory")
	}

	hpbrTop := a.anonHPBR.BaseAddr() + uintptr(a.anonHPBR.CurrentSize())
	allocTop := ptr + uintptr(length)
	if allocTop > hpbrTop {
		size := uint64(allocTop - a.anonHPBR.BaseAddr())
		if _, err := a.anonHPBR.Resize(size); err != nil {
			return 0, fmt.Errorf("pool: growing anon-mmap region: %w", err)
		}
	}
	if a.anonHPBR.CurrentSize() > a.anonMaxSize {
		a.anonMaxSize = a.anonHPBR.CurrentSize()
	}
	return ptr, nil
}

// AllocateFile places a file-backed mapping at addr (if non-zero) or a
// fresh address carved from the file pool's FFA, then performs the real
// file-backed mmap at that address.
func (a *Allocator) AllocateFile(addr uintptr, length uint64, prot, flags, fd int, offset int64) (uintptr, error) {
	a.fileMu.Lock()
	defer a.fileMu.Unlock()

	ptr := addr
	if ptr == 0 {
		var ok bool
		ptr, ok = a.fileFFA.Allocate(uintptr(length))
		if !ok {
			return 0, fmt.Errorf("pool: file mmap pool is out of memory")
		}
	}

	ffaMaxSize := uint64(a.fileFFA.TopAddress() - a.fileHPBR.BaseAddr())
	if ffaMaxSize > a.fileMaxSize {
		a.fileMaxSize = ffaMaxSize
	}

	got, err := a.mapper.Mmap(ptr, uintptr(length), prot, flags|rawsyscalls.MapFixed, fd, offset)
	if err != nil {
		return 0, &rawsyscalls.ErrMmapFailed{Addr: ptr, Length: uintptr(length), Cause: err}
	}
	return got, nil
}

// DeallocateMmap dispatches a free to whichever pool's FFA claims addr.
func (a *Allocator) DeallocateMmap(addr uintptr, length uint64) error {
	a.anonMu.Lock()
	inAnon := a.anonFFA.Contains(addr)
	a.anonMu.Unlock()

	a.fileMu.Lock()
	inFile := a.fileFFA.Contains(addr)
	a.fileMu.Unlock()

	switch {
	case inAnon:
		return a.deallocateAnon(addr, length)
	case inFile:
		return a.deallocateFile(addr, length)
	default:
		return fmt.Errorf("pool: address %#x is not owned by either mmap pool", addr)
	}
}

func (a *Allocator) deallocateAnon(addr uintptr, length uint64) error {
	a.anonMu.Lock()
	defer a.anonMu.Unlock()

	if err := a.anonFFA.Free(addr, uintptr(length)); err != nil {
		return err
	}
	topSize := uint64(a.anonFFA.TopAddress() - a.anonHPBR.BaseAddr())
	if topSize < a.anonHPBR.CurrentSize() && a.anonHPBR.CurrentSize()-topSize > resizeThreshold {
		_, err := a.anonHPBR.Resize(topSize)
		return err
	}
	return nil
}

func (a *Allocator) deallocateFile(addr uintptr, length uint64) error {
	a.fileMu.Lock()
	defer a.fileMu.Unlock()

	if err := a.fileFFA.Free(addr, uintptr(length)); err != nil {
		return err
	}
	topSize := uint64(a.fileFFA.TopAddress() - a.fileHPBR.BaseAddr())
	if topSize < a.fileHPBR.CurrentSize() && a.fileHPBR.CurrentSize()-topSize > resizeThreshold {
		if _, err := a.fileHPBR.Resize(topSize); err != nil {
			return err
		}
	}
	return a.mapper.Munmap(addr, uintptr(length))
}

// ChangeProgramBreak resizes the brk region to end at addr, mirroring the
// brk(2) contract: returns an error (equivalent to ENOMEM) if addr falls
// before the region's base or beyond its reserved ceiling.
func (a *Allocator) ChangeProgramBreak(addr uintptr) error {
	a.brkMu.Lock()
	defer a.brkMu.Unlock()

	if addr < a.brkHPBR.BaseAddr() {
		return fmt.Errorf("pool: new break %#x precedes brk region base %#x", addr, a.brkHPBR.BaseAddr())
	}
	newSize := uint64(addr - a.brkHPBR.BaseAddr())
	if _, err := a.brkHPBR.Resize(newSize); err != nil {
		return err
	}
	if a.brkHPBR.CurrentSize() > a.brkMaxSize {
		a.brkMaxSize = a.brkHPBR.CurrentSize()
	}
	return nil
}

// ContainsHugeRegion reports whether addr falls within any of the three
// pools' reserved (not necessarily materialized) address ranges. Those
// ranges are fixed by Init, so no pool lock is taken.
func (a *Allocator) ContainsHugeRegion(addr uintptr) bool {
	inAnon := a.anonFFA.Contains(addr)
	inFile := a.fileFFA.Contains(addr)
	inBrk := addr >= a.brkHPBR.BaseAddr() && addr < a.brkHPBR.BaseAddr()+uintptr(a.brkHPBR.MaxSize())

	return inAnon || inFile || inBrk
}

// BrkRegionBase returns the brk pool's fixed base address.
func (a *Allocator) BrkRegionBase() uintptr { return a.brkHPBR.BaseAddr() }

// MaxSizes reports the high-water mark reached by each pool, for the
// exit-time analysis report.
func (a *Allocator) MaxSizes() (anon, file, brk uint64) {
	return a.anonMaxSize, a.fileMaxSize, a.brkMaxSize
}

// CurrentSizes reports each pool's materialized size right now, for a
// live occupancy dashboard.
func (a *Allocator) CurrentSizes() (anon, file, brk uint64) {
	a.anonMu.Lock()
	anon = a.anonHPBR.CurrentSize()
	a.anonMu.Unlock()

	a.fileMu.Lock()
	file = a.fileHPBR.CurrentSize()
	a.fileMu.Unlock()

	a.brkMu.Lock()
	brk = a.brkHPBR.CurrentSize()
	a.brkMu.Unlock()
	return
}

// RegionBases reports each pool's base address and reserved ceiling, for
// the exit-time analysis report.
func (a *Allocator) RegionBases() (anonStart, anonEnd, brkStart, brkEnd, fileStart, fileEnd uintptr) {
	anonStart = a.anonHPBR.BaseAddr()
	anonEnd = anonStart + uintptr(a.anonHPBR.MaxSize())
	brkStart = a.brkHPBR.BaseAddr()
	brkEnd = brkStart + uintptr(a.brkHPBR.MaxSize())
	fileStart = a.fileHPBR.BaseAddr()
	fileEnd = fileStart + uintptr(a.fileHPBR.MaxSize())
	return
}
