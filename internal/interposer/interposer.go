// Package interposer exposes the allocator's mmap/munmap/brk/sbrk surface
// as plain Go methods, fronting a pool.Allocator with the bootstrap state
// machine and lock-free initialization check every hook entry needs.
package interposer

import (
	"fmt"
	"sync/atomic"

	"github.com/mosalloc-go/mosalloc/internal/pool"
	"github.com/mosalloc-go/mosalloc/internal/rawsyscalls"
)

// State is the interposer's bootstrap lifecycle.
type State int32

const (
	Uninitialized State = iota
	Initializing
	Running
	TornDown
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "UNINITIALIZED"
	case Initializing:
		return "INITIALIZING"
	case Running:
		return "RUNNING"
	case TornDown:
		return "TORN_DOWN"
	default:
		return "UNKNOWN"
	}
}

// Interposer fronts a pool.Allocator with a bootstrap state machine:
// initialized is read lock-free on every hook entry; Init sets it true
// once the pools are built and Close sets it back to false.
type Interposer struct {
	initialized atomic.Bool
	state       atomic.Int32

	allocator pool.Allocator
	brkTop    atomic.Uintptr

	downstream   Downstream
	morecoreSeen atomic.Bool
}

// Downstream models an optional wrapped malloc family whose morecore hook
// the interposer intercepts. Wiring one is optional; with none set, Init
// skips the drain step entirely since there is no foreign free list to
// flush before the managed pools take over.
type Downstream interface {
	Malloc(size uint64) (uintptr, error)
	Free(addr uintptr)
}

// SetDownstream wires the downstream malloc family Init should drain.
// Must be called before Init; the default (nil) downstream makes Init's
// drain step a no-op.
func (ip *Interposer) SetDownstream(d Downstream) {
	ip.downstream = d
}

const (
	drainStartSize = 16
	drainMaxRounds = 40
)

// Drain issues a sequence of raw downstream mallocs of doubling size,
// starting at drainStartSize, watching the sentinel Morecore sets. Once the
// sentinel fires, every drained allocation but the last is freed back to
// the downstream allocator — proof that those were leftover free-list
// slots, now safe to reclaim since future requests route through the
// managed pools. The last allocation is retained: it was already served
// through morecore rather than a leftover slot, so freeing it would just
// hand the downstream allocator's free list something to reuse. If the
// sentinel never fires within drainMaxRounds, nothing is freed.
func (ip *Interposer) Drain(downstream Downstream) error {
	if downstream == nil {
		return nil
	}
	ip.morecoreSeen.Store(false)

	var drained []uintptr
	size := uint64(drainStartSize)
	triggered := false
	for i := 0; i < drainMaxRounds; i++ {
		addr, err := downstream.Malloc(size)
		if err != nil {
			return fmt.Errorf("interposer: drain malloc failed: %w", err)
		}
		drained = append(drained, addr)
		if ip.morecoreSeen.Load() {
			triggered = true
			break
		}
		size *= 2
	}

	if triggered {
		for _, addr := range drained[:len(drained)-1] {
			downstream.Free(addr)
		}
	}
	return nil
}

// Init transitions UNINITIALIZED -> INITIALIZING -> RUNNING, building the
// three pools, then runs the drain step against any downstream malloc
// family wired via SetDownstream. Calling Init twice is an error; calling
// a hook method (Mmap, Munmap, Mprotect, Brk, Sbrk, Morecore) before Init
// succeeds returns ErrNotInitialized.
func (ip *Interposer) Init(mapper rawsyscalls.Mapper, anon, file, brk pool.PoolParams, brkBase uintptr) error {
	if !ip.state.CompareAndSwap(int32(Uninitialized), int32(Initializing)) {
		return fmt.Errorf("interposer: Init called from state %s", State(ip.state.Load()))
	}
	if err := ip.allocator.Init(mapper, anon, file, brk, brkBase); err != nil {
		ip.state.Store(int32(Uninitialized))
		return err
	}
	ip.brkTop.Store(ip.allocator.BrkRegionBase())
	ip.state.Store(int32(Running))
	ip.initialized.Store(true)

	if err := ip.Drain(ip.downstream); err != nil {
		return err
	}
	return nil
}

// ErrNotInitialized is returned by every hook method called before Init
// completes or after Close.
var ErrNotInitialized = fmt.Errorf("interposer: not initialized")

func (ip *Interposer) ready() error {
	if !ip.initialized.Load() {
		return ErrNotInitialized
	}
	return nil
}

// Close transitions RUNNING -> TORN_DOWN. Subsequent hook calls fail.
func (ip *Interposer) Close() {
	ip.initialized.Store(false)
	ip.state.Store(int32(TornDown))
}

// State reports the current bootstrap state, for diagnostics.
func (ip *Interposer) State() State { return State(ip.state.Load()) }

// Mmap serves an mmap(2) request. fd >= 0 routes to the file-backed pool
// (addr is a hint, honored via MAP_FIXED semantics if non-zero); any
// fd < 0 routes to the anonymous pool, whatever the flags say.
func (ip *Interposer) Mmap(addr uintptr, length uint64, prot, flags, fd int, offset int64) (uintptr, error) {
	if err := ip.ready(); err != nil {
		return 0, err
	}
	if fd >= 0 {
		return ip.allocator.AllocateFile(addr, length, prot, flags, fd, offset)
	}
	if length == 0 {
		return 0, fmt.Errorf("interposer: zero-length anonymous mmap")
	}
	return ip.allocator.AllocateAnon(length)
}

// Munmap serves a munmap(2) request, dispatching to whichever pool owns
// addr.
func (ip *Interposer) Munmap(addr uintptr, length uint64) error {
	if err := ip.ready(); err != nil {
		return err
	}
	return ip.allocator.DeallocateMmap(addr, length)
}

// Mprotect serves an mprotect(2) request without taking any pool lock.
// Pages inside a managed pool keep their read/write protection, so a
// request for such an address succeeds without a syscall; any other
// address is passed through to the raw mapper.
func (ip *Interposer) Mprotect(mapper rawsyscalls.Mapper, addr uintptr, length uint64, prot int) error {
	if err := ip.ready(); err != nil {
		return err
	}
	if ip.allocator.ContainsHugeRegion(addr) {
		return nil
	}
	return mapper.Mprotect(addr, uintptr(length), prot)
}

// Brk serves a brk(2) request: set the program break to addr exactly.
func (ip *Interposer) Brk(addr uintptr) error {
	if err := ip.ready(); err != nil {
		return err
	}
	if err := ip.allocator.ChangeProgramBreak(addr); err != nil {
		return err
	}
	ip.brkTop.Store(addr)
	return nil
}

// Sbrk serves an sbrk(2) request: adjust the program break by increment
// bytes (which may be negative) and return the break's prior value, as the
// real sbrk(2) does.
func (ip *Interposer) Sbrk(increment int64) (uintptr, error) {
	if err := ip.ready(); err != nil {
		return 0, err
	}
	prior := uintptr(ip.brkTop.Load())
	next := uintptr(int64(prior) + increment)
	if err := ip.allocator.ChangeProgramBreak(next); err != nil {
		return 0, err
	}
	ip.brkTop.Store(next)
	return prior, nil
}

// Morecore is glibc's malloc hook entry point for extending the heap; in
// this reimplementation it is sbrk by another name, kept as a distinct
// method because callers (and rpcshim request kinds) name it separately.
// Every call sets the sentinel Drain watches for.
func (ip *Interposer) Morecore(increment int64) (uintptr, error) {
	ip.morecoreSeen.Store(true)
	return ip.Sbrk(increment)
}

// ContainsHugeRegion reports whether addr falls in any pool's reserved
// range — a lock-free read used by callers deciding whether to route a
// request through the interposer at all.
func (ip *Interposer) ContainsHugeRegion(addr uintptr) bool {
	if !ip.initialized.Load() {
		return false
	}
	return ip.allocator.ContainsHugeRegion(addr)
}

// MaxSizes exposes the allocator's per-pool high-water marks for the
// exit-time analysis report.
func (ip *Interposer) MaxSizes() (anon, file, brk uint64) {
	return ip.allocator.MaxSizes()
}

// CurrentSizes exposes each pool's materialized size right now, for a live
// occupancy dashboard.
func (ip *Interposer) CurrentSizes() (anon, file, brk uint64) {
	return ip.allocator.CurrentSizes()
}

// RegionBases exposes each pool's base and ceiling for the exit-time
// analysis report.
func (ip *Interposer) RegionBases() (anonStart, anonEnd, brkStart, brkEnd, fileStart, fileEnd uintptr) {
	return ip.allocator.RegionBases()
}
