// Package layout implements the ordered, fixed-capacity MemoryInterval
// list and its alignment validator.
package layout

import (
	"fmt"
	"sort"
	"unsafe"

	"github.com/mosalloc-go/mosalloc/internal/rawsyscalls"
)

// PageSize is one of the three hardware page sizes this system understands.
type PageSize uint64

const (
	Base4KiB PageSize = 4096
	Huge2MiB PageSize = 2 << 20
	Huge1GiB PageSize = 1 << 30
)

func (p PageSize) String() string {
	switch p {
	case Base4KiB:
		return "4KiB"
	case Huge2MiB:
		return "2MiB"
	case Huge1GiB:
		return "1GiB"
	default:
		return fmt.Sprintf("%dB", uint64(p))
	}
}

// RoundUp rounds n up to the nearest multiple of align (align must be a
// power of two).
func RoundUp(n, align uint64) uint64 {
	return (n + align - 1) &^ (align - 1)
}

// IsAligned reports whether n is a multiple of align.
func IsAligned(n, align uint64) bool {
	return n&(align-1) == 0
}

// MemoryInterval is a half-open byte range [Start, End) tagged with the
// page size used to materialize it. Offsets are relative to a region base.
type MemoryInterval struct {
	Start, End uint64
	PageSize   PageSize
}

func (m MemoryInterval) Length() uint64 { return m.End - m.Start }

func (m MemoryInterval) Valid() bool { return m.Start < m.End }

// IntervalList is an ordered, fixed-capacity sequence of MemoryInterval.
// Its backing storage comes from the raw-syscall mmap path
// (rawsyscalls.Mapper) rather than the Go heap, so constructing one during
// config parsing can never reenter an interposed allocator.
type IntervalList struct {
	mapper   rawsyscalls.Mapper
	addr     uintptr
	byteLen  uintptr
	items    []MemoryInterval // unsafe.Slice view over the mmap'd region
	length   int
	capacity int
}

// Initialize reserves capacity*sizeof(MemoryInterval) bytes (rounded up to
// 4 KiB) via the raw mmap path and prepares an empty list. A capacity of 0
// is legal and yields a list that rejects every Add.
func (l *IntervalList) Initialize(mapper rawsyscalls.Mapper, capacity int) error {
	l.mapper = mapper
	l.capacity = capacity
	l.length = 0
	if capacity == 0 {
		l.items = nil
		return nil
	}

	elemSize := unsafe.Sizeof(MemoryInterval{})
	raw := uint64(capacity) * uint64(elemSize)
	length := RoundUp(raw, uint64(Base4KiB))

	addr, err := mapper.Mmap(0, uintptr(length),
		rawsyscalls.ProtRead|rawsyscalls.ProtWrite,
		rawsyscalls.MapPrivate|rawsyscalls.MapAnonymous,
		-1, 0)
	if err != nil {
		return fmt.Errorf("allocating interval list storage: %w", err)
	}
	l.addr = addr
	l.byteLen = uintptr(length)
	l.items = unsafe.Slice((*MemoryInterval)(unsafe.Pointer(addr)), capacity)
	return nil
}

// Close releases the list's backing storage. Safe to call on a
// zero-capacity list.
func (l *IntervalList) Close() error {
	if l.capacity == 0 || l.addr == 0 {
		return nil
	}
	err := l.mapper.Munmap(l.addr, l.byteLen)
	l.addr = 0
	l.items = nil
	return err
}

// Add appends an interval. Exceeding capacity is fatal —
// the caller is expected to have sized the list correctly from the layout
// source (the CSV parser and the profile loader size it to exactly the
// number of declared huge-page intervals; 4 KiB fillers live in HPBR's own
// list).
func (l *IntervalList) Add(start, end uint64, pageSize PageSize) {
	if l.length == l.capacity {
		panic(fmt.Sprintf("layout: interval list is already full (capacity %d)", l.capacity))
	}
	l.items[l.length] = MemoryInterval{Start: start, End: end, PageSize: pageSize}
	l.length++
}

// Len returns the number of intervals currently stored.
func (l *IntervalList) Len() int { return l.length }

// At returns the i'th interval by insertion/sort order.
func (l *IntervalList) At(i int) MemoryInterval { return l.items[i] }

// Slice returns the live intervals as a plain Go slice view (read-only use
// expected; callers must not retain it past a Close).
func (l *IntervalList) Slice() []MemoryInterval { return l.items[:l.length] }

// Sort orders intervals by ascending Start.
func (l *IntervalList) Sort() {
	sort.Slice(l.items[:l.length], func(i, j int) bool {
		return l.items[i].Start < l.items[j].Start
	})
}

// FirstOf returns the lowest-Start interval of the given page size, or
// false if none exists.
func (l *IntervalList) FirstOf(pageSize PageSize) (MemoryInterval, bool) {
	best := MemoryInterval{}
	found := false
	for i := 0; i < l.length; i++ {
		it := l.items[i]
		if it.PageSize != pageSize {
			continue
		}
		if !found || it.Start < best.Start {
			best, found = it, true
		}
	}
	return best, found
}

// MaxEndOffset returns the highest End across all intervals, used to
// sanity-check a parsed layout against its declared pool size.
func (l *IntervalList) MaxEndOffset() uint64 {
	var max uint64
	for i := 0; i < l.length; i++ {
		if l.items[i].End > max {
			max = l.items[i].End
		}
	}
	return max
}

// OfPageSize returns a fresh slice (ordinary Go heap, not raw-mmap backed —
// only the top-level parsed list needs reentrancy-safe storage) of the
// intervals matching pageSize, sorted by Start.
func (l *IntervalList) OfPageSize(pageSize PageSize) []MemoryInterval {
	var out []MemoryInterval
	for i := 0; i < l.length; i++ {
		if l.items[i].PageSize == pageSize {
			out = append(out, l.items[i])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}
