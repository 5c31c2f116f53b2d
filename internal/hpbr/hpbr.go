// Package hpbr implements the Huge-Page-Backed Region (C6): a contiguous
// virtual-address region whose sub-intervals are materialized or
// dematerialized with a prescribed hardware page size as the region grows
// and shrinks.
package hpbr

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/mosalloc-go/mosalloc/internal/layout"
	"github.com/mosalloc-go/mosalloc/internal/rawsyscalls"
)

// ErrOutOfRange is returned by Resize when new_size exceeds MaxSize —
// the ceiling Initialize achieved after page-size rounding.
var ErrOutOfRange = fmt.Errorf("hpbr: requested size exceeds region max size")

// Resized reports what Resize actually achieved, exposing the
// huge-page-rounded top explicitly rather than silently discarding it —
// Shrinking to a size that falls inside a huge page rounds up to that
// page's end, keeping the whole page, so the achieved size is reported
// explicitly rather than left for the caller to infer.
type Resized struct {
	Requested uint64
	Achieved  uint64
}

// HPBR is a contiguous region [BaseAddr, BaseAddr+CurrentSize) whose
// interior is partitioned into MemoryIntervals, each materialized with its
// declared page size as CurrentSize grows toward MaxSize.
type HPBR struct {
	mapper rawsyscalls.Mapper

	baseAddr    uintptr
	maxSize     uint64
	currentSize uint64

	// intervalsFull partitions [0, maxSize) exactly: the caller's huge-page
	// intervals plus explicit 4KiB filler intervals in every gap.
	intervalsFull []layout.MemoryInterval

	initialized bool
}

// largestPageSize picks the dominant page size for the scratch reservation:
// 1GiB if any 1GiB interval is present, else 2MiB, else 4KiB.
func largestPageSize(intervals []layout.MemoryInterval) layout.PageSize {
	has2MiB := false
	for _, iv := range intervals {
		if iv.PageSize == layout.Huge1GiB {
			return layout.Huge1GiB
		}
		if iv.PageSize == layout.Huge2MiB {
			has2MiB = true
		}
	}
	if has2MiB {
		return layout.Huge2MiB
	}
	return layout.Base4KiB
}

// Initialize reserves, measures, and then re-reserves a region of
// regionSize bytes honoring intervals: a throwaway reservation measures
// where the kernel would place a region large enough to hold it, then the
// final base address is rounded to the dominant huge-page size before the
// real materialization begins.
// If regionBase is non-zero, the region is placed there with fixed-mapping
// semantics (the brk pool's use case); otherwise the kernel chooses.
func (h *HPBR) Initialize(mapper rawsyscalls.Mapper, regionSize uint64, intervals []layout.MemoryInterval, regionBase uintptr) error {
	if !layout.IsAligned(regionSize, uint64(layout.Base4KiB)) {
		return fmt.Errorf("hpbr: region size %d is not 4KiB-aligned", regionSize)
	}
	h.mapper = mapper
	h.maxSize = regionSize
	h.currentSize = 0

	p := largestPageSize(intervals)

	scratchSize := regionSize
	if p != layout.Base4KiB {
		scratchSize = layout.RoundUp(regionSize+uint64(p), uint64(p))
	}

	scratchAddr, err := h.allocate(regionBase, scratchSize, layout.Base4KiB)
	if err != nil {
		return fmt.Errorf("hpbr: scratch reservation failed: %w", err)
	}

	firstHuge, hasFirstHuge := firstOfPageSize(intervals, p)
	baseAddr := scratchAddr
	if hasFirstHuge && p != layout.Base4KiB {
		target := layout.RoundUp(uint64(scratchAddr)+firstHuge.Start, uint64(p))
		baseAddr = uintptr(target - firstHuge.Start)
	}
	h.baseAddr = baseAddr

	h.intervalsFull = completeIntervals(intervals, regionSize)

	// Release the scratch reservation; the real materialization happens
	// through Resize below, at the now-fixed base address.
	if err := h.deallocate(scratchAddr, scratchSize); err != nil {
		return fmt.Errorf("hpbr: releasing scratch reservation: %w", err)
	}

	h.currentSize = 0
	h.initialized = true
	if _, err := h.Resize(regionSize); err != nil {
		return err
	}
	h.maxSize = h.currentSize
	return nil
}

func firstOfPageSize(intervals []layout.MemoryInterval, p layout.PageSize) (layout.MemoryInterval, bool) {
	if p == layout.Base4KiB {
		return layout.MemoryInterval{}, false
	}
	var best layout.MemoryInterval
	found := false
	for _, iv := range intervals {
		if iv.PageSize != p {
			continue
		}
		if !found || iv.Start < best.Start {
			best, found = iv, true
		}
	}
	return best, found
}

// completeIntervals copies and sorts intervals, then inserts explicit
// 4KiB filler intervals into every gap — head, interior, and tail —
// relative to [0, regionSize), so every byte of the region belongs to
// exactly one interval.
func completeIntervals(intervals []layout.MemoryInterval, regionSize uint64) []layout.MemoryInterval {
	sorted := make([]layout.MemoryInterval, len(intervals))
	copy(sorted, intervals)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1].Start > sorted[j].Start; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}

	full := make([]layout.MemoryInterval, 0, 2*len(sorted)+1)
	var prevEnd uint64
	for _, iv := range sorted {
		if prevEnd < iv.Start {
			full = append(full, layout.MemoryInterval{Start: prevEnd, End: iv.Start, PageSize: layout.Base4KiB})
		}
		full = append(full, iv)
		prevEnd = iv.End
	}
	if prevEnd < regionSize {
		full = append(full, layout.MemoryInterval{Start: prevEnd, End: regionSize, PageSize: layout.Base4KiB})
	}
	return full
}

func (h *HPBR) allocate(addr uintptr, length uint64, pageSize layout.PageSize) (uintptr, error) {
	if length == 0 {
		return addr, nil
	}
	flags := rawsyscalls.MapPrivate | rawsyscalls.MapAnonymous
	if addr != 0 {
		flags |= rawsyscalls.MapFixed
	}
	switch pageSize {
	case layout.Huge1GiB, layout.Huge2MiB:
		flags |= rawsyscalls.MapHugeTLB | rawsyscalls.HugeFlag(uint64(pageSize))
	}
	got, err := h.mapper.Mmap(addr, uintptr(length), rawsyscalls.ProtRead|rawsyscalls.ProtWrite, flags, -1, 0)
	if err != nil {
		dieOnEINTR(err, "hpbr: mmap interrupted by a signal mid-resize")
		return 0, &rawsyscalls.ErrMmapFailed{Addr: addr, Length: uintptr(length), Cause: err}
	}
	return got, nil
}

func (h *HPBR) deallocate(addr uintptr, length uint64) error {
	if length == 0 {
		return nil
	}
	if err := h.mapper.Munmap(addr, uintptr(length)); err != nil {
		dieOnEINTR(err, "hpbr: munmap interrupted by a signal mid-resize")
		return err
	}
	return nil
}

// dieOnEINTR terminates the process immediately when a resize-path
// syscall is interrupted: a partially-materialized region is unsafe to
// hand back to a caller as an ordinary error, so this never returns.
func dieOnEINTR(err error, msg string) {
	if errors.Is(err, syscall.EINTR) {
		rawsyscalls.FatalWrite(msg + "\n")
		rawsyscalls.FatalExit(1)
	}
}

// Resize grows or shrinks the materialized range to exactly cover
// [0, newSize) — or as close as huge-page rounding allows, reported in the
// returned Resized.Achieved. Monotone per call; a second Resize(k) after
// Resize(k) is a no-op.
func (h *HPBR) Resize(newSize uint64) (Resized, error) {
	if !h.initialized {
		return Resized{}, fmt.Errorf("hpbr: not initialized")
	}
	if newSize > h.maxSize {
		return Resized{}, ErrOutOfRange
	}

	switch {
	case newSize > h.currentSize:
		achieved, err := h.extend(newSize)
		if err != nil {
			return Resized{}, err
		}
		h.currentSize = achieved
	case newSize < h.currentSize:
		achieved, err := h.shrink(newSize)
		if err != nil {
			return Resized{}, err
		}
		h.currentSize = achieved
	}
	return Resized{Requested: newSize, Achieved: h.currentSize}, nil
}

// extend walks intervalsFull, materializing whatever portion of each
// interval now falls below newSize that wasn't already mapped.
func (h *HPBR) extend(newSize uint64) (uint64, error) {
	updated := h.currentSize
	for _, iv := range h.intervalsFull {
		if !(h.currentSize >= iv.Start || newSize >= iv.Start) || h.currentSize >= iv.End {
			continue
		}
		start := iv.Start
		if h.currentSize >= iv.Start {
			start = h.currentSize
		}
		var end uint64
		if newSize <= iv.End {
			sub := layout.RoundUp(newSize-iv.Start, uint64(iv.PageSize))
			end = iv.Start + sub
		} else {
			end = iv.End
		}
		if _, err := h.allocate(h.baseAddr+uintptr(start), end-start, iv.PageSize); err != nil {
			return 0, err
		}
		updated = end
	}
	return updated, nil
}

// shrink walks intervalsFull symmetrically to extend: a huge page that the
// new size only partly covers is kept whole, because the unmap boundary is
// rounded up to the interval's page size.
func (h *HPBR) shrink(newSize uint64) (uint64, error) {
	updated := h.currentSize
	for _, iv := range h.intervalsFull {
		if !(h.currentSize <= iv.End || newSize <= iv.End) || h.currentSize <= iv.Start {
			continue
		}
		end := iv.End
		if h.currentSize <= iv.End {
			end = h.currentSize
		}
		var start uint64
		if newSize >= iv.Start {
			sub := layout.RoundUp(newSize-iv.Start, uint64(iv.PageSize))
			start = iv.Start + sub
		} else {
			start = iv.Start
		}
		if end > start {
			if err := h.deallocate(h.baseAddr+uintptr(start), end-start); err != nil {
				return 0, err
			}
		}
		if start < updated {
			updated = start
		}
	}
	return updated, nil
}

// BaseAddr returns the region's materialized base address.
func (h *HPBR) BaseAddr() uintptr { return h.baseAddr }

// CurrentSize returns the size of the currently materialized prefix.
func (h *HPBR) CurrentSize() uint64 { return h.currentSize }

// MaxSize returns the achieved ceiling recorded at Initialize.
func (h *HPBR) MaxSize() uint64 { return h.maxSize }

// Intervals returns the completed interval partition of [0, MaxSize()).
func (h *HPBR) Intervals() []layout.MemoryInterval {
	out := make([]layout.MemoryInterval, len(h.intervalsFull))
	copy(out, h.intervalsFull)
	return out
}
