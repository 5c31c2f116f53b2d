// Package ffa implements the First-Fit Address Allocator (C7): an
// O(1)-per-step free-list allocator over a contiguous address range, with
// coalescing on free.
package ffa

import "fmt"

const nilIndex = -1

// node is one doubly linked free-list entry living in a fixed-capacity
// arena. Nodes never own each other; the free list is a linked structure
// over arena indices, and coalescing is constant-time index rewiring
// guaranteeing O(1) coalescing.
type node struct {
	start, end uintptr
	prev, next int
	inUse      bool
}

// FFA is a first-fit address allocator over one contiguous range
// [start, end). An allocation is always carved from a single free node,
// never spread across several, and non-adjacent free nodes are never
// merged.
type FFA struct {
	arena []node
	// freeArena is a stack of indices into arena not currently part of the
	// free list — the arena's pool of reusable node slots.
	freeArena []int
	// head is the sentinel anchoring the doubly linked free list, sorted
	// by ascending start. head.next is the first real free node.
	head int

	start, end  uintptr
	topAddress  uintptr // highest byte ever allocated, exclusive
}

// Initialize creates an arena of capacity+1 nodes (capacity usable nodes
// plus the sentinel) and inserts a single free node spanning [start, end).
func (f *FFA) Initialize(capacity int, start, end uintptr) error {
	if end <= start {
		return fmt.Errorf("ffa: end must be greater than start")
	}
	// +1 for the sentinel head node, which never carries an allocation but
	// occupies an arena slot like every other node.
	f.arena = make([]node, capacity+1)
	f.freeArena = make([]int, 0, capacity+1)
	for i := range f.arena {
		f.arena[i] = node{prev: nilIndex, next: nilIndex}
	}
	f.head = 0
	f.arena[f.head].inUse = true
	for i := len(f.arena) - 1; i >= 1; i-- {
		f.freeArena = append(f.freeArena, i)
	}

	f.start, f.end = start, end
	f.topAddress = start

	firstIdx, ok := f.takeNode()
	if !ok {
		return fmt.Errorf("ffa: capacity too small to hold the initial free node")
	}
	f.arena[firstIdx] = node{start: start, end: end, inUse: true}
	f.linkAfter(f.head, firstIdx)
	return nil
}

func (f *FFA) takeNode() (int, bool) {
	n := len(f.freeArena)
	if n == 0 {
		return 0, false
	}
	idx := f.freeArena[n-1]
	f.freeArena = f.freeArena[:n-1]
	return idx, true
}

func (f *FFA) returnNode(idx int) {
	f.arena[idx] = node{prev: nilIndex, next: nilIndex}
	f.freeArena = append(f.freeArena, idx)
}

func (f *FFA) linkAfter(afterIdx, idx int) {
	nextIdx := f.arena[afterIdx].next
	f.arena[idx].prev = afterIdx
	f.arena[idx].next = nextIdx
	f.arena[afterIdx].next = idx
	if nextIdx != nilIndex {
		f.arena[nextIdx].prev = idx
	}
}

func (f *FFA) unlink(idx int) {
	prevIdx, nextIdx := f.arena[idx].prev, f.arena[idx].next
	f.arena[prevIdx].next = nextIdx
	if nextIdx != nilIndex {
		f.arena[nextIdx].prev = prevIdx
	}
	f.returnNode(idx)
}

// Allocate returns the first free node whose length is >= size, carving
// size bytes off its low end. Returns 0, false if no node is large enough,
// or if size is zero.
func (f *FFA) Allocate(size uintptr) (uintptr, bool) {
	if size == 0 {
		return 0, false
	}
	for idx := f.arena[f.head].next; idx != nilIndex; idx = f.arena[idx].next {
		n := &f.arena[idx]
		if n.end-n.start < size {
			continue
		}
		addr := n.start
		n.start += size
		if n.start == n.end {
			f.unlink(idx)
		}
		if top := addr + size; top > f.topAddress {
			f.topAddress = top
		}
		return addr, true
	}
	return 0, false
}

// Free returns [ptr, ptr+size) to the free list, coalescing with
// immediately adjacent free nodes. Returns an error if ptr overlaps an
// existing free node, or if no arena slot is available and coalescing
// cannot absorb the block either; coalescing is tried first because it
// needs no arena slot.
func (f *FFA) Free(ptr, size uintptr) error {
	if size == 0 {
		return fmt.Errorf("ffa: zero-size free")
	}
	end := ptr + size

	// Find the free node immediately before the insertion point (the
	// free list is sorted by ascending start) and detect overlap with an
	// existing free node along the way.
	prevIdx := f.head
	for idx := f.arena[f.head].next; idx != nilIndex; idx = f.arena[idx].next {
		n := f.arena[idx]
		if ptr < n.end && n.start < end {
			return fmt.Errorf("ffa: free of [%#x,%#x) overlaps live free node [%#x,%#x)", ptr, end, n.start, n.end)
		}
		if n.start >= end {
			break
		}
		prevIdx = idx
	}
	nextIdx := f.arena[prevIdx].next

	mergedWithPrev := prevIdx != f.head && f.arena[prevIdx].end == ptr
	mergedWithNext := nextIdx != nilIndex && end == f.arena[nextIdx].start

	switch {
	case mergedWithPrev && mergedWithNext:
		// Absorb into prev, then absorb next into prev, freeing next's slot.
		f.arena[prevIdx].end = f.arena[nextIdx].end
		f.unlink(nextIdx)
	case mergedWithPrev:
		f.arena[prevIdx].end = end
	case mergedWithNext:
		f.arena[nextIdx].start = ptr
	default:
		idx, ok := f.takeNode()
		if !ok {
			return fmt.Errorf("ffa: no free arena slot to insert [%#x,%#x)", ptr, end)
		}
		f.arena[idx] = node{start: ptr, end: end, inUse: true}
		f.linkAfter(prevIdx, idx)
	}
	return nil
}

// Contains reports whether ptr lies within the FFA's managed span
// [start, end), regardless of whether it is currently free or allocated.
func (f *FFA) Contains(ptr uintptr) bool {
	return ptr >= f.start && ptr < f.end
}

// FreeSpace returns the sum of all free node lengths.
func (f *FFA) FreeSpace() uintptr {
	var total uintptr
	for idx := f.arena[f.head].next; idx != nilIndex; idx = f.arena[idx].next {
		n := f.arena[idx]
		total += n.end - n.start
	}
	return total
}

// TopAddress returns the highest address ever handed out by Allocate, used
// by the pool allocator to size its HPBR.
func (f *FFA) TopAddress() uintptr { return f.topAddress }

// Span returns the FFA's managed range.
func (f *FFA) Span() (start, end uintptr) { return f.start, f.end }

// FreeNodeCount returns the number of free nodes currently linked, for
// tests asserting the contiguity invariant (no two adjacent free nodes).
func (f *FFA) FreeNodeCount() int {
	count := 0
	for idx := f.arena[f.head].next; idx != nilIndex; idx = f.arena[idx].next {
		count++
	}
	return count
}

// FreeNodes returns the live free ranges in ascending order, for tests.
func (f *FFA) FreeNodes() [][2]uintptr {
	var out [][2]uintptr
	for idx := f.arena[f.head].next; idx != nilIndex; idx = f.arena[idx].next {
		n := f.arena[idx]
		out = append(out, [2]uintptr{n.start, n.end})
	}
	return out
}
