// Package rawsyscalls is the escape hatch to the real kernel mmap/munmap
// family, bypassing any pool interposition. Every other package that needs
// to touch memory does so through the Mapper interface defined here so that
// tests can substitute a fake without mapping real pages.
package rawsyscalls

import "fmt"

// Protection flags, independent of GOOS so callers never import
// golang.org/x/sys/unix directly.
const (
	ProtNone  = 0x0
	ProtRead  = 0x1
	ProtWrite = 0x2
	ProtExec  = 0x4
)

// Mapping flags used throughout layout/hpbr/pool.
const (
	MapShared    = 0x01
	MapPrivate   = 0x02
	MapFixed     = 0x10
	MapAnonymous = 0x20
	MapHugeTLB   = 0x40000
)

// MapHugeShift is where a page-size-in-bytes-log2 value is encoded in the
// mmap flags word, mirroring Linux's MAP_HUGE_SHIFT.
const MapHugeShift = 26

// HugeFlag encodes a page size (in bytes, a power of two) into the
// MAP_HUGE_* bits expected by mmap(2) alongside MAP_HUGETLB.
func HugeFlag(pageSizeBytes uint64) int {
	shift := 0
	for v := pageSizeBytes; v > 1; v >>= 1 {
		shift++
	}
	return shift << MapHugeShift
}

// Mapper is the narrow surface every higher package depends on. The real
// implementation (rawsyscalls_linux.go) issues actual mmap/munmap syscalls;
// tests use a fake that tracks reservations in a map instead of touching
// the address space.
type Mapper interface {
	// Mmap requests length bytes of memory mapped with prot/flags at a
	// fixed or kernel-chosen address. addr is 0 to let the kernel pick.
	Mmap(addr uintptr, length uintptr, prot, flags int, fd int, offset int64) (uintptr, error)
	Munmap(addr uintptr, length uintptr) error
	Mprotect(addr uintptr, length uintptr, prot int) error
}

// ErrMmapFailed wraps a kernel mmap failure with the request that caused it.
// Callers receive it as an ordinary error; nothing retries the mmap or
// exits the process on it.
type ErrMmapFailed struct {
	Addr, Length uintptr
	Cause        error
}

func (e *ErrMmapFailed) Error() string {
	return fmt.Sprintf("mmap(addr=0x%x, len=%d) failed: %v", e.Addr, e.Length, e.Cause)
}

func (e *ErrMmapFailed) Unwrap() error { return e.Cause }
