//go:build linux

package rawsyscalls

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// RealMapper issues direct syscalls via golang.org/x/sys/unix, with no
// dynamic symbol lookup and no reentry into any interposed allocator —
// Bypasses the standard library's wrapped unix.Mmap so callers get the
// literal address the kernel chose, with full control over MAP_FIXED and
// MAP_HUGETLB.
type RealMapper struct{}

var _ Mapper = RealMapper{}

func (RealMapper) Mmap(addr uintptr, length uintptr, prot, flags int, fd int, offset int64) (uintptr, error) {
	ret, _, errno := unix.Syscall6(
		unix.SYS_MMAP,
		addr,
		length,
		uintptr(prot),
		uintptr(flags),
		uintptr(fd),
		uintptr(offset),
	)
	if errno != 0 {
		return 0, &ErrMmapFailed{Addr: addr, Length: length, Cause: errno}
	}
	return ret, nil
}

func (RealMapper) Munmap(addr uintptr, length uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_MUNMAP, addr, length, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func (RealMapper) Mprotect(addr uintptr, length uintptr, prot int) error {
	_, _, errno := unix.Syscall(unix.SYS_MPROTECT, addr, length, uintptr(prot))
	if errno != 0 {
		return errno
	}
	return nil
}

// FatalWrite writes msg directly to fd 2 with the write(2) syscall,
// bypassing buffered I/O, os.Stderr's finalizers, and any allocation —
// required so fatal-error reporting never reenters the
// allocator it is reporting on.
func FatalWrite(msg string) {
	b := []byte(msg)
	for len(b) > 0 {
		n, _, errno := unix.Syscall(unix.SYS_WRITE, 2, uintptr(unsafe.Pointer(&b[0])), uintptr(len(b)))
		if errno != 0 || n <= 0 {
			return
		}
		b = b[n:]
	}
}

// FatalExit terminates the process immediately via the exit_group(2)
// syscall, equivalent to _exit(1): no deferred cleanup, no finalizers.
func FatalExit(code int) {
	unix.Syscall(unix.SYS_EXIT_GROUP, uintptr(code), 0, 0)
}
