package hpbr

import (
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/mosalloc-go/mosalloc/internal/layout"
	"github.com/mosalloc-go/mosalloc/internal/numamaps"
	"github.com/mosalloc-go/mosalloc/internal/rawsyscalls"
	"github.com/stretchr/testify/require"
)

// hugepagesAvailable probes whether the kernel has any 2MiB huge pages
// reserved, so this test degrades cleanly on a host (or non-Linux runtime)
// with hugetlbfs unconfigured rather than failing on mmap.
func hugepagesAvailable() bool {
	data, err := os.ReadFile("/sys/kernel/mm/hugepages/hugepages-2048kB/nr_hugepages")
	if err != nil {
		return false
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	return err == nil && n > 0
}

// TestHPBRMaterializesRealHugePages checks, against the real Linux mapper
// rather than the fake one every other HPBR test uses, that a 2MiB
// interval is actually backed by 2MiB kernel pages — confirmed by reading
// the mapping back from /proc/self/numa_maps instead of trusting the mmap
// call site alone.
func TestHPBRMaterializesRealHugePages(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping real-mapper huge page test in short mode")
	}
	if !hugepagesAvailable() {
		t.Skip("no 2MiB huge pages reserved on this host")
	}

	var h HPBR
	mapper := rawsyscalls.RealMapper{}
	intervals := []layout.MemoryInterval{
		{Start: 0, End: 2 * miB, PageSize: layout.Huge2MiB},
	}
	require.NoError(t, h.Initialize(mapper, 2*miB, intervals, 0))
	defer mapper.Munmap(h.BaseAddr(), uintptr(h.MaxSize()))

	segments, err := numamaps.ReadSelf()
	require.NoError(t, err)

	seg, found := numamaps.FindContaining(segments, h.BaseAddr())
	require.True(t, found, "no numa_maps segment found for the mapped huge region")
	require.Equal(t, uint64(2*miB), seg.PageSizeBytes())
}
