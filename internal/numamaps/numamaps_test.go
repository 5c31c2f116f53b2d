package numamaps

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sample = `7f0000000000 default file=/lib/x86_64.so anon=1 dirty=1 N0=1
7f0000200000 default heap anon=512 dirty=512 N0=512 kernelpagesize_kB=2048
7f0000400000 interleave:0-1 anon=524288 dirty=524288 N0=262144 N1=262144 kernelpagesize_kB=1048576 huge
`

func TestParseBasic(t *testing.T) {
	segs, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, segs, 3)

	require.Equal(t, uintptr(0x7f0000000000), segs[0].Addr)
	require.Equal(t, uint64(4096), segs[0].PageSizeBytes())

	require.Equal(t, uint64(2*1024*1024), segs[1].PageSizeBytes())

	require.True(t, segs[2].HugePages)
	require.Equal(t, uint64(1<<30), segs[2].PageSizeBytes())
	require.Equal(t, "interleave:0-1", segs[2].Policy)
}

func TestFindContaining(t *testing.T) {
	segs, err := Parse(strings.NewReader(sample))
	require.NoError(t, err)

	seg, ok := FindContaining(segs, 0x7f0000300000)
	require.True(t, ok)
	require.Equal(t, uintptr(0x7f0000200000), seg.Addr)

	_, ok = FindContaining(segs, 0x1000)
	require.False(t, ok)
}

func TestParseRejectsMalformedLine(t *testing.T) {
	_, err := Parse(strings.NewReader("garbage\n"))
	require.Error(t, err)
}
