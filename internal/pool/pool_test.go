package pool

import (
	"testing"

	"github.com/mosalloc-go/mosalloc/internal/csvlayout"
	"github.com/mosalloc-go/mosalloc/internal/layout"
	"github.com/mosalloc-go/mosalloc/internal/rawsyscalls"
	"github.com/stretchr/testify/require"
)

const miB = 1 << 20

func emptyLayout(size uint64) csvlayout.Result {
	var list layout.IntervalList
	_ = list.Initialize(nil, 0)
	return csvlayout.Result{Size: size, Intervals: &list}
}

func newAllocator(t *testing.T) (*Allocator, *rawsyscalls.FakeMapper) {
	t.Helper()
	mapper := rawsyscalls.NewFakeMapper(0x600000000000)
	a := &Allocator{}
	err := a.Init(mapper,
		PoolParams{Layout: emptyLayout(16 * miB), FFAListSize: 32},
		PoolParams{Layout: emptyLayout(16 * miB), FFAListSize: 32},
		PoolParams{Layout: emptyLayout(16 * miB), FFAListSize: 32},
		0,
	)
	require.NoError(t, err)
	return a, mapper
}

func TestAllocatorAnonAllocateGrowsRegion(t *testing.T) {
	a, _ := newAllocator(t)

	ptr, err := a.AllocateAnon(4 * miB)
	require.NoError(t, err)
	require.True(t, a.ContainsHugeRegion(ptr))

	anon, _, _ := a.MaxSizes()
	require.GreaterOrEqual(t, anon, uint64(4*miB))
}

func TestAllocatorDeallocateAnonShrinksPastThreshold(t *testing.T) {
	a, _ := newAllocator(t)

	ptr, err := a.AllocateAnon(8 * miB)
	require.NoError(t, err)

	require.NoError(t, a.DeallocateMmap(ptr, 8*miB))
}

func TestAllocatorFileMmapFixedAddress(t *testing.T) {
	a, _ := newAllocator(t)

	ptr, err := a.AllocateFile(0, miB, rawsyscalls.ProtRead|rawsyscalls.ProtWrite, rawsyscalls.MapShared, -1, 0)
	require.NoError(t, err)
	require.True(t, a.ContainsHugeRegion(ptr))

	require.NoError(t, a.DeallocateMmap(ptr, miB))
}

func TestAllocatorDeallocateUnknownAddressErrors(t *testing.T) {
	a, _ := newAllocator(t)
	err := a.DeallocateMmap(0xdeadbeef, miB)
	require.Error(t, err)
}

func TestAllocatorChangeProgramBreak(t *testing.T) {
	a, _ := newAllocator(t)
	base := a.BrkRegionBase()

	require.NoError(t, a.ChangeProgramBreak(base+4*miB))
	_, _, brk := a.MaxSizes()
	require.Equal(t, uint64(4*miB), brk)

	err := a.ChangeProgramBreak(base - 1)
	require.Error(t, err)
}

func TestAllocatorCurrentSizesTracksMaterializedSize(t *testing.T) {
	a, _ := newAllocator(t)

	_, err := a.AllocateAnon(4 * miB)
	require.NoError(t, err)

	anonCur, _, _ := a.CurrentSizes()
	require.GreaterOrEqual(t, anonCur, uint64(4*miB))
}

func TestAllocatorAnonAndFilePoolsIndependent(t *testing.T) {
	a, _ := newAllocator(t)

	anonPtr, err := a.AllocateAnon(miB)
	require.NoError(t, err)
	filePtr, err := a.AllocateFile(0, miB, rawsyscalls.ProtRead|rawsyscalls.ProtWrite, rawsyscalls.MapShared, -1, 0)
	require.NoError(t, err)

	require.NotEqual(t, anonPtr, filePtr)
	require.NoError(t, a.DeallocateMmap(anonPtr, miB))
	require.NoError(t, a.DeallocateMmap(filePtr, miB))
}
