package layout

import (
	"testing"

	"github.com/mosalloc-go/mosalloc/internal/rawsyscalls"
	"github.com/stretchr/testify/require"
)

func newTestList(t *testing.T, capacity int) *IntervalList {
	t.Helper()
	var l IntervalList
	mapper := rawsyscalls.NewFakeMapper(0x700000000000)
	require.NoError(t, l.Initialize(mapper, capacity))
	t.Cleanup(func() { _ = l.Close() })
	return &l
}

func TestIntervalListAddAndSort(t *testing.T) {
	l := newTestList(t, 4)
	l.Add(100, 200, Base4KiB)
	l.Add(0, 50, Base4KiB)
	l.Add(200, 300, Huge2MiB)
	require.Equal(t, 3, l.Len())
	l.Sort()
	require.Equal(t, uint64(0), l.At(0).Start)
	require.Equal(t, uint64(100), l.At(1).Start)
	require.Equal(t, uint64(200), l.At(2).Start)
}

func TestIntervalListAddPastCapacityPanics(t *testing.T) {
	l := newTestList(t, 1)
	l.Add(0, 10, Base4KiB)
	require.Panics(t, func() { l.Add(10, 20, Base4KiB) })
}

func TestIntervalListFirstOf(t *testing.T) {
	l := newTestList(t, 4)
	l.Add(uint64(Huge1GiB)*2, uint64(Huge1GiB)*3, Huge1GiB)
	l.Add(uint64(Huge1GiB), uint64(Huge1GiB)*2, Huge1GiB)
	iv, ok := l.FirstOf(Huge1GiB)
	require.True(t, ok)
	require.Equal(t, uint64(Huge1GiB), iv.Start)

	_, ok = l.FirstOf(Huge2MiB)
	require.False(t, ok)
}

func TestIntervalListMaxEndOffset(t *testing.T) {
	l := newTestList(t, 4)
	l.Add(0, 100, Base4KiB)
	l.Add(100, 500, Huge2MiB)
	require.Equal(t, uint64(500), l.MaxEndOffset())
}

func TestIntervalListZeroCapacity(t *testing.T) {
	l := newTestList(t, 0)
	require.Equal(t, 0, l.Len())
	require.Panics(t, func() { l.Add(0, 10, Base4KiB) })
}

func TestRoundUpAndIsAligned(t *testing.T) {
	require.Equal(t, uint64(4096), RoundUp(1, 4096))
	require.Equal(t, uint64(4096), RoundUp(4096, 4096))
	require.Equal(t, uint64(8192), RoundUp(4097, 4096))
	require.True(t, IsAligned(8192, 4096))
	require.False(t, IsAligned(8193, 4096))
}
