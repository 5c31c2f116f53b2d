package layout

import (
	"testing"

	"github.com/mosalloc-go/mosalloc/internal/rawsyscalls"
	"github.com/stretchr/testify/require"
)

func buildList(t *testing.T, intervals []MemoryInterval) *IntervalList {
	t.Helper()
	var l IntervalList
	require.NoError(t, l.Initialize(rawsyscalls.NewFakeMapper(0x700000000000), len(intervals)))
	t.Cleanup(func() { _ = l.Close() })
	for _, iv := range intervals {
		l.Add(iv.Start, iv.End, iv.PageSize)
	}
	return &l
}

func TestValidateSuccessMixed(t *testing.T) {
	l := buildList(t, []MemoryInterval{
		{Start: uint64(Huge2MiB) * 4, End: uint64(Huge2MiB) * 6, PageSize: Huge2MiB},
		{Start: uint64(Huge1GiB), End: uint64(Huge1GiB) * 2, PageSize: Huge1GiB},
	})
	require.Equal(t, Success, Validate(l))
}

func TestValidateInvalidPageSize(t *testing.T) {
	l := buildList(t, []MemoryInterval{{Start: 0, End: uint64(Base4KiB), PageSize: Base4KiB}})
	require.Equal(t, InvalidPageSize, Validate(l))
}

func TestValidate1GBStartNotAligned(t *testing.T) {
	l := buildList(t, []MemoryInterval{{Start: 1, End: uint64(Huge1GiB) + 1, PageSize: Huge1GiB}})
	require.Equal(t, Invalid1GBStartOffset, Validate(l))
}

func TestValidate2MBSizeNotAligned(t *testing.T) {
	l := buildList(t, []MemoryInterval{{Start: 0, End: uint64(Huge2MiB) - uint64(Base4KiB), PageSize: Huge2MiB}})
	require.Equal(t, SizeOf2MBIntervalError, Validate(l))
}

func TestValidateGapBetweenTwo1GBIntervalsNotAligned(t *testing.T) {
	l := buildList(t, []MemoryInterval{
		{Start: 0, End: uint64(Huge1GiB), PageSize: Huge1GiB},
		{Start: uint64(Huge1GiB) + uint64(Base4KiB), End: uint64(Huge1GiB)*2 + uint64(Base4KiB), PageSize: Huge1GiB},
	})
	require.Equal(t, OffsetBetweenTwo1GBIntervalsError, Validate(l))
}

func TestValidateCrossAlignment1GBAnd2MB(t *testing.T) {
	// 1GiB interval starts at offset 0; 2MiB interval starts at an offset
	// that is 4KiB-aligned but not 2MiB-aligned relative to it.
	l := buildList(t, []MemoryInterval{
		{Start: 0, End: uint64(Huge1GiB), PageSize: Huge1GiB},
		{Start: uint64(Huge1GiB) + uint64(Base4KiB), End: uint64(Huge1GiB) + uint64(Base4KiB) + uint64(Huge2MiB), PageSize: Huge2MiB},
	})
	require.Equal(t, OffsetBetween1GBAnd2MBIntervalsError, Validate(l))
}

func TestValidateEmptyListSucceeds(t *testing.T) {
	l := buildList(t, nil)
	require.Equal(t, Success, Validate(l))
}
