package interposer

import (
	"testing"

	"github.com/mosalloc-go/mosalloc/internal/csvlayout"
	"github.com/mosalloc-go/mosalloc/internal/layout"
	"github.com/mosalloc-go/mosalloc/internal/pool"
	"github.com/mosalloc-go/mosalloc/internal/rawsyscalls"
	"github.com/stretchr/testify/require"
)

const miB = 1 << 20

func emptyParams(size uint64, ffaSize int) pool.PoolParams {
	var list layout.IntervalList
	_ = list.Initialize(nil, 0)
	return pool.PoolParams{Layout: csvlayout.Result{Size: size, Intervals: &list}, FFAListSize: ffaSize}
}

func newReady(t *testing.T) *Interposer {
	t.Helper()
	var ip Interposer
	mapper := rawsyscalls.NewFakeMapper(0x600000000000)
	require.NoError(t, ip.Init(mapper, emptyParams(16*miB, 32), emptyParams(16*miB, 32), emptyParams(16*miB, 32), 0))
	return &ip
}

func TestInterposerRejectsUseBeforeInit(t *testing.T) {
	var ip Interposer
	_, err := ip.Mmap(0, miB, 0, rawsyscalls.MapPrivate|rawsyscalls.MapAnonymous, -1, 0)
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestInterposerDoubleInitRejected(t *testing.T) {
	var ip Interposer
	mapper := rawsyscalls.NewFakeMapper(0x600000000000)
	require.NoError(t, ip.Init(mapper, emptyParams(miB, 8), emptyParams(miB, 8), emptyParams(miB, 8), 0))
	err := ip.Init(mapper, emptyParams(miB, 8), emptyParams(miB, 8), emptyParams(miB, 8), 0)
	require.Error(t, err)
}

func TestInterposerMmapAnonAndMunmap(t *testing.T) {
	ip := newReady(t)
	ptr, err := ip.Mmap(0, 4*miB, rawsyscalls.ProtRead|rawsyscalls.ProtWrite, rawsyscalls.MapPrivate|rawsyscalls.MapAnonymous, -1, 0)
	require.NoError(t, err)
	require.True(t, ip.ContainsHugeRegion(ptr))

	require.NoError(t, ip.Munmap(ptr, 4*miB))
}

func TestInterposerSbrkReturnsPriorBreak(t *testing.T) {
	ip := newReady(t)
	prior, err := ip.Sbrk(miB)
	require.NoError(t, err)

	second, err := ip.Sbrk(miB)
	require.NoError(t, err)
	require.Equal(t, prior+miB, second)
}

func TestInterposerCloseRejectsFurtherUse(t *testing.T) {
	ip := newReady(t)
	ip.Close()
	require.Equal(t, TornDown, ip.State())

	_, err := ip.Sbrk(miB)
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestInterposerMorecoreIsSbrk(t *testing.T) {
	ip := newReady(t)
	prior, err := ip.Morecore(2 * miB)
	require.NoError(t, err)
	_, _, brkStart, _, _, _ := ip.RegionBases()
	require.Equal(t, brkStart, prior)
}

func TestInterposerCurrentSizesReflectsMaterializedAnon(t *testing.T) {
	ip := newReady(t)
	_, err := ip.Mmap(0, 4*miB, rawsyscalls.ProtRead|rawsyscalls.ProtWrite, rawsyscalls.MapPrivate|rawsyscalls.MapAnonymous, -1, 0)
	require.NoError(t, err)

	anonCur, _, _ := ip.CurrentSizes()
	require.GreaterOrEqual(t, anonCur, uint64(4*miB))
}

// fakeDownstream simulates a glibc-like malloc: it serves the first
// freeSlots requests from a pretend leftover free list, then falls through
// to the interposer's own Morecore for everything after — exactly the
// boundary the drain step is watching for.
type fakeDownstream struct {
	ip        *Interposer
	freeSlots int
	mallocs   []uint64
	freed     []uintptr
	next      uintptr
}

func (f *fakeDownstream) Malloc(size uint64) (uintptr, error) {
	f.mallocs = append(f.mallocs, size)
	if f.freeSlots > 0 {
		f.freeSlots--
		addr := f.next
		f.next += uintptr(size)
		return addr, nil
	}
	return f.ip.Morecore(int64(size))
}

func (f *fakeDownstream) Free(addr uintptr) {
	f.freed = append(f.freed, addr)
}

func TestInterposerDrainStopsAtMorecoreAndFreesLeftoverSlots(t *testing.T) {
	var ip Interposer
	mapper := rawsyscalls.NewFakeMapper(0x600000000000)
	fd := &fakeDownstream{ip: &ip, freeSlots: 3}
	ip.SetDownstream(fd)

	require.NoError(t, ip.Init(mapper, emptyParams(16*miB, 32), emptyParams(16*miB, 32), emptyParams(16*miB, 32), 0))

	require.Len(t, fd.mallocs, 4) // 3 leftover slots drained, the 4th trips morecore
	require.Len(t, fd.freed, 3)   // every drained allocation but the last
}

func TestInterposerDrainGivesUpWithoutFreeingWhenMorecoreNeverFires(t *testing.T) {
	var ip Interposer
	mapper := rawsyscalls.NewFakeMapper(0x600000000000)
	fd := &fakeDownstream{ip: &ip, freeSlots: 1000}
	ip.SetDownstream(fd)

	require.NoError(t, ip.Init(mapper, emptyParams(16*miB, 32), emptyParams(16*miB, 32), emptyParams(16*miB, 32), 0))

	require.Len(t, fd.mallocs, drainMaxRounds)
	require.Empty(t, fd.freed)
}

func TestInterposerWithoutDownstreamSkipsDrain(t *testing.T) {
	var ip Interposer
	mapper := rawsyscalls.NewFakeMapper(0x600000000000)
	require.NoError(t, ip.Init(mapper, emptyParams(miB, 8), emptyParams(miB, 8), emptyParams(miB, 8), 0))
	require.Equal(t, Running, ip.State())
}
