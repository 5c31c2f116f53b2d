package profile

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleProfile() Profile {
	var p Profile
	p.Pool.Mmap = PoolSpec{Size: 2 << 30, Intervals: []Interval{{Start: 0, End: 512 << 20, PageSize: 1 << 30}}}
	p.Pool.Brk = PoolSpec{Size: 256 << 20}
	p.Pool.File = PoolSpec{Size: 64 << 20, Intervals: []Interval{{Start: 0, End: 64 << 20, PageSize: 2 << 20}}}
	return p
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := sampleProfile()
	require.NoError(t, Save(dir, "default", p))

	got, err := Load(dir, "default")
	require.NoError(t, err)
	require.Equal(t, p, got)
}

func TestListProfiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Save(dir, "a", sampleProfile()))
	require.NoError(t, Save(dir, "b", sampleProfile()))

	names, err := List(dir)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, names)
}

func TestListMissingDirReturnsEmpty(t *testing.T) {
	names, err := List("/nonexistent/does/not/exist")
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestValidateRejectsIntervalPastSize(t *testing.T) {
	p := sampleProfile()
	p.Pool.Mmap.Intervals[0].End = p.Pool.Mmap.Size + 1
	require.Error(t, p.Validate())
}

func TestValidateRejectsBadPageSize(t *testing.T) {
	p := sampleProfile()
	p.Pool.Mmap.Intervals[0].PageSize = 4096
	require.Error(t, p.Validate())
}
