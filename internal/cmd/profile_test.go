package cmd

import (
	"bytes"
	"testing"

	"github.com/mosalloc-go/mosalloc/internal/profile"
	"github.com/stretchr/testify/require"
)

func TestProfileListAndShow(t *testing.T) {
	dir := t.TempDir()
	p := profile.Profile{}
	p.Pool.Mmap = profile.PoolSpec{Size: 16 << 20, Intervals: []profile.Interval{{Start: 0, End: 4 << 20, PageSize: 2 << 20}}}
	require.NoError(t, profile.Save(dir, "demo", p))

	profileDir = dir
	defer func() { profileDir = "" }()

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"profile", "list", "--profile-dir", dir})
	require.NoError(t, root.Execute())
	require.Contains(t, out.String(), "demo")

	out.Reset()
	root = NewRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"profile", "show", "demo", "--profile-dir", dir})
	require.NoError(t, root.Execute())
	require.Contains(t, out.String(), "mmap: size=16777216")
}
