package analysis

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mosalloc-go/mosalloc/internal/session"
	"github.com/stretchr/testify/require"
)

func TestWriteReadSizesRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), SizesFilename(1234))
	want := Sizes{Brk: 1 << 20, AnonMmap: 2 << 30, FileMmap: 64 << 20}

	require.NoError(t, WriteSizes(path, 1234, want))
	got, err := ReadSizes(path)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestAppendBasePointersWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pools_base_pointers.out")
	bases := RegionBases{AnonStart: 0x1000, AnonEnd: 0x2000, BrkStart: 0x3000, BrkEnd: 0x4000, FileStart: 0x5000, FileEnd: 0x6000}
	id := session.New()

	require.NoError(t, AppendBasePointers(path, 1, 1, id, bases))
	require.NoError(t, AppendBasePointers(path, 2, 2, id, bases))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[0], "session,pid,tid")
	require.Contains(t, lines[1], id.String())
}

func TestReadSizesRejectsUnknownRegion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("region,max-size\nweird,5\n"), 0o644))
	_, err := ReadSizes(path)
	require.Error(t, err)
}
