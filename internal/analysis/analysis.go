// Package analysis provides writers (and a reader) for the exit-time
// reports: a per-pool high-water-mark CSV and an append-only log of each
// run's region base pointers. No command in this repository calls them,
// whatever HPC_ANALYZE_HPBRS is set to.
package analysis

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/mosalloc-go/mosalloc/internal/session"
)

// Sizes is the high-water mark each pool reached during a run.
type Sizes struct {
	Brk      uint64
	AnonMmap uint64
	FileMmap uint64
}

// WriteSizes writes mosalloc_hpbrs_sizes.<pid>.csv, overwriting any
// previous report from the same pid.
func WriteSizes(path string, pid int, s Sizes) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("analysis: creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	rows := [][]string{
		{"region", "max-size"},
		{"brk", strconv.FormatUint(s.Brk, 10)},
		{"anon-mmap", strconv.FormatUint(s.AnonMmap, 10)},
		{"file-mmap", strconv.FormatUint(s.FileMmap, 10)},
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("analysis: writing %s: %w", path, err)
	}
	return nil
}

// SizesFilename returns the conventional per-pid report name.
func SizesFilename(pid int) string {
	return fmt.Sprintf("mosalloc_hpbrs_sizes.%d.csv", pid)
}

// ReadSizes parses a report written by WriteSizes, for round-trip tests.
func ReadSizes(path string) (Sizes, error) {
	f, err := os.Open(path)
	if err != nil {
		return Sizes{}, fmt.Errorf("analysis: opening %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return Sizes{}, fmt.Errorf("analysis: reading %s: %w", path, err)
	}
	var s Sizes
	for _, row := range rows[1:] {
		if len(row) != 2 {
			return Sizes{}, fmt.Errorf("analysis: malformed row %v", row)
		}
		n, err := strconv.ParseUint(row[1], 10, 64)
		if err != nil {
			return Sizes{}, fmt.Errorf("analysis: bad size in row %v: %w", row, err)
		}
		switch row[0] {
		case "brk":
			s.Brk = n
		case "anon-mmap":
			s.AnonMmap = n
		case "file-mmap":
			s.FileMmap = n
		default:
			return Sizes{}, fmt.Errorf("analysis: unknown region %q", row[0])
		}
	}
	return s, nil
}

// RegionBases is each pool's reserved address range, logged once per run.
type RegionBases struct {
	AnonStart, AnonEnd uintptr
	BrkStart, BrkEnd   uintptr
	FileStart, FileEnd uintptr
}

// AppendBasePointers appends one row to pools_base_pointers.out, writing
// the header first if the file is new or empty.
func AppendBasePointers(path string, pid, tid int, sessionID session.ID, bases RegionBases) error {
	needHeader := false
	if info, err := os.Stat(path); err != nil || info.Size() == 0 {
		needHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("analysis: opening %s: %w", path, err)
	}
	defer f.Close()

	if needHeader {
		if _, err := fmt.Fprintln(f, "session,pid,tid,anon-mmap-start,anon-mmap-end,brk-start,brk-end,file-mmap-start,file-mmap-end"); err != nil {
			return fmt.Errorf("analysis: writing header: %w", err)
		}
	}
	_, err = fmt.Fprintf(f, "%s,%d,%d,%#x,%#x,%#x,%#x,%#x,%#x\n",
		sessionID, pid, tid,
		bases.AnonStart, bases.AnonEnd,
		bases.BrkStart, bases.BrkEnd,
		bases.FileStart, bases.FileEnd)
	if err != nil {
		return fmt.Errorf("analysis: appending row: %w", err)
	}
	return nil
}
