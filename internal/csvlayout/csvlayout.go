// Package csvlayout parses the CSV pool-layout configuration format from
// a pool-layout CSV file into a layout.IntervalList plus the declared
// pool size.
package csvlayout

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mosalloc-go/mosalloc/internal/layout"
	"github.com/mosalloc-go/mosalloc/internal/rawsyscalls"
)

// PoolType selects which rows of the CSV a parse pass keeps.
type PoolType string

const (
	PoolMmap PoolType = "mmap"
	PoolBrk  PoolType = "brk"
	PoolFile PoolType = "file"
)

// Result is one pool's parsed layout: its declared total size and the
// interval list of huge-page sub-ranges within it.
type Result struct {
	Size      uint64
	Intervals *layout.IntervalList
}

// row is one parsed CSV line before it is classified as a size marker or an
// interval.
type row struct {
	poolType   string
	pageSize   int64
	startOff   int64
	endOff     int64
}

// ParseFile opens path, counts data rows to size the interval list
// (interval lists are fixed-capacity once allocated), and returns the
// rows matching poolType. The header line is always skipped.
//
// This parser builds one list per call, sized to that pool's own row
// count: every matching row — including the file pool's own intervals —
// ends up in the returned list.
func ParseFile(mapper rawsyscalls.Mapper, path string, poolType PoolType) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("opening csv layout %s: %w", path, err)
	}
	defer f.Close()

	rows, err := parseRows(f)
	if err != nil {
		return Result{}, fmt.Errorf("parsing csv layout %s: %w", path, err)
	}

	matching := make([]row, 0, len(rows))
	for _, r := range rows {
		if r.poolType == string(poolType) {
			matching = append(matching, r)
		}
	}

	var res Result
	var list layout.IntervalList
	// The interval list holds exactly the pool's own huge-page rows; the
	// 4KiB filler intervals between and around them are synthesized later,
	// by hpbr.completeIntervals once the pool's declared size is known.
	intervalRows := 0
	for _, r := range matching {
		if r.pageSize != -1 {
			intervalRows++
		}
	}
	if err := list.Initialize(mapper, intervalRows); err != nil {
		return Result{}, err
	}

	sawSize := false
	for _, r := range matching {
		if r.pageSize == -1 {
			if sawSize {
				return Result{}, fmt.Errorf("pool %q: size declared more than once", poolType)
			}
			if r.endOff < r.startOff {
				return Result{}, fmt.Errorf("pool %q: size row has end < start", poolType)
			}
			res.Size = uint64(r.endOff - r.startOff)
			sawSize = true
			continue
		}
		ps := layout.PageSize(r.pageSize)
		if ps != layout.Huge2MiB && ps != layout.Huge1GiB {
			return Result{}, fmt.Errorf("pool %q: unknown page size %d", poolType, r.pageSize)
		}
		if r.startOff < 0 || r.endOff < 0 {
			return Result{}, fmt.Errorf("pool %q: negative offset", poolType)
		}
		list.Add(uint64(r.startOff), uint64(r.endOff), ps)
	}
	list.Sort()

	if !sawSize {
		return Result{}, fmt.Errorf("pool %q: missing size row (a page_size=-1 row declaring the pool's total size)", poolType)
	}

	if list.MaxEndOffset() > res.Size {
		return Result{}, fmt.Errorf("pool %q: interval end offset exceeds declared pool size", poolType)
	}

	res.Intervals = &list
	return res, nil
}

func parseRows(r io.Reader) ([]row, error) {
	scanner := bufio.NewScanner(r)
	// Header line, ignored.
	if !scanner.Scan() {
		return nil, scanner.Err()
	}

	var rows []row
	lineNo := 1
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 4 {
			return nil, fmt.Errorf("line %d: expected 4 comma-separated fields, got %d", lineNo, len(fields))
		}
		poolType := strings.TrimSpace(fields[0])
		pageSize, err := strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad page_size: %w", lineNo, err)
		}
		start, err := strconv.ParseInt(strings.TrimSpace(fields[2]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad start_offset: %w", lineNo, err)
		}
		end, err := strconv.ParseInt(strings.TrimSpace(fields[3]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad end_offset: %w", lineNo, err)
		}
		rows = append(rows, row{poolType: poolType, pageSize: pageSize, startOff: start, endOff: end})
	}
	return rows, scanner.Err()
}
