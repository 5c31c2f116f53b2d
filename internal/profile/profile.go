// Package profile loads named pool-layout presets from TOML, the
// interactive-use sugar over the CSV format internal/csvlayout reads for
// HPC_CONFIGURATION_FILE.
package profile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Interval mirrors a layout.MemoryInterval in a TOML-friendly shape.
type Interval struct {
	Start    uint64 `toml:"start"`
	End      uint64 `toml:"end"`
	PageSize uint64 `toml:"page_size"`
}

// PoolSpec is one pool's declared size and intervals.
type PoolSpec struct {
	Size      uint64     `toml:"size"`
	Intervals []Interval `toml:"intervals"`
}

// Profile is a named, complete three-pool layout.
type Profile struct {
	Pool struct {
		Mmap PoolSpec `toml:"mmap"`
		Brk  PoolSpec `toml:"brk"`
		File PoolSpec `toml:"file"`
	} `toml:"pool"`
}

// Dir returns the directory profiles are stored in, honoring
// MOSALLOC_PROFILE_DIR for tests and non-standard home layouts.
func Dir() string {
	if d := os.Getenv("MOSALLOC_PROFILE_DIR"); d != "" {
		return d
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".mosalloc", "profiles")
}

func path(dir, name string) string {
	return filepath.Join(dir, name+".toml")
}

// Load reads and decodes the named profile from dir.
func Load(dir, name string) (Profile, error) {
	data, err := os.ReadFile(path(dir, name))
	if err != nil {
		return Profile{}, fmt.Errorf("profile: reading %q: %w", name, err)
	}
	var p Profile
	if err := toml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("profile: decoding %q: %w", name, err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, fmt.Errorf("profile: %q: %w", name, err)
	}
	return p, nil
}

// Save encodes and writes a profile, creating dir if needed.
func Save(dir, name string, p Profile) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("profile: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("profile: creating %s: %w", dir, err)
	}
	data, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("profile: encoding %q: %w", name, err)
	}
	return os.WriteFile(path(dir, name), data, 0o644)
}

// List returns the names of every profile found in dir.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("profile: listing %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := filepath.Ext(e.Name()); ext == ".toml" {
			names = append(names, e.Name()[:len(e.Name())-len(ext)])
		}
	}
	return names, nil
}

// Validate checks each pool's intervals lie within its declared size and
// carry a recognized page size (4KiB intervals are never declared
// explicitly — they're the filler HPBR inserts itself).
func (p Profile) Validate() error {
	for name, spec := range map[string]PoolSpec{"mmap": p.Pool.Mmap, "brk": p.Pool.Brk, "file": p.Pool.File} {
		for _, iv := range spec.Intervals {
			if iv.End <= iv.Start {
				return fmt.Errorf("pool %s: interval [%d,%d) is empty or inverted", name, iv.Start, iv.End)
			}
			if iv.End > spec.Size {
				return fmt.Errorf("pool %s: interval end %d exceeds pool size %d", name, iv.End, spec.Size)
			}
			switch iv.PageSize {
			case 2 << 20, 1 << 30:
			default:
				return fmt.Errorf("pool %s: unsupported page size %d", name, iv.PageSize)
			}
		}
	}
	return nil
}
