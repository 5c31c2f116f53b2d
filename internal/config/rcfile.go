package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const rcFileName = ".mosallocrc"

// FindRC walks up from startDir looking for a .mosallocrc file, returning
// its path or "" if none is found before the filesystem root.
func FindRC(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}
	for {
		candidate := filepath.Join(dir, rcFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// ReadRC reads the profile name from a .mosallocrc file — just the name,
// optionally padded with whitespace.
func ReadRC(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", rcFileName, err)
	}
	name := strings.TrimSpace(string(data))
	if name == "" {
		return "", fmt.Errorf("%s is empty: %s", rcFileName, path)
	}
	return name, nil
}

// WriteRC writes a profile name to a .mosallocrc file in dir.
func WriteRC(dir, profileName string) error {
	return os.WriteFile(filepath.Join(dir, rcFileName), []byte(profileName+"\n"), 0o644)
}
