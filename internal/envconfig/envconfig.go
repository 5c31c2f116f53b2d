// Package envconfig reads pool configuration from the environment
// variables.
package envconfig

import (
	"fmt"
	"os"
	"strconv"
)

const (
	ConfigurationFileVar = "HPC_CONFIGURATION_FILE"
	MmapFFAListSizeVar   = "HPC_MMAP_FIRST_FIT_LIST_SIZE"
	FileFFAListSizeVar   = "HPC_FILE_BACKED_FIRST_FIT_LIST_SIZE"
	AnalyzeHPBRsVar      = "HPC_ANALYZE_HPBRS"
	VerboseLevelVar      = "HPC_VERBOSE_LEVEL"

	// SocketVar carries the rpcshim transport address; ProfileVar names
	// an optional TOML preset in place of a raw CSV configuration file.
	SocketVar  = "MOSALLOC_SOCK"
	ProfileVar = "MOSALLOC_PROFILE"
)

// Config is the fully-resolved environment-derived configuration needed to
// construct the three pools.
type Config struct {
	ConfigurationFile string
	MmapFFAListSize   int
	FileFFAListSize   int
	AnalyzeHPBRs      bool
	VerboseLevel      int
	SocketPath        string
	ProfileName       string
}

// Load reads and validates every configuration variable. A missing
// HPC_CONFIGURATION_FILE or a malformed FFA size is a ConfigError per
// the configuration is fatal at init, reported here as a plain error for
// the caller
// to turn into a fatal exit.
func Load() (Config, error) {
	cfgFile := os.Getenv(ConfigurationFileVar)
	if cfgFile == "" {
		return Config{}, fmt.Errorf("%s is required", ConfigurationFileVar)
	}

	mmapSize, err := parseUintEnv(MmapFFAListSizeVar, true)
	if err != nil {
		return Config{}, err
	}
	fileSize, err := parseUintEnv(FileFFAListSizeVar, true)
	if err != nil {
		return Config{}, err
	}

	analyze := false
	if v := os.Getenv(AnalyzeHPBRsVar); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", AnalyzeHPBRsVar, err)
		}
		analyze = n != 0
	}

	verbose := 0
	if v := os.Getenv(VerboseLevelVar); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", VerboseLevelVar, err)
		}
		verbose = n
	}

	return Config{
		ConfigurationFile: cfgFile,
		MmapFFAListSize:   mmapSize,
		FileFFAListSize:   fileSize,
		AnalyzeHPBRs:      analyze,
		VerboseLevel:      verbose,
		SocketPath:        os.Getenv(SocketVar),
		ProfileName:       os.Getenv(ProfileVar),
	}, nil
}

func parseUintEnv(name string, required bool) (int, error) {
	v := os.Getenv(name)
	if v == "" {
		if required {
			return 0, fmt.Errorf("%s is required", name)
		}
		return 0, nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return int(n), nil
}
