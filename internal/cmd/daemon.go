package cmd

import (
	"fmt"
	"os"

	"github.com/mosalloc-go/mosalloc/internal/csvlayout"
	"github.com/mosalloc-go/mosalloc/internal/envconfig"
	"github.com/mosalloc-go/mosalloc/internal/interposer"
	"github.com/mosalloc-go/mosalloc/internal/layout"
	"github.com/mosalloc-go/mosalloc/internal/obslog"
	"github.com/mosalloc-go/mosalloc/internal/pool"
	"github.com/mosalloc-go/mosalloc/internal/profile"
	"github.com/mosalloc-go/mosalloc/internal/rawsyscalls"
)

// buildInterposer resolves pool configuration, preferring a named TOML
// profile when one is given (by argument, else by MOSALLOC_PROFILE) and
// falling back to the raw CSV file named by HPC_CONFIGURATION_FILE, then
// constructs and initializes an Interposer.
func buildInterposer(profileName string) (*interposer.Interposer, *obslog.Logger, error) {
	if profileName == "" {
		profileName = os.Getenv(envconfig.ProfileVar)
	}
	cfg, err := envconfig.Load()
	if err != nil && profileName == "" {
		return nil, nil, err
	}

	log := obslog.New(cfg.VerboseLevel)
	mapper := rawsyscalls.RealMapper{}

	mmapFFA := cfg.MmapFFAListSize
	fileFFA := cfg.FileFFAListSize
	if mmapFFA == 0 {
		mmapFFA = 1024
	}
	if fileFFA == 0 {
		fileFFA = 1024
	}

	var anon, file, brk csvlayout.Result
	if profileName != "" {
		dir := resolvedProfileDir()
		p, err := profile.Load(dir, profileName)
		if err != nil {
			return nil, nil, fmt.Errorf("loading profile %q: %w", profileName, err)
		}
		anon, err = resultFromSpec(mapper, p.Pool.Mmap)
		if err != nil {
			return nil, nil, err
		}
		file, err = resultFromSpec(mapper, p.Pool.File)
		if err != nil {
			return nil, nil, err
		}
		brk, err = resultFromSpec(mapper, p.Pool.Brk)
		if err != nil {
			return nil, nil, err
		}
	} else {
		anon, err = csvlayout.ParseFile(mapper, cfg.ConfigurationFile, csvlayout.PoolMmap)
		if err != nil {
			return nil, nil, err
		}
		file, err = csvlayout.ParseFile(mapper, cfg.ConfigurationFile, csvlayout.PoolFile)
		if err != nil {
			return nil, nil, err
		}
		brk, err = csvlayout.ParseFile(mapper, cfg.ConfigurationFile, csvlayout.PoolBrk)
		if err != nil {
			return nil, nil, err
		}
	}

	ip := &interposer.Interposer{}
	err = ip.Init(mapper,
		pool.PoolParams{Layout: anon, FFAListSize: mmapFFA},
		pool.PoolParams{Layout: file, FFAListSize: fileFFA},
		pool.PoolParams{Layout: brk},
		0,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing allocator: %w", err)
	}
	return ip, log, nil
}

func resultFromSpec(mapper rawsyscalls.Mapper, spec profile.PoolSpec) (csvlayout.Result, error) {
	var list layout.IntervalList
	if err := list.Initialize(mapper, len(spec.Intervals)); err != nil {
		return csvlayout.Result{}, err
	}
	for _, iv := range spec.Intervals {
		list.Add(iv.Start, iv.End, layout.PageSize(iv.PageSize))
	}
	list.Sort()
	return csvlayout.Result{Size: spec.Size, Intervals: &list}, nil
}
