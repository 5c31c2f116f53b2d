// Package config resolves which layout source configures the three memory
// pools, and in what order each input source wins.
package config

import (
	"fmt"
	"os"

	"github.com/mosalloc-go/mosalloc/internal/profile"
)

// Source names where a layout came from, for logging.
const (
	SourceFlag    = "flag"
	SourceEnv     = "env"
	SourceRCFile  = "rcfile"
	SourceDefault = "default-profile"
)

// Resolved names the profile to load and where that name came from.
type Resolved struct {
	ProfileName string
	Source      string
}

// ResolveProfile determines which named profile to load.
// Precedence:
//  1. flagProfile (from --profile)
//  2. MOSALLOC_PROFILE environment variable
//  3. .mosallocrc walk-up from cwd
//  4. "default" profile, if it exists in dir
func ResolveProfile(dir, flagProfile string) (Resolved, error) {
	if flagProfile != "" {
		return Resolved{ProfileName: flagProfile, Source: SourceFlag}, nil
	}
	if env := os.Getenv("MOSALLOC_PROFILE"); env != "" {
		return Resolved{ProfileName: env, Source: SourceEnv}, nil
	}

	if cwd, err := os.Getwd(); err == nil {
		if rcPath, err := FindRC(cwd); err == nil && rcPath != "" {
			if name, err := ReadRC(rcPath); err == nil {
				return Resolved{ProfileName: name, Source: SourceRCFile}, nil
			}
		}
	}

	names, err := profile.List(dir)
	if err == nil {
		for _, n := range names {
			if n == "default" {
				return Resolved{ProfileName: "default", Source: SourceDefault}, nil
			}
		}
	}

	return Resolved{}, fmt.Errorf("no layout profile configured; use --profile, set MOSALLOC_PROFILE, create .mosallocrc, or save a \"default\" profile")
}
