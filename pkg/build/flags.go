// SPDX-License-Identifier: MIT
//
// Package build exposes the metadata embedded into the lumen binary at link
// time. The values are injected with -ldflags, for example:
//
//	go build -ldflags "-X lumen/pkg/build.buildName=lumen \
//	    -X lumen/pkg/build.buildVersion=0.3.0 \
//	    -X lumen/pkg/build.buildCommit=$(git rev-parse --short HEAD) \
//	    -X lumen/pkg/build.buildTime=$(date -u +%FT%TZ)"
//
// Development builds run without the flags and report "dev" values.
package build

import (
	"errors"
	"fmt"
	"strings"
)

// Info describes the running binary.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// String renders the one-line version banner used by the CLI.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

// ErrMissingFlags is returned by Initialize when one or more link-time flags
// were not provided.
var ErrMissingFlags = errors.New("build flags missing")

const description = "Live audio feature extraction: loudness, band energy and beat phase"

var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildInfo    = Info{
		Name:        "lumen",
		Description: description,
		Time:        "dev",
		Commit:      "dev",
		Version:     "dev",
	}
)

// Initialize copies the link-time values into the package Info. Flags that
// were not set keep their development defaults and are reported in the
// returned error so that release builds can refuse to start.
func Initialize() error {
	var missing []string

	set := func(dst *string, val, name string) {
		if val == "" {
			missing = append(missing, name)
			return
		}
		*dst = val
	}

	set(&buildInfo.Name, buildName, "buildName")
	set(&buildInfo.Time, buildTime, "buildTime")
	set(&buildInfo.Commit, buildCommit, "buildCommit")
	set(&buildInfo.Version, buildVersion, "buildVersion")

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingFlags, strings.Join(missing, ", "))
	}
	return nil
}

// GetBuildInfo returns the current build information.
func GetBuildInfo() Info {
	return buildInfo
}
