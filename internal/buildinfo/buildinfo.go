// Package buildinfo stores build-time metadata shared across packages.
package buildinfo

import (
	"fmt"
	"runtime"
)

// Set via ldflags during build.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// IsDev reports whether this is an unreleased build.
func IsDev() bool {
	return Version == "dev" || Version == ""
}

// String renders the one-line version banner.
func String() string {
	return fmt.Sprintf("cmdq %s (commit %s, built %s, %s/%s)", Version, Commit, Date, runtime.GOOS, runtime.GOARCH)
}
