// Package version reports the build's version.
package version

import (
	"runtime/debug"
)

// Version is set at build time with
// -ldflags "-X github.com/quii/guardedcounter/internal/version.Version=...".
var Version = "0.1.0-dev"

// Revision returns the VCS revision the binary was built from, or
// "unknown" when the build carries no VCS information.
func Revision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}

	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}

	return "unknown"
}

// String returns the version and revision.
func String() string {
	return Version + "+" + Revision()
}
