// Package version exposes build-time version information.
package version

import "fmt"

// Version is set via ldflags in release builds:
// go build -ldflags "-X git.home.luguber.info/inful/projectbuilder/internal/version.Version=v0.3.0".
var Version = "unknown"

// Additional build metadata, set the same way.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String renders the version line printed by the CLI and reported in telemetry.
func String() string {
	return fmt.Sprintf("projectbuilder %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}
