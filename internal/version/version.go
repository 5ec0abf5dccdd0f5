package version

import "fmt"

var (
	// Version is the supervisor's semantic version, overridden via ldflags
	// on release builds.
	Version = "0.1.0"
	// Commit is the git revision the binary was built from, when injected.
	Commit = "none"
	// BuildTime is the UTC timestamp of the build, when injected.
	BuildTime = "unknown"
)

// Short returns the bare semantic version. It tags the User-Agent of
// outbound registry requests.
func Short() string {
	return Version
}

// Full renders the version with its build provenance for the version
// subcommand.
func Full() string {
	return fmt.Sprintf("paperward %s (commit %s, built %s)", Version, Commit, BuildTime)
}
