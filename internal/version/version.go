// Package version holds regcheck build metadata injected via ldflags:
//
//	-X github.com/kailas-cloud/regcheck/internal/version.Version=v1.2.0
package version

import "fmt"

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String renders the build as "v1.2.0 (abc123, 2026-10-14)".
func String() string {
	return fmt.Sprintf("%s (%s, %s)", Version, Commit, Date)
}
