// Package version holds build metadata injected via ldflags. Builds that
// skip the ldflags (go run, tests) report a plain "dev".
package version

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String renders the build metadata as one display string.
func String() string {
	if Version == "dev" {
		return "dev"
	}
	return Version + " (commit " + Commit + ", built " + Date + ")"
}
