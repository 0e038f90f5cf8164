// Package version holds build metadata injected through -ldflags.
package version

var (
	// Version is the semantic version.
	Version = "v0.0.0-dev"

	// GitCommit is the commit hash the binary was built from.
	GitCommit = "unknown"

	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)

// Info returns a one-line description suitable for `jarvis version`.
func Info() string {
	return "jarvis " + Version + " (" + GitCommit + ", built " + BuildTime + ")"
}
