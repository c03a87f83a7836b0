// Package version carries build metadata injected with -ldflags -X.
package version

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = ""
)

// String renders the version as "<version> (<commit>)".
func String() string {
	if GitCommit == "" || GitCommit == "unknown" {
		return Version
	}
	return Version + " (" + GitCommit + ")"
}
