package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String renders the full build identity for -version output.
func String() string {
	return fmt.Sprintf("gradient.report %s (%s, built %s)", Version, GitSHA, BuildTime)
}
