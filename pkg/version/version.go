// Package version holds build information for cinesphere.
package version

import (
	"fmt"
	"runtime"
)

// Version is set with -ldflags "-X github.com/Aman-CERP/cinesphere/pkg/version.Version=...".
var Version = "dev"

var (
	// Commit is the short git commit.
	Commit = "unknown"

	// Date is the build date in RFC3339.
	Date = "unknown"

	GoVersion = runtime.Version()
)

// BuildInfo is the JSON form of the version.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// String returns a one-line description of the build.
func String() string {
	return fmt.Sprintf("cinesphere %s (commit: %s, built: %s, go: %s)", Version, Commit, Date, GoVersion)
}

// GetInfo returns the build information.
func GetInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}
