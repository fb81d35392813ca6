// Package version resolves the application version.
//
// Resolution priority: build info embedded by the Go toolchain (release
// builds from a tagged module), then the APP_VERSION environment variable
// (containers built without VCS metadata), then "unknown".
package version

import (
	"os"
	"runtime/debug"
)

// set via -ldflags "-X github.com/obsproc/quicklook/internal/version.version=..."
var version string

// Version returns the best available version string.
func Version() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}
	if v := os.Getenv("APP_VERSION"); v != "" {
		return v
	}
	return "unknown"
}
