// Package version holds the single build-time version stamp, overridden
// via -ldflags at release build time.
package version

// Version is the released semantic version. Overridden with
// -ldflags="-X claudechill/internal/version.Version=1.2.3" at build time.
var Version = "0.1.0"
