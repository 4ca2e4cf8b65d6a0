// Package version carries the build-time version string used in the
// User-Agent header sent to provider backends.
package version

// Version is overridden at build time via -ldflags.
var Version = "dev"
