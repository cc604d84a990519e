// Package version holds build information injected at link time.
package version

// Version is overridden with -ldflags "-X github.com/juanibiapina/testrun/internal/version.Version=..."
var Version = "dev"
