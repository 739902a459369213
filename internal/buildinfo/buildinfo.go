// Package buildinfo carries the version stamped at release time.
package buildinfo

// Version is overridden via -ldflags on release builds.
var Version = "dev"
