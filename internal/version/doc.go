// Package version exposes build metadata for panic-dispatcher and panic-watchdog.
//
// Version, Commit and BuildTime are injected through -ldflags.
package version
