// Package packager stages a new dispatcher binary for the watchdog.
//
// The binary is copied to the configured staged update path together with a
// checksum file. The watchdog verifies and applies it before the next launch.
package packager
