// Package power provides the wake lock held by the dispatcher while it runs.
//
// The lock is a file holding the owner PID. A lock left by a dead process is
// treated as stale and replaced.
package power
