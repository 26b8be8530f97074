// Package tracking owns the tracking-active flag.
//
// The alarm pipeline asks the Reconciler to make sure tracking runs; only the
// Reconciler reads and writes the flag and issues the start command, so at
// most one start is sent per false to true transition.
package tracking
