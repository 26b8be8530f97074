// Package connection keeps every known panic button connected.
//
// The Supervisor owns the button manager handle and a Registry of attached
// listeners. A periodic check reconnects buttons that lost their listener and
// rebuilds the manager when its handle is gone. No failure in a pass stops
// the loop.
package connection
