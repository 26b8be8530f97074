// Package integration runs the dispatcher end to end against a simulated
// button gateway, HTTP endpoints and an in-process bus.
package integration
