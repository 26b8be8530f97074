// Package client implements the status command of panic-dispatcher.
//
// The command asks a running dispatcher for the serving status of each
// component over gRPC health checks and prints the recent status messages
// when a persistent status log is configured. With Wait it retries until the
// dispatcher reports itself serving.
package client
