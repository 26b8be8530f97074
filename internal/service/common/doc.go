// Package common holds helpers shared by the dispatcher and the watchdog.
//
// It provides a lightweight gRPC health client with call timeouts and a
// helper that detects the current system actor (hostname/username).
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
