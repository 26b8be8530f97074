// Package health serves the standard gRPC health service for the dispatcher.
//
// The overall status (empty service name) follows the dispatcher lifecycle;
// the connection and heartbeat services follow their loops.
package health
