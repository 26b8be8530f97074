// Package dispatcher is the long-running supervising task.
//
// It wires the gateway connector, connection supervisor, alarm pipeline,
// heartbeat and health server together and keeps them running until the
// context is canceled. On teardown it releases the wake lock and emits the
// restart signal so the watchdog brings it back.
package dispatcher
