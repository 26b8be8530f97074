// Package bus carries the small broadcast messages exchanged between the
// dispatcher, the watchdog and the external tracking task: the tracking
// start command, the tracking-started broadcast and the restart signals.
//
// MemoryBus serves single-process deployments and tests; NATSBus is used
// when the processes run separately.
package bus
