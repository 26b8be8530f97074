// Package restart keeps the dispatcher alive from outside its process.
//
// The Watchdog maps every trigger (boot, restart signal, observed exit,
// failed health probe) to the same action: start the dispatcher, or resume
// it when it already runs. A failed launch is retried with exponential
// backoff until it succeeds or another trigger arrives.
package restart
