// Package delivery is the outbound HTTP transport shared by the alarm
// pipeline and the heartbeat.
//
// A Client turns every attempt into an Outcome: 2xx is a success, any other
// status and any transport fault is a failure. It never retries; callers
// decide what a failed attempt means for them.
package delivery
