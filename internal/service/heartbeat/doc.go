// Package heartbeat reports device liveness to the status endpoint on a fixed interval.
package heartbeat
