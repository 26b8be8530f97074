// Package button holds the paired hardware button and its press events.
package button
