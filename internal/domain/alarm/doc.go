// Package alarm contains the value types that flow through the alarm
// pipeline: the qualifying press (Event) and the position fix (Position).
package alarm
