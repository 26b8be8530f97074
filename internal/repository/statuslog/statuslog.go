package statuslog

import (
	"context"
	"time"
)

// Entry is a single status message.
type Entry struct {
	// Time is when the message was recorded.
	Time time.Time
	// Message is the human-readable text.
	Message string
}

// Log records status messages, keeping only the most recent ones.
type Log interface {
	// Add appends a message.
	Add(ctx context.Context, message string) error
	// Messages returns the kept messages, oldest first.
	Messages(ctx context.Context) ([]Entry, error)
}

// Contains reports whether any kept entry has the given message.
func Contains(entries []Entry, message string) bool {
	for _, e := range entries {
		if e.Message == message {
			return true
		}
	}

	return false
}
