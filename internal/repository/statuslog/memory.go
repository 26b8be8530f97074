package statuslog

import (
	"context"
	"sync"
	"time"
)

// MemoryLog is a bounded in-memory status log.
type MemoryLog struct {
	// limit is the maximum number of kept entries.
	limit int

	mu      sync.Mutex
	entries []Entry
}

// NewMemoryLog creates a log keeping at most limit entries; non-positive means one.
func NewMemoryLog(limit int) *MemoryLog {
	return &MemoryLog{
		limit: max(limit, 1),
	}
}

// Add appends a message, dropping the oldest one when full.
func (l *MemoryLog) Add(_ context.Context, message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, Entry{Time: time.Now(), Message: message})
	if over := len(l.entries) - l.limit; over > 0 {
		l.entries = append(l.entries[:0:0], l.entries[over:]...)
	}

	return nil
}

// Messages returns a copy of the kept entries.
func (l *MemoryLog) Messages(_ context.Context) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, len(l.entries))
	copy(out, l.entries)

	return out, nil
}
