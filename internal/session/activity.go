package session

import (
	"time"

	"github.com/google/uuid"
)

// DefaultLogCapacity bounds the activity log.
const DefaultLogCapacity = 50

// LogEntry is one user-visible activity line. Entries are never mutated.
type LogEntry struct {
	ID      string    `json:"id"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// ActivityLog is a fixed-capacity ring of entries. When full, the oldest
// entry is evicted.
type ActivityLog struct {
	buf  []LogEntry
	next int // slot the next entry goes into
	n    int
	now  func() time.Time
}

// NewActivityLog returns an empty log holding at most capacity entries.
func NewActivityLog(capacity int) *ActivityLog {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &ActivityLog{buf: make([]LogEntry, capacity), now: time.Now}
}

// Add appends message and returns the stored entry.
func (l *ActivityLog) Add(message string) LogEntry {
	e := LogEntry{ID: uuid.NewString(), Message: message, Time: l.now()}
	l.buf[l.next] = e
	l.next = (l.next + 1) % len(l.buf)
	if l.n < len(l.buf) {
		l.n++
	}
	return e
}

// Entries returns a copy, newest first.
func (l *ActivityLog) Entries() []LogEntry {
	out := make([]LogEntry, l.n)
	for i := range out {
		out[i] = l.buf[(l.next-1-i+len(l.buf))%len(l.buf)]
	}
	return out
}

func (l *ActivityLog) Len() int { return l.n }

func (l *ActivityLog) Cap() int { return len(l.buf) }

// Reset drops every entry and leaves message as the only one.
func (l *ActivityLog) Reset(message string) LogEntry {
	clear(l.buf)
	l.next, l.n = 0, 0
	return l.Add(message)
}
