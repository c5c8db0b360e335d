package internal

import (
	"context"
	"log"
	"sync"
	"time"
)

// DeadLetter records a task that could not be delivered: retries exhausted, a
// terminal sink response, or abandonment during shutdown.
type DeadLetter struct {
	Task      Task      `json:"task"`
	Reason    string    `json:"reason"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// DeadLetterStore is an optional durable backend for dead letters.
type DeadLetterStore interface {
	Record(ctx context.Context, dl DeadLetter) error
}

// DeadLetterLog keeps a bounded in-memory record of dead letters for the
// status endpoint and forwards each entry to the durable store when one is
// configured. Store failures are logged, never fatal: the in-memory record is
// the source of truth for observability.
type DeadLetterLog struct {
	mu      sync.Mutex
	entries []DeadLetter
	cap     int
	total   int64
	store   DeadLetterStore
	logger  *log.Logger
}

func NewDeadLetterLog(capacity int, store DeadLetterStore, logger *log.Logger) *DeadLetterLog {
	if capacity <= 0 {
		capacity = 100
	}
	if logger == nil {
		logger = log.Default()
	}
	return &DeadLetterLog{cap: capacity, store: store, logger: logger}
}

func (l *DeadLetterLog) Record(ctx context.Context, dl DeadLetter) {
	if dl.CreatedAt.IsZero() {
		dl.CreatedAt = time.Now()
	}

	l.mu.Lock()
	l.total++
	l.entries = append(l.entries, dl)
	if len(l.entries) > l.cap {
		l.entries = l.entries[len(l.entries)-l.cap:]
	}
	l.mu.Unlock()

	IncDeadLetter()
	l.logger.Printf("dead letter repo=%s reason=%s attempts=%d err=%q",
		dl.Task.RepoFullName, dl.Reason, dl.Attempts, dl.LastError)

	if l.store != nil {
		if err := l.store.Record(ctx, dl); err != nil {
			l.logger.Printf("dead letter store failed: %v", err)
		}
	}
}

// Count returns the number of dead letters recorded since startup.
func (l *DeadLetterLog) Count() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Recent returns a copy of the retained entries, oldest first.
func (l *DeadLetterLog) Recent() []DeadLetter {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]DeadLetter, len(l.entries))
	copy(out, l.entries)
	return out
}
