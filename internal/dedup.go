package internal

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DedupWindow remembers recently seen dedup keys for a bounded time so that
// provider redeliveries of the same webhook never double-notify. Entries
// expire by TTL; the size cap bounds memory if the TTL is generous.
type DedupWindow struct {
	mu   sync.Mutex
	seen *expirable.LRU[string, time.Time]
}

func NewDedupWindow(size int, ttl time.Duration) *DedupWindow {
	if size <= 0 {
		size = 65536
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &DedupWindow{
		seen: expirable.NewLRU[string, time.Time](size, nil, ttl),
	}
}

// Seen reports whether key was already recorded inside the window, recording
// it if not. Check-and-record is atomic so two concurrent deliveries of the
// same webhook cannot both pass.
func (w *DedupWindow) Seen(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.seen.Get(key); ok {
		return true
	}
	w.seen.Add(key, time.Now())
	return false
}

// Forget drops a key so a later redelivery is treated as new. Used when a
// task is rejected after its key was recorded.
func (w *DedupWindow) Forget(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seen.Remove(key)
}

// Len returns the number of live entries.
func (w *DedupWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seen.Len()
}
