package internal

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type recordingStore struct {
	entries []DeadLetter
	err     error
}

func (s *recordingStore) Record(ctx context.Context, dl DeadLetter) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, dl)
	return nil
}

// TestDeadLetterLogBounded tests that the in-memory record keeps only the
// newest entries while the total keeps counting.
func TestDeadLetterLogBounded(t *testing.T) {
	log := NewDeadLetterLog(3, nil, nil)
	for i := 0; i < 5; i++ {
		log.Record(context.Background(), DeadLetter{
			Task:   Task{DedupKey: fmt.Sprintf("k%d", i)},
			Reason: "terminal",
		})
	}

	if log.Count() != 5 {
		t.Fatalf("expected total 5, got %d", log.Count())
	}
	recent := log.Recent()
	if len(recent) != 3 {
		t.Fatalf("expected 3 retained entries, got %d", len(recent))
	}
	if recent[0].Task.DedupKey != "k2" || recent[2].Task.DedupKey != "k4" {
		t.Fatalf("unexpected retained window: %q .. %q", recent[0].Task.DedupKey, recent[2].Task.DedupKey)
	}
}

// TestDeadLetterLogForwardsToStore tests that entries reach the durable store
// and that store failures do not lose the in-memory record.
func TestDeadLetterLogForwardsToStore(t *testing.T) {
	store := &recordingStore{}
	log := NewDeadLetterLog(10, store, nil)
	log.Record(context.Background(), DeadLetter{Task: Task{DedupKey: "k1"}, Reason: "terminal"})

	if len(store.entries) != 1 {
		t.Fatalf("expected 1 stored entry, got %d", len(store.entries))
	}
	if store.entries[0].CreatedAt.IsZero() {
		t.Fatalf("expected CreatedAt to be stamped")
	}

	store.err = errors.New("db down")
	log.Record(context.Background(), DeadLetter{Task: Task{DedupKey: "k2"}, Reason: "terminal"})
	if log.Count() != 2 {
		t.Fatalf("store failure must not drop the record, got count %d", log.Count())
	}
}
