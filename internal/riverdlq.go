package internal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
)

// RedeliverArgs is the River job payload for an exhausted task. An external
// worker registered for the configured kind can pick these up and replay the
// delivery once the sink recovers.
type RedeliverArgs struct {
	Task      Task   `json:"task"`
	Reason    string `json:"reason"`
	LastError string `json:"last_error,omitempty"`

	kind string
}

func (a RedeliverArgs) Kind() string {
	if a.kind == "" {
		return "pokebridge.redeliver"
	}
	return a.kind
}

// RiverDeadLetterStore persists dead letters as River jobs in Postgres,
// making the dead-letter record durable and replayable.
type RiverDeadLetterStore struct {
	pool   *pgxpool.Pool
	client *river.Client[pgx.Tx]
	cfg    RiverConfig
}

func NewRiverDeadLetterStore(ctx context.Context, cfg RiverConfig) (*RiverDeadLetterStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("river dsn is required")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open river pool: %w", err)
	}
	// Insert-only client: no workers, no queues.
	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("river client: %w", err)
	}
	return &RiverDeadLetterStore{pool: pool, client: client, cfg: cfg}, nil
}

func (s *RiverDeadLetterStore) Record(ctx context.Context, dl DeadLetter) error {
	_, err := s.client.Insert(ctx, RedeliverArgs{
		Task:      dl.Task,
		Reason:    dl.Reason,
		LastError: dl.LastError,
		kind:      s.cfg.Kind,
	}, &river.InsertOpts{
		Queue:       s.cfg.Queue,
		MaxAttempts: s.cfg.MaxAttempts,
		Tags:        s.cfg.Tags,
	})
	return err
}

func (s *RiverDeadLetterStore) Close() {
	s.pool.Close()
}
