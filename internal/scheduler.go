package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cenkalti/backoff/v3"
	"golang.org/x/sync/semaphore"
)

// Scheduler drives retried, ordered delivery to the sink. Every repository
// gets its own sequential lane so a slow repository never blocks the others,
// while tasks within one repository are delivered strictly in enqueue order.
// The number of lanes delivering at once is capped by a semaphore.
type Scheduler struct {
	cfg         SchedulerConfig
	pubsub      *PubSub
	sink        Sink
	window      *DedupWindow
	deadLetters *DeadLetterLog
	logger      *log.Logger

	sem *semaphore.Weighted

	mu     sync.Mutex
	lanes  map[string]*lane
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// lane is one repository's delivery queue. pending tracks every task that has
// been enqueued but not yet finished, keyed by message UUID, which doubles as
// the depth bound and the source for the shutdown drain sweep.
type lane struct {
	repo  string
	topic string

	mu      sync.Mutex
	pending map[string]Task
}

func (ln *lane) reserve(id string, task Task, maxDepth int) bool {
	ln.mu.Lock()
	defer ln.mu.Unlock()
	if len(ln.pending) >= maxDepth {
		return false
	}
	ln.pending[id] = task
	return true
}

func (ln *lane) release(id string) {
	ln.mu.Lock()
	defer ln.mu.Unlock()
	delete(ln.pending, id)
}

func (ln *lane) depth() int {
	ln.mu.Lock()
	defer ln.mu.Unlock()
	return len(ln.pending)
}

func (ln *lane) drain() []Task {
	ln.mu.Lock()
	defer ln.mu.Unlock()
	out := make([]Task, 0, len(ln.pending))
	for _, task := range ln.pending {
		out = append(out, task)
	}
	ln.pending = make(map[string]Task)
	return out
}

func NewScheduler(cfg SchedulerConfig, pubsub *PubSub, sink Sink, window *DedupWindow, deadLetters *DeadLetterLog, logger *log.Logger) *Scheduler {
	if cfg.MaxActiveLanes <= 0 {
		cfg.MaxActiveLanes = 8
	}
	if cfg.LaneDepth <= 0 {
		cfg.LaneDepth = 64
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.InitialBackoffMS <= 0 {
		cfg.InitialBackoffMS = 500
	}
	if cfg.MaxBackoffMS <= 0 {
		cfg.MaxBackoffMS = 30000
	}
	if cfg.RetryWindowMS <= 0 {
		cfg.RetryWindowMS = 5 * 60 * 1000
	}
	if cfg.DrainTimeoutMS <= 0 {
		cfg.DrainTimeoutMS = 10000
	}
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:         cfg,
		pubsub:      pubsub,
		sink:        sink,
		window:      window,
		deadLetters: deadLetters,
		logger:      logger,
		sem:         semaphore.NewWeighted(cfg.MaxActiveLanes),
		lanes:       make(map[string]*lane),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Enqueue hands a task to its repository's lane. It never blocks on the sink:
// duplicates are dropped (log-only), and a saturated lane rejects with
// ErrLaneSaturated so the caller can signal backpressure.
func (s *Scheduler) Enqueue(task Task) error {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	if s.window != nil && s.window.Seen(task.DedupKey) {
		IncDeduped()
		s.logger.Printf("duplicate delivery dropped repo=%s key=%s", task.RepoFullName, shortSHA(task.DedupKey))
		return nil
	}

	ln, err := s.laneFor(task.RepoFullName)
	if err != nil {
		s.forget(task.DedupKey)
		return err
	}

	payload, err := json.Marshal(task)
	if err != nil {
		s.forget(task.DedupKey)
		return fmt.Errorf("marshal task: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("repo", task.RepoFullName)
	msg.Metadata.Set("dedup_key", task.DedupKey)

	if !ln.reserve(msg.UUID, task, s.cfg.LaneDepth) {
		s.forget(task.DedupKey)
		IncRejected()
		return ErrLaneSaturated
	}
	if err := s.pubsub.Publisher.Publish(ln.topic, msg); err != nil {
		ln.release(msg.UUID)
		s.forget(task.DedupKey)
		return fmt.Errorf("publish to lane %s: %w", ln.topic, err)
	}
	return nil
}

// forget releases a dedup key recorded for a task that was then rejected, so
// the sender's redelivery is not mistaken for a duplicate.
func (s *Scheduler) forget(key string) {
	if s.window != nil {
		s.window.Forget(key)
	}
}

// laneFor returns the repository's lane, creating it on first use. Creation
// is double-checked under the registry lock so concurrent first deliveries
// for one repository produce exactly one lane.
func (s *Scheduler) laneFor(repo string) (*lane, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSchedulerClosed
	}
	if ln, ok := s.lanes[repo]; ok {
		return ln, nil
	}

	ln := &lane{
		repo:    repo,
		topic:   laneTopic(repo),
		pending: make(map[string]Task),
	}
	msgs, err := s.pubsub.Subscriber.Subscribe(s.ctx, ln.topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe lane %s: %w", ln.topic, err)
	}
	s.lanes[repo] = ln

	s.wg.Add(1)
	go s.runLane(ln, msgs)
	return ln, nil
}

func (s *Scheduler) runLane(ln *lane, msgs <-chan *message.Message) {
	defer s.wg.Done()
	for msg := range msgs {
		var task Task
		if err := json.Unmarshal(msg.Payload, &task); err != nil {
			s.logger.Printf("lane %s: dropping undecodable task: %v", ln.repo, err)
			msg.Ack()
			ln.release(msg.UUID)
			continue
		}

		if err := s.sem.Acquire(s.ctx, 1); err != nil {
			// Shutting down. Leave the task pending so the drain sweep
			// records it.
			msg.Ack()
			continue
		}
		s.deliver(task)
		s.sem.Release(1)

		msg.Ack()
		ln.release(msg.UUID)
	}
}

// deliver runs one task's retry loop to a terminal outcome: success, a
// terminal sink error, an exhausted attempt budget, an elapsed retry window,
// or shutdown.
func (s *Scheduler) deliver(task Task) {
	retryWindow := time.Duration(s.cfg.RetryWindowMS) * time.Millisecond
	ctx, cancel := context.WithTimeout(s.ctx, retryWindow)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(s.cfg.InitialBackoffMS) * time.Millisecond
	b.MaxInterval = time.Duration(s.cfg.MaxBackoffMS) * time.Millisecond
	b.MaxElapsedTime = retryWindow
	b.Reset()

	for attempt := 1; ; attempt++ {
		task.Attempts = attempt
		err := s.sink.Deliver(ctx, task)
		if err == nil {
			IncDelivered()
			s.logger.Printf("delivered repo=%s attempts=%d", task.RepoFullName, attempt)
			return
		}

		var terminal *TerminalDeliveryError
		if errors.As(err, &terminal) {
			s.recordDeadLetter(task, "terminal", err)
			return
		}
		if s.ctx.Err() != nil {
			s.recordDeadLetter(task, "shutdown", err)
			return
		}
		if attempt >= s.cfg.MaxAttempts {
			s.recordDeadLetter(task, "retries_exhausted", err)
			return
		}

		wait := b.NextBackOff()
		if wait == backoff.Stop {
			s.recordDeadLetter(task, "retry_window_elapsed", err)
			return
		}
		task.NextAttemptAt = time.Now().Add(wait)
		IncRetry()
		s.logger.Printf("retrying repo=%s attempt=%d in %s: %v", task.RepoFullName, attempt, wait, err)

		select {
		case <-ctx.Done():
			reason := "retry_window_elapsed"
			if s.ctx.Err() != nil {
				reason = "shutdown"
			}
			s.recordDeadLetter(task, reason, err)
			return
		case <-time.After(wait):
		}
	}
}

func (s *Scheduler) recordDeadLetter(task Task, reason string, err error) {
	lastErr := ""
	if err != nil {
		lastErr = err.Error()
	}
	s.deadLetters.Record(context.Background(), DeadLetter{
		Task:      task,
		Reason:    reason,
		Attempts:  task.Attempts,
		LastError: lastErr,
	})
}

// LaneDepths reports the backlog per repository, for the status endpoint.
func (s *Scheduler) LaneDepths() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.lanes))
	for repo, ln := range s.lanes {
		out[repo] = ln.depth()
	}
	return out
}

func (s *Scheduler) pendingCount() int {
	total := 0
	for _, depth := range s.LaneDepths() {
		total += depth
	}
	return total
}

// Close stops intake, drains in-flight lanes for the configured window, then
// abandons what is left. Abandoned tasks are recorded as dead letters with
// reason "shutdown" so nothing is lost invisibly.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	deadline := time.Now().Add(time.Duration(s.cfg.DrainTimeoutMS) * time.Millisecond)
	for time.Now().Before(deadline) && s.pendingCount() > 0 {
		time.Sleep(20 * time.Millisecond)
	}

	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	lanes := make([]*lane, 0, len(s.lanes))
	for _, ln := range s.lanes {
		lanes = append(lanes, ln)
	}
	s.mu.Unlock()

	for _, ln := range lanes {
		for _, task := range ln.drain() {
			s.recordDeadLetter(task, "shutdown", errors.New("abandoned during shutdown"))
		}
	}
	return s.pubsub.Close()
}

// laneTopic derives a broker-safe topic from the repository name.
func laneTopic(repo string) string {
	var b strings.Builder
	b.WriteString("deliveries.")
	for _, r := range repo {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		case r == '/':
			b.WriteByte('.')
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}
