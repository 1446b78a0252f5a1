package store

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const journalWriteTimeout = 5 * time.Second

// Journal writes events to a Repository from a background goroutine.
// Record never blocks; when the queue is full the event is dropped.
type Journal struct {
	repo   Repository
	queue  chan Event
	logger *slog.Logger

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	wg      sync.WaitGroup
}

// NewJournal starts a journal writer with the given queue size.
func NewJournal(repo Repository, queueSize int, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 1000
	}

	j := &Journal{
		repo:   repo,
		queue:  make(chan Event, queueSize),
		logger: logger,
	}

	j.wg.Add(1)
	go j.run()

	return j
}

// Record queues an event for writing.
func (j *Journal) Record(ev Event) {
	if j == nil {
		return
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return
	}

	select {
	case j.queue <- ev:
	default:
		j.dropped.Add(1)
		j.logger.Warn("Journal queue full, dropping event",
			"session_id", ev.SessionID,
			"kind", ev.Kind,
			"queue_len", len(j.queue),
		)
	}
}

// Events returns recent events for a session straight from the repository.
func (j *Journal) Events(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	return j.repo.ListEvents(ctx, sessionID, limit)
}

// Prune removes events older than the cutoff.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	return j.repo.DeleteEventsBefore(ctx, cutoff)
}

func (j *Journal) run() {
	defer j.wg.Done()

	for ev := range j.queue {
		ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
		if err := j.repo.AppendEvent(ctx, ev); err != nil {
			j.logger.Warn("Failed to write journal event",
				"error", err,
				"session_id", ev.SessionID,
				"kind", ev.Kind,
			)
		}
		cancel()
	}
}

// Close stops accepting events and waits for the queue to drain.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.queue)
	dropped := j.dropped.Load()
	j.mu.Unlock()

	j.wg.Wait()
	if dropped > 0 {
		j.logger.Info("Journal closed with dropped events", "dropped", dropped)
	}
	return nil
}
