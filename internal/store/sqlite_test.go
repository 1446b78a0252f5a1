package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "journal", "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_AppendAndList(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	for i, kind := range []string{EventSessionStarted, EventJoin, EventChat} {
		if err := s.AppendEvent(ctx, Event{
			SessionID:     "sess_a",
			Kind:          kind,
			ParticipantID: "p1",
			Detail:        kind + "-detail",
			CreatedAt:     base.Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
	}
	if err := s.AppendEvent(ctx, Event{SessionID: "sess_b", Kind: EventChat}); err != nil {
		t.Fatalf("AppendEvent failed: %v", err)
	}

	events, err := s.ListEvents(ctx, "sess_a", 0)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].Kind != EventSessionStarted || events[2].Kind != EventChat {
		t.Errorf("events not in insertion order: %+v", events)
	}
	if !events[1].CreatedAt.Equal(base.Add(time.Second)) {
		t.Errorf("createdAt = %v, want %v", events[1].CreatedAt, base.Add(time.Second))
	}

	limited, err := s.ListEvents(ctx, "sess_a", 2)
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(limited) != 2 || limited[0].Kind != EventJoin {
		t.Errorf("expected the two most recent events oldest first, got %+v", limited)
	}
}

func TestSQLiteStore_DeleteEventsBefore(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	_ = s.AppendEvent(ctx, Event{SessionID: "sess_a", Kind: EventChat, CreatedAt: old})
	_ = s.AppendEvent(ctx, Event{SessionID: "sess_a", Kind: EventChat, CreatedAt: time.Now()})

	deleted, err := s.DeleteEventsBefore(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteEventsBefore failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
}

func TestIsConflictError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("SQLITE_BUSY: database busy"), true},
		{errors.New("database is locked"), true},
		{errors.New("no such table"), false},
	}
	for _, tc := range tests {
		if got := isConflictError(tc.err); got != tc.want {
			t.Errorf("isConflictError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

type memoryRepo struct {
	mu     sync.Mutex
	events []Event
	block  chan struct{}
}

func (m *memoryRepo) AppendEvent(_ context.Context, ev Event) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memoryRepo) ListEvents(_ context.Context, sessionID string, _ int) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, ev := range m.events {
		if ev.SessionID == sessionID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *memoryRepo) DeleteEventsBefore(context.Context, time.Time) (int64, error) { return 0, nil }
func (m *memoryRepo) Ping(context.Context) error                                   { return nil }
func (m *memoryRepo) Close() error                                                 { return nil }

func TestJournal_DrainsOnClose(t *testing.T) {
	t.Parallel()

	repo := &memoryRepo{}
	j := NewJournal(repo, 16, nil)
	for i := 0; i < 10; i++ {
		j.Record(Event{SessionID: "sess_a", Kind: EventChat})
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	events, _ := repo.ListEvents(context.Background(), "sess_a", 0)
	if len(events) != 10 {
		t.Errorf("expected 10 written events, got %d", len(events))
	}

	// Record after Close is a no-op.
	j.Record(Event{SessionID: "sess_a", Kind: EventChat})
	_ = j.Close()
}

func TestJournal_RecordDoesNotBlockWhenFull(t *testing.T) {
	t.Parallel()

	repo := &memoryRepo{block: make(chan struct{})}
	j := NewJournal(repo, 1, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			j.Record(Event{SessionID: "sess_a", Kind: EventChat})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a full queue")
	}

	if j.dropped.Load() == 0 {
		t.Error("expected dropped events with a stalled writer")
	}

	close(repo.block)
	_ = j.Close()
}

func TestJournal_NilIsSafe(t *testing.T) {
	var j *Journal
	j.Record(Event{SessionID: "sess_a"})
}
