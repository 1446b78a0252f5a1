package housekeeping

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ashureev/livesync/internal/domain"
)

func TestRelease_ClosesInOrderAndJoinsErrors(t *testing.T) {
	var order []string
	step := func(name string, err error) Resource {
		return Func(name, func() error {
			order = append(order, name)
			return err
		})
	}
	boom := errors.New("boom")

	err := Release(nil, "sess_x",
		step("watch", nil),
		Resource{Name: "missing"},
		step("gateway", boom),
		step("participants", nil),
	)

	if fmt.Sprint(order) != "[watch gateway participants]" {
		t.Errorf("order = %v", order)
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected joined error to wrap boom, got %v", err)
	}
}

func TestRelease_NoResources(t *testing.T) {
	if err := Release(nil, "sess_x"); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

type fakeReaper struct {
	expired []string
	errs    map[string]error
	stopped []string
	asked   time.Time
}

func (r *fakeReaper) ExpiredSessions(now time.Time) []string {
	r.asked = now
	return r.expired
}

func (r *fakeReaper) StopExpired(id string) error {
	if err := r.errs[id]; err != nil {
		return err
	}
	r.stopped = append(r.stopped, id)
	return nil
}

type fakePruner struct {
	cutoff time.Time
	calls  int
}

func (p *fakePruner) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	p.calls++
	p.cutoff = cutoff
	return 2, nil
}

func TestSweep_StopsExpiredAndToleratesRaces(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	reaper := &fakeReaper{
		expired: []string{"a", "b", "c"},
		errs: map[string]error{
			"b": fmt.Errorf("stop session b: %w", domain.ErrSessionNotFound),
			"c": errors.New("release failed"),
		},
	}
	pruner := &fakePruner{}

	n := Sweep(context.Background(), reaper, SweepConfig{
		Now:              func() time.Time { return now },
		Journal:          pruner,
		JournalRetention: 24 * time.Hour,
	})

	if n != 1 {
		t.Errorf("stopped = %d, want 1", n)
	}
	if len(reaper.stopped) != 1 || reaper.stopped[0] != "a" {
		t.Errorf("stopped ids = %v", reaper.stopped)
	}
	if !reaper.asked.Equal(now) {
		t.Errorf("ExpiredSessions asked at %v", reaper.asked)
	}
	if pruner.calls != 1 || !pruner.cutoff.Equal(now.Add(-24*time.Hour)) {
		t.Errorf("pruner calls=%d cutoff=%v", pruner.calls, pruner.cutoff)
	}
}

func TestSweep_SkipsPruneWithoutRetention(t *testing.T) {
	pruner := &fakePruner{}
	Sweep(context.Background(), &fakeReaper{}, SweepConfig{Journal: pruner})
	if pruner.calls != 0 {
		t.Errorf("pruner called %d times without retention", pruner.calls)
	}
}

func TestStartSweeper_RunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	reaper := &signalReaper{hit: done}
	StartSweeper(ctx, reaper, SweepConfig{Interval: 10 * time.Millisecond})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper never ran")
	}
}

type signalReaper struct {
	hit  chan struct{}
	seen bool
}

func (r *signalReaper) ExpiredSessions(time.Time) []string {
	if !r.seen {
		r.seen = true
		close(r.hit)
	}
	return nil
}

func (r *signalReaper) StopExpired(string) error { return nil }
