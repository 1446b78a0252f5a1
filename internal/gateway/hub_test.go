package gateway

import (
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/ashureev/livesync/internal/domain"
	"github.com/ashureev/livesync/internal/metrics"
	"github.com/coder/websocket"
	"golang.org/x/time/rate"
)

type fakePeer struct {
	name     string
	isClosed bool
	fail     error

	mu       sync.Mutex
	attempts int
	received [][]byte
}

func (p *fakePeer) deliver(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	if p.fail != nil {
		return p.fail
	}
	p.received = append(p.received, data)
	return nil
}

func (p *fakePeer) closed() bool { return p.isClosed }

func (p *fakePeer) close(websocket.StatusCode, string) { p.isClosed = true }

func (p *fakePeer) label() string { return p.name }

func TestHub_BroadcastSkipsClosedPeers(t *testing.T) {
	t.Parallel()

	h := newHub(slog.Default(), metrics.Nop{})
	open := []*fakePeer{{name: "a"}, {name: "b"}, {name: "c"}}
	closed := []*fakePeer{{name: "x", isClosed: true}, {name: "y", isClosed: true}}
	for _, p := range open {
		h.add(p)
	}
	for _, p := range closed {
		h.add(p)
	}

	attempted, failed := h.broadcast([]byte(`{"type":"chat"}`))
	if attempted != 3 || failed != 0 {
		t.Fatalf("attempted=%d failed=%d, want 3 and 0", attempted, failed)
	}
	for _, p := range open {
		if p.attempts != 1 {
			t.Errorf("peer %s attempts = %d, want 1", p.name, p.attempts)
		}
	}
	for _, p := range closed {
		if p.attempts != 0 {
			t.Errorf("closed peer %s received %d attempts", p.name, p.attempts)
		}
	}
}

func TestHub_FailuresDoNotSuppressDelivery(t *testing.T) {
	t.Parallel()

	h := newHub(slog.Default(), metrics.Nop{})
	failing := []*fakePeer{
		{name: "full", fail: domain.ErrQueueFull},
		{name: "gone", fail: domain.ErrConnClosed},
		{name: "broken", fail: errors.New("boom")},
	}
	healthy := &fakePeer{name: "ok"}
	for _, p := range failing {
		h.add(p)
	}
	h.add(healthy)

	attempted, failed := h.broadcast([]byte("payload"))
	if attempted != 4 {
		t.Errorf("attempted = %d, want 4", attempted)
	}
	if failed != 3 {
		t.Errorf("failed = %d, want 3", failed)
	}
	if len(healthy.received) != 1 || string(healthy.received[0]) != "payload" {
		t.Errorf("healthy peer received %q", healthy.received)
	}
}

func TestHub_CloseAllStopsRegistration(t *testing.T) {
	t.Parallel()

	h := newHub(slog.Default(), metrics.Nop{})
	a, b := &fakePeer{name: "a"}, &fakePeer{name: "b"}
	h.add(a)
	h.add(b)

	if n := h.closeAll(websocket.StatusGoingAway, "stop"); n != 2 {
		t.Errorf("closeAll closed %d peers, want 2", n)
	}
	if !a.isClosed || !b.isClosed {
		t.Error("expected every peer to be closed")
	}
	if h.add(&fakePeer{name: "late"}) {
		t.Error("add must fail after closeAll")
	}
	if h.len() != 0 {
		t.Errorf("len = %d, want 0", h.len())
	}
}

func TestClient_DeliverIsNonBlocking(t *testing.T) {
	t.Parallel()

	c := newClient(nil, 1, nil, "127.0.0.1")
	if err := c.deliver([]byte("one")); err != nil {
		t.Fatalf("first deliver failed: %v", err)
	}
	if err := c.deliver([]byte("two")); !errors.Is(err, domain.ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}

	c.close(websocket.StatusNormalClosure, "done")
	if !c.closed() {
		t.Error("expected client to report closed")
	}
	if c.currentState() != stateClosed {
		t.Errorf("state = %s, want closed", c.currentState())
	}
	if err := c.deliver([]byte("three")); !errors.Is(err, domain.ErrConnClosed) {
		t.Errorf("expected ErrConnClosed, got %v", err)
	}
}

func TestClient_StateTransitions(t *testing.T) {
	t.Parallel()

	c := newClient(nil, 4, nil, "127.0.0.1")
	if c.currentState() != stateConnected {
		t.Fatalf("initial state = %s", c.currentState())
	}
	c.markSynced()
	if c.currentState() != stateSynced {
		t.Errorf("state = %s, want synced", c.currentState())
	}
	c.close(websocket.StatusNormalClosure, "")
	c.markSynced()
	if c.currentState() != stateClosed {
		t.Errorf("closed connection must not return to synced, got %s", c.currentState())
	}
}

func TestClient_RateGuard(t *testing.T) {
	t.Parallel()

	c := newClient(nil, 4, rate.NewLimiter(rate.Limit(0.001), 2), "127.0.0.1")
	if !c.allow() || !c.allow() {
		t.Fatal("burst of two should be allowed")
	}
	if c.allow() {
		t.Error("third message should be throttled")
	}

	unlimited := newClient(nil, 4, nil, "127.0.0.1")
	for i := 0; i < 100; i++ {
		if !unlimited.allow() {
			t.Fatal("client without limiter must never throttle")
		}
	}
}
