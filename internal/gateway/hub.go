package gateway

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/ashureev/livesync/internal/domain"
	"github.com/ashureev/livesync/internal/metrics"
	"github.com/coder/websocket"
)

// peer is one receiving end of a session broadcast.
type peer interface {
	deliver(data []byte) error
	closed() bool
	close(code websocket.StatusCode, reason string)
	label() string
}

// hub tracks the open connections of one session.
type hub struct {
	mu      sync.RWMutex
	peers   map[peer]struct{}
	stopped bool

	logger  *slog.Logger
	metrics metrics.Recorder
}

func newHub(logger *slog.Logger, rec metrics.Recorder) *hub {
	return &hub{
		peers:   make(map[peer]struct{}),
		logger:  logger,
		metrics: rec,
	}
}

// add registers a peer. It returns false once the hub has been stopped.
func (h *hub) add(p peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return false
	}
	h.peers[p] = struct{}{}
	return true
}

func (h *hub) remove(p peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.peers, p)
}

func (h *hub) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// broadcast makes one delivery attempt per open peer. Closed peers are
// skipped; a failed delivery is logged and never stops the fan-out.
func (h *hub) broadcast(data []byte) (attempted, failed int) {
	h.mu.RLock()
	targets := make([]peer, 0, len(h.peers))
	for p := range h.peers {
		targets = append(targets, p)
	}
	h.mu.RUnlock()

	for _, p := range targets {
		if p.closed() {
			continue
		}
		attempted++
		h.metrics.DeliveryAttempted()

		if err := p.deliver(data); err != nil {
			failed++
			reason := "error"
			switch {
			case errors.Is(err, domain.ErrConnClosed):
				reason = "closed"
				h.logger.Debug("Skipped delivery to closed connection", "peer", p.label())
			case errors.Is(err, domain.ErrQueueFull):
				reason = "queue_full"
				h.logger.Warn("Dropped message for slow connection", "peer", p.label())
			default:
				h.logger.Warn("Delivery failed", "peer", p.label(), "error", err)
			}
			h.metrics.DeliveryFailed(reason)
		}
	}
	return attempted, failed
}

// closeAll stops the hub and closes every peer.
func (h *hub) closeAll(code websocket.StatusCode, reason string) int {
	h.mu.Lock()
	h.stopped = true
	peers := h.peers
	h.peers = make(map[peer]struct{})
	h.mu.Unlock()

	for p := range peers {
		p.close(code, reason)
	}
	return len(peers)
}
