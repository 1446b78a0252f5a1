package gateway

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ashureev/livesync/internal/domain"
	"github.com/coder/websocket"
	"golang.org/x/time/rate"
)

// connState tracks a connection through Connected -> Synced -> Closed.
type connState int

const (
	stateConnected connState = iota
	stateSynced
	stateClosed
)

func (s connState) String() string {
	switch s {
	case stateConnected:
		return "connected"
	case stateSynced:
		return "synced"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

// client is one WebSocket connection on a session gateway.
// Outbound messages go through a bounded queue drained by writeLoop, so a
// slow reader only ever stalls its own queue.
type client struct {
	ws       *websocket.Conn
	send     chan []byte
	done     chan struct{}
	limiter  *rate.Limiter
	remoteIP string

	closeOnce sync.Once

	mu            sync.Mutex
	state         connState
	participantID string
}

func newClient(ws *websocket.Conn, queueSize int, limiter *rate.Limiter, remoteIP string) *client {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &client{
		ws:       ws,
		send:     make(chan []byte, queueSize),
		done:     make(chan struct{}),
		limiter:  limiter,
		remoteIP: remoteIP,
		state:    stateConnected,
	}
}

// deliver enqueues data without blocking.
func (c *client) deliver(data []byte) error {
	select {
	case <-c.done:
		return domain.ErrConnClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return domain.ErrConnClosed
	default:
		return domain.ErrQueueFull
	}
}

func (c *client) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *client) label() string {
	if pid := c.participant(); pid != "" {
		return pid
	}
	return c.remoteIP
}

// close marks the client closed and starts the WebSocket close handshake in
// the background so callers never wait on a slow peer.
func (c *client) close(code websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = stateClosed
		c.mu.Unlock()
		close(c.done)

		if c.ws == nil {
			return
		}
		go func() {
			if err := c.ws.Close(code, reason); err != nil {
				slog.Debug("Failed to close websocket", "error", err, "remote_ip", c.remoteIP)
			}
		}()
	})
}

func (c *client) writeLoop(ctx context.Context) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case data := <-c.send:
			if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
				slog.Debug("WebSocket write error", "error", err, "remote_ip", c.remoteIP)
				c.close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

func (c *client) bind(participantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.participantID = participantID
}

func (c *client) unbind() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.participantID = ""
}

func (c *client) participant() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.participantID
}

func (c *client) markSynced() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateConnected {
		c.state = stateSynced
	}
}

func (c *client) currentState() connState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *client) allow() bool {
	return c.limiter == nil || c.limiter.Allow()
}
