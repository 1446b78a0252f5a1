// Package gateway terminates the WebSocket connections of one collaboration
// session and dispatches the session message protocol.
package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/ashureev/livesync/internal/domain"
	"github.com/ashureev/livesync/internal/identity"
	"github.com/ashureev/livesync/internal/metrics"
	"github.com/ashureev/livesync/internal/store"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

const defaultMaxMessageBytes = 4 << 20

// Engine is the serialized state of one session as seen by its gateway.
// Every method is atomic with respect to the session.
type Engine interface {
	Snapshot() domain.Snapshot
	Lookup(participantID string) (domain.Participant, bool)
	Join(name, email string, role domain.Role) (domain.Participant, error)
	MoveCursor(participantID string, cursor domain.Cursor) (domain.Participant, error)
	Touch(participantID string) error
	ApplyChange(path, content, modifiedBy string) (domain.FileState, error)
}

// EventRecorder receives diagnostic journal events.
type EventRecorder interface {
	Record(ev store.Event)
}

// Options configures a Gateway.
type Options struct {
	SessionID       string
	Host            string
	Port            int
	QueueSize       int
	MessageRate     float64 // messages per second per connection, 0 disables
	MessageBurst    int
	MaxMessageBytes int64
	AllowedOrigins  []string
	Logger          *slog.Logger
	Metrics         metrics.Recorder
	Journal         EventRecorder
	Now             func() time.Time
}

// Gateway is the per-session message broker.
type Gateway struct {
	opts      Options
	engine    Engine
	hub       *hub
	validator *validator
	logger    *slog.Logger
	metrics   metrics.Recorder
	now       func() time.Time

	listener net.Listener
	srv      *http.Server
	port     int

	closeOnce sync.Once
	served    chan struct{}
}

// Listen binds the gateway port and starts serving in the background.
// The listener is bound before Listen returns, so port conflicts surface here.
func Listen(opts Options, engine Engine) (*Gateway, error) {
	v, err := loadValidator()
	if err != nil {
		return nil, err
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = defaultMaxMessageBytes
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("listen on %s: %w", addr, domain.ErrPortInUse)
		}
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	logger := opts.Logger.With("session_id", opts.SessionID)
	g := &Gateway{
		opts:      opts,
		engine:    engine,
		hub:       newHub(logger, opts.Metrics),
		validator: v,
		logger:    logger,
		metrics:   opts.Metrics,
		now:       opts.Now,
		listener:  ln,
		port:      ln.Addr().(*net.TCPAddr).Port,
		served:    make(chan struct{}),
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(identity.Middleware)
	r.Get("/join/{sessionID}", g.ServeHTTP)

	// No read/write timeouts: connections are long-lived WebSockets.
	g.srv = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		defer close(g.served)
		logger.Info("Gateway listening", "addr", ln.Addr().String())
		if err := g.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Gateway server failed", "error", err)
		}
	}()

	return g, nil
}

// Port returns the bound TCP port.
func (g *Gateway) Port() int {
	return g.port
}

// Addr returns the bound listener address.
func (g *Gateway) Addr() string {
	return g.listener.Addr().String()
}

// Connections returns the number of registered connections.
func (g *Gateway) Connections() int {
	return g.hub.len()
}

// Broadcast sends msg to every open connection of the session and returns
// the number of delivery attempts.
func (g *Gateway) Broadcast(msg domain.Message) int {
	data, err := json.Marshal(msg)
	if err != nil {
		g.logger.Error("Failed to encode broadcast", "type", msg.Type, "error", err)
		return 0
	}
	attempted, failed := g.hub.broadcast(data)
	if failed > 0 {
		g.logger.Debug("Broadcast finished with failures", "type", msg.Type, "attempted", attempted, "failed", failed)
	}
	return attempted
}

// Close closes every connection and stops the listener. Safe to call more than once.
func (g *Gateway) Close() error {
	var err error
	g.closeOnce.Do(func() {
		n := g.hub.closeAll(websocket.StatusGoingAway, "session stopped")
		err = g.srv.Close()
		<-g.served
		g.logger.Info("Gateway closed", "connections_closed", n)
	})
	return err
}

func (g *Gateway) stamp(t domain.MessageType, participantID string, data any) (domain.Message, error) {
	return domain.NewMessage(t, participantID, data, g.now())
}

func (g *Gateway) record(kind, participantID, detail string) {
	if g.opts.Journal == nil {
		return
	}
	g.opts.Journal.Record(store.Event{
		SessionID:     g.opts.SessionID,
		Kind:          kind,
		ParticipantID: participantID,
		Detail:        detail,
		CreatedAt:     g.now(),
	})
}

func (g *Gateway) newLimiter() *rate.Limiter {
	if g.opts.MessageRate <= 0 {
		return nil
	}
	burst := g.opts.MessageBurst
	if burst <= 0 {
		burst = int(g.opts.MessageRate)
		if burst < 1 {
			burst = 1
		}
	}
	return rate.NewLimiter(rate.Limit(g.opts.MessageRate), burst)
}
