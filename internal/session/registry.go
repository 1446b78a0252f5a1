// Package session owns the set of live collaboration sessions and their
// lifecycle: create, join, apply changes, stop and expire.
package session

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ashureev/livesync/internal/domain"
	"github.com/ashureev/livesync/internal/gateway"
	"github.com/ashureev/livesync/internal/housekeeping"
	"github.com/ashureev/livesync/internal/identity"
	"github.com/ashureev/livesync/internal/metrics"
	"github.com/ashureev/livesync/internal/store"
)

// Stop reasons reported to metrics and the journal.
const (
	ReasonExplicit = "explicit"
	ReasonExpired  = "expired"
	ReasonShutdown = "shutdown"
)

// FileFeed delivers "file at absPath changed to content" events.
type FileFeed interface {
	Subscribe(handler func(absPath string, content []byte)) (io.Closer, error)
}

// PathResolver maps an absolute path to a workspace-relative one.
type PathResolver interface {
	Rel(absPath string) (string, error)
}

// Options configures a Registry.
type Options struct {
	// Host is the interface gateways bind to; empty means all interfaces.
	Host string

	HostName  string
	HostEmail string
	TTL       time.Duration

	QueueSize       int
	MessageRate     float64
	MessageBurst    int
	MaxMessageBytes int64
	AllowedOrigins  []string

	Feed     FileFeed
	Resolver PathResolver
	Journal  gateway.EventRecorder
	Metrics  metrics.Recorder
	Logger   *slog.Logger
	Now      func() time.Time
}

type entry struct {
	state *state
	gw    *gateway.Gateway
	sub   io.Closer
}

// Registry owns every active session of the process.
type Registry struct {
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*entry
	ports    map[int]string
}

// NewRegistry creates an empty session registry.
func NewRegistry(opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.TTL <= 0 {
		opts.TTL = domain.DefaultSessionTTL
	}
	if opts.HostName == "" {
		opts.HostName = "Host"
	}
	return &Registry{
		opts:     opts,
		logger:   opts.Logger,
		sessions: make(map[string]*entry),
		ports:    make(map[int]string),
	}
}

// Create starts a session whose gateway listens on port. Port 0 picks a free
// port; the bound port is reported on the returned Session.
func (r *Registry) Create(name string, port int) (domain.Session, error) {
	if port < 0 || port > 65535 {
		return domain.Session{}, fmt.Errorf("invalid port %d", port)
	}

	id, err := identity.NewSessionID()
	if err != nil {
		return domain.Session{}, err
	}

	st := newState(id, name, r.opts.Now(), r.opts.TTL, r.opts.Now)
	host, err := st.addHost(r.opts.HostName, r.opts.HostEmail)
	if err != nil {
		return domain.Session{}, fmt.Errorf("create host participant: %w", err)
	}

	if port != 0 {
		r.mu.Lock()
		if owner, taken := r.ports[port]; taken {
			r.mu.Unlock()
			return domain.Session{}, fmt.Errorf("port %d held by session %s: %w", port, owner, domain.ErrPortInUse)
		}
		r.ports[port] = id
		r.mu.Unlock()
	}

	gw, err := gateway.Listen(gateway.Options{
		SessionID:       id,
		Host:            r.opts.Host,
		Port:            port,
		QueueSize:       r.opts.QueueSize,
		MessageRate:     r.opts.MessageRate,
		MessageBurst:    r.opts.MessageBurst,
		MaxMessageBytes: r.opts.MaxMessageBytes,
		AllowedOrigins:  r.opts.AllowedOrigins,
		Logger:          r.logger,
		Metrics:         r.opts.Metrics,
		Journal:         r.opts.Journal,
		Now:             r.opts.Now,
	}, st)
	if err != nil {
		r.releasePort(port, id)
		return domain.Session{}, err
	}
	st.setPort(gw.Port())

	e := &entry{state: st, gw: gw}
	if r.opts.Feed != nil {
		sub, err := r.opts.Feed.Subscribe(func(absPath string, content []byte) {
			r.applyFromFeed(e, absPath, content)
		})
		if err != nil {
			if closeErr := gw.Close(); closeErr != nil {
				r.logger.Debug("Failed to close gateway after subscribe error", "error", closeErr)
			}
			r.releasePort(port, id)
			return domain.Session{}, fmt.Errorf("subscribe to file feed: %w", err)
		}
		e.sub = sub
	}

	r.mu.Lock()
	r.sessions[id] = e
	r.ports[gw.Port()] = id
	r.mu.Unlock()

	sess := st.session()
	r.opts.Metrics.SessionStarted()
	r.record(store.EventSessionStarted, id, host.ID, name)
	r.logger.Info("Session created",
		"session_id", id,
		"name", name,
		"port", sess.Port,
		"host_participant_id", host.ID,
		"ttl", sess.Remaining(r.opts.Now()))

	return sess, nil
}

func (r *Registry) releasePort(port int, id string) {
	if port == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ports[port] == id {
		delete(r.ports, port)
	}
}

func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrSessionNotFound)
	}
	return e, nil
}

func (r *Registry) entries() []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entry, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, e)
	}
	return out
}

// Active returns sessions whose expiry is in the future, oldest first.
func (r *Registry) Active() []domain.Session {
	now := r.opts.Now()
	var out []domain.Session
	for _, e := range r.entries() {
		s := e.state.session()
		if s.IsActive(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Get returns one registered session.
func (r *Registry) Get(id string) (domain.Session, error) {
	e, err := r.lookup(id)
	if err != nil {
		return domain.Session{}, err
	}
	return e.state.session(), nil
}

// Snapshot returns the full state of one session.
func (r *Registry) Snapshot(id string) (domain.Snapshot, error) {
	e, err := r.lookup(id)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return e.state.Snapshot(), nil
}

// Join admits a participant to a session and announces it to connected clients.
func (r *Registry) Join(id, name, email string, role domain.Role) (domain.Participant, error) {
	e, err := r.lookup(id)
	if err != nil {
		return domain.Participant{}, err
	}
	p, err := e.state.Join(name, email, role)
	if err != nil {
		return domain.Participant{}, err
	}

	r.record(store.EventJoin, id, p.ID, p.Name)
	msg, err := domain.NewMessage(domain.MessageJoin, p.ID, domain.JoinData{Participant: &p}, r.opts.Now())
	if err != nil {
		r.logger.Error("Failed to encode join broadcast", "session_id", id, "error", err)
		return p, nil
	}
	e.gw.Broadcast(msg)
	return p, nil
}

// ApplyChange records new content for a session file and broadcasts the
// resulting version. Last write wins.
func (r *Registry) ApplyChange(id, path, content, modifiedBy string) (domain.FileState, error) {
	e, err := r.lookup(id)
	if err != nil {
		return domain.FileState{}, err
	}
	return r.apply(e, path, content, modifiedBy, "host")
}

func (r *Registry) apply(e *entry, path, content, modifiedBy, source string) (domain.FileState, error) {
	fs, err := e.state.ApplyChange(path, content, modifiedBy)
	if err != nil {
		return domain.FileState{}, err
	}
	r.opts.Metrics.FileChangeApplied(source)

	sessionID := e.state.session().ID
	r.record(store.EventFileChange, sessionID, modifiedBy, fmt.Sprintf("%s@v%d", fs.Path, fs.Version))

	msg, err := domain.FileChangeMessage(fs)
	if err != nil {
		r.logger.Error("Failed to encode file change", "session_id", sessionID, "error", err)
		return fs, nil
	}
	e.gw.Broadcast(msg)
	return fs, nil
}

func (r *Registry) applyFromFeed(e *entry, absPath string, content []byte) {
	rel := absPath
	if r.opts.Resolver != nil {
		var err error
		rel, err = r.opts.Resolver.Rel(absPath)
		if err != nil {
			r.logger.Debug("Ignoring change outside workspace", "path", absPath, "error", err)
			return
		}
	}
	if _, err := r.apply(e, rel, string(content), e.state.hostID(), "watcher"); err != nil {
		r.logger.Warn("Failed to apply watched change", "path", rel, "error", err)
	}
}

// Stop tears a session down. Unknown or already stopped ids return
// ErrSessionNotFound.
func (r *Registry) Stop(id string) error {
	return r.stop(id, ReasonExplicit)
}

// StopExpired stops a session on behalf of the expiry sweeper.
func (r *Registry) StopExpired(id string) error {
	return r.stop(id, ReasonExpired)
}

func (r *Registry) stop(id, reason string) error {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("stop session %s: %w", id, domain.ErrSessionNotFound)
	}
	delete(r.sessions, id)
	if port := e.gw.Port(); r.ports[port] == id {
		delete(r.ports, port)
	}
	r.mu.Unlock()

	// Only the caller that removed the entry reaches this point.
	err := housekeeping.Release(r.logger, id,
		housekeeping.Resource{Name: "file watch", Closer: e.sub},
		housekeeping.Resource{Name: "gateway", Closer: e.gw},
		housekeeping.Func("participants", func() error {
			e.state.clear()
			return nil
		}),
	)

	r.opts.Metrics.SessionStopped(reason)
	r.record(store.EventSessionStopped, id, "", reason)
	r.logger.Info("Session stopped", "session_id", id, "reason", reason)

	if err != nil {
		r.logger.Warn("Session stopped with release errors", "session_id", id, "error", err)
	}
	return nil
}

// ExpiredSessions returns ids of registered sessions whose expiry is at or before now.
func (r *Registry) ExpiredSessions(now time.Time) []string {
	var ids []string
	for _, e := range r.entries() {
		if !now.Before(e.state.expiresAt()) {
			ids = append(ids, e.state.session().ID)
		}
	}
	sort.Strings(ids)
	return ids
}

// Close stops every session.
func (r *Registry) Close() error {
	for _, e := range r.entries() {
		id := e.state.session().ID
		if err := r.stop(id, ReasonShutdown); err != nil {
			r.logger.Debug("Session already stopped during shutdown", "session_id", id)
		}
	}
	return nil
}

func (r *Registry) record(kind, sessionID, participantID, detail string) {
	if r.opts.Journal == nil {
		return
	}
	r.opts.Journal.Record(store.Event{
		SessionID:     sessionID,
		Kind:          kind,
		ParticipantID: participantID,
		Detail:        detail,
		CreatedAt:     r.opts.Now(),
	})
}
