package session

import (
	"sync"
	"time"

	"github.com/ashureev/livesync/internal/domain"
	"github.com/ashureev/livesync/internal/filesync"
	"github.com/ashureev/livesync/internal/participant"
)

// state is the single-writer core of one session. Its mutex is the
// serialization point for the roster and the file map, so every snapshot
// reflects exactly one point in the session's history.
type state struct {
	mu     sync.Mutex
	meta   domain.Session
	roster *participant.Registry
	files  *filesync.Store
}

func newState(id, name string, createdAt time.Time, ttl time.Duration, now func() time.Time) *state {
	return &state{
		meta: domain.Session{
			ID:        id,
			Name:      name,
			CreatedAt: createdAt,
			ExpiresAt: createdAt.Add(ttl),
		},
		roster: participant.NewRegistry(now),
		files:  filesync.NewStore(now),
	}
}

func (s *state) addHost(name, email string) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	host, err := s.roster.AddHost(name, email)
	if err != nil {
		return domain.Participant{}, err
	}
	s.meta.HostParticipantID = host.ID
	return host, nil
}

func (s *state) setPort(port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta.Port = port
}

func (s *state) hostID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta.HostParticipantID
}

func (s *state) expiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta.ExpiresAt
}

func (s *state) session() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionLocked()
}

func (s *state) sessionLocked() domain.Session {
	out := s.meta.Clone()
	out.ParticipantIDs = s.roster.IDs()
	return out
}

// Snapshot returns the session, its participants and its files as of now.
func (s *state) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Snapshot{
		Session:      s.sessionLocked(),
		Participants: s.roster.List(),
		Files:        s.files.Snapshot(),
	}
}

// Lookup returns the participant with the given id.
func (s *state) Lookup(participantID string) (domain.Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster.Get(participantID)
}

// Join admits a new participant.
func (s *state) Join(name, email string, role domain.Role) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster.Add(name, email, role)
}

// MoveCursor records a participant's cursor position.
func (s *state) MoveCursor(participantID string, cursor domain.Cursor) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster.UpdateCursor(participantID, cursor)
}

// Touch refreshes a participant's lastActiveAt.
func (s *state) Touch(participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster.Touch(participantID)
}

// ApplyChange records new file content with last-write-wins semantics.
func (s *state) ApplyChange(path, content, modifiedBy string) (domain.FileState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files.ApplyChange(path, content, modifiedBy)
}

// clear drops every participant once the session is stopped.
func (s *state) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roster.Clear()
}
