// Package domain contains core domain types for the livesync collaboration server.
package domain

import (
	"time"
)

// DefaultSessionTTL is how long a session stays active after creation.
const DefaultSessionTTL = 24 * time.Hour

// Session is a bounded collaboration context with one host.
type Session struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	HostParticipantID string    `json:"hostParticipantId"`
	ParticipantIDs    []string  `json:"participantIds"`
	Port              int       `json:"port"`
	CreatedAt         time.Time `json:"createdAt"`
	ExpiresAt         time.Time `json:"expiresAt"`
}

// IsActive reports whether the session has not yet reached its expiry.
func (s *Session) IsActive(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// Remaining returns the time until the session expires.
// Returns 0 if the session has already expired.
func (s *Session) Remaining(now time.Time) time.Duration {
	ttl := s.ExpiresAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// Clone returns a copy that shares no slices with s.
func (s Session) Clone() Session {
	s.ParticipantIDs = append([]string(nil), s.ParticipantIDs...)
	return s
}

// Snapshot is the full state of a session as sent in a sync reply.
type Snapshot struct {
	Session      Session              `json:"session"`
	Participants []Participant        `json:"participants"`
	Files        map[string]FileState `json:"files"`
}
