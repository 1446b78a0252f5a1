// Package store provides the diagnostic session journal.
//
// The journal is write-mostly: it records lifecycle, chat and file events for
// inspection. Session state is never restored from it.
package store

import (
	"context"
	"time"
)

// Event kinds written to the journal.
const (
	EventSessionStarted = "session_started"
	EventSessionStopped = "session_stopped"
	EventJoin           = "join"
	EventLeave          = "leave"
	EventChat           = "chat"
	EventFileChange     = "file_change"
)

// Event is one journal entry.
type Event struct {
	ID            int64     `json:"id"`
	SessionID     string    `json:"sessionId"`
	Kind          string    `json:"kind"`
	ParticipantID string    `json:"participantId,omitempty"`
	Detail        string    `json:"detail,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Repository defines the interface for persisting journal events.
type Repository interface {
	// AppendEvent stores a single event.
	AppendEvent(ctx context.Context, ev Event) error

	// ListEvents returns the most recent events for a session, oldest first.
	ListEvents(ctx context.Context, sessionID string, limit int) ([]Event, error)

	// DeleteEventsBefore removes events older than the cutoff.
	DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
