// Package api provides the HTTP control API for livesync sessions.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ashureev/livesync/internal/domain"
	"github.com/ashureev/livesync/internal/store"
)

// Sessions is the session registry surface the API drives.
type Sessions interface {
	Create(name string, port int) (domain.Session, error)
	Active() []domain.Session
	Snapshot(id string) (domain.Snapshot, error)
	Stop(id string) error
	Join(id, name, email string, role domain.Role) (domain.Participant, error)
	ApplyChange(id, path, content, modifiedBy string) (domain.FileState, error)
}

// EventSource lists journal events for a session.
type EventSource interface {
	Events(ctx context.Context, sessionID string, limit int) ([]store.Event, error)
}

// Handler provides common handler utilities.
type Handler struct {
	sessions Sessions
	events   EventSource
}

// NewHandler creates a new Handler. events may be nil when the journal is disabled.
func NewHandler(sessions Sessions, events EventSource) *Handler {
	return &Handler{
		sessions: sessions,
		events:   events,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrParticipantNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidRole):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPortInUse):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 8<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
