// Package participant keeps the ordered roster of a single session.
//
// A Registry is not safe for concurrent use; the owning session serializes
// every call under its own lock.
package participant

import (
	"fmt"
	"time"

	"github.com/ashureev/livesync/internal/domain"
	"github.com/ashureev/livesync/internal/identity"
)

// Registry owns participant identity, role and liveness for one session.
type Registry struct {
	order []string
	byID  map[string]*domain.Participant
	now   func() time.Time
	newID func() string
}

// NewRegistry creates an empty roster.
func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{
		byID:  make(map[string]*domain.Participant),
		now:   now,
		newID: identity.NewParticipantID,
	}
}

// AddHost creates the session owner. It must be the first participant.
func (r *Registry) AddHost(name, email string) (domain.Participant, error) {
	if len(r.order) != 0 {
		return domain.Participant{}, fmt.Errorf("host must be the first participant, roster has %d", len(r.order))
	}
	return r.add(name, email, domain.RoleHost), nil
}

// Add appends a participant. The host role is reserved to AddHost.
func (r *Registry) Add(name, email string, role domain.Role) (domain.Participant, error) {
	if role == "" {
		role = domain.RoleViewer
	}
	switch role {
	case domain.RoleEditor, domain.RoleViewer:
	case domain.RoleHost:
		return domain.Participant{}, fmt.Errorf("%w: host is assigned at session creation", domain.ErrInvalidRole)
	default:
		return domain.Participant{}, fmt.Errorf("%w: %q", domain.ErrInvalidRole, role)
	}
	return r.add(name, email, role), nil
}

func (r *Registry) add(name, email string, role domain.Role) domain.Participant {
	now := r.now()
	p := &domain.Participant{
		ID:           r.newID(),
		Name:         name,
		Email:        email,
		Role:         role,
		JoinedAt:     now,
		LastActiveAt: now,
	}
	r.byID[p.ID] = p
	r.order = append(r.order, p.ID)
	return p.Clone()
}

// Get returns a copy of the participant with the given id.
func (r *Registry) Get(id string) (domain.Participant, bool) {
	p, ok := r.byID[id]
	if !ok {
		return domain.Participant{}, false
	}
	return p.Clone(), true
}

// UpdateCursor sets the participant's cursor and refreshes lastActiveAt.
func (r *Registry) UpdateCursor(id string, cursor domain.Cursor) (domain.Participant, error) {
	p, ok := r.byID[id]
	if !ok {
		return domain.Participant{}, fmt.Errorf("%w: %s", domain.ErrParticipantNotFound, id)
	}
	c := cursor
	p.Cursor = &c
	p.LastActiveAt = r.now()
	return p.Clone(), nil
}

// Touch refreshes lastActiveAt.
func (r *Registry) Touch(id string) error {
	p, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrParticipantNotFound, id)
	}
	p.LastActiveAt = r.now()
	return nil
}

// IDs returns participant ids in join order; the host is first.
func (r *Registry) IDs() []string {
	return append([]string(nil), r.order...)
}

// List returns copies of all participants in join order.
func (r *Registry) List() []domain.Participant {
	out := make([]domain.Participant, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id].Clone())
	}
	return out
}

// Len returns the number of participants.
func (r *Registry) Len() int {
	return len(r.order)
}

// Clear removes every participant. Used when the session stops.
func (r *Registry) Clear() {
	r.order = nil
	r.byID = make(map[string]*domain.Participant)
}
