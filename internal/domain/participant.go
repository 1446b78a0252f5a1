package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role is a participant's role within a session.
type Role string

const (
	RoleHost   Role = "host"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// ParseRole validates a role name. An empty name yields RoleViewer.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return RoleViewer, nil
	case RoleHost:
		return RoleHost, nil
	case RoleEditor:
		return RoleEditor, nil
	case RoleViewer:
		return RoleViewer, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// Cursor is a caret position inside a session file.
// The JSON names follow the wire protocol.
type Cursor struct {
	Line     int    `json:"line"`
	Column   int    `json:"character"`
	FilePath string `json:"file"`
}

// Participant represents an identified actor in a session.
type Participant struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	Role         Role      `json:"role"`
	JoinedAt     time.Time `json:"joinedAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	Cursor       *Cursor   `json:"cursor,omitempty"`
}

// IsHost returns true if the participant owns the session.
func (p *Participant) IsHost() bool {
	return p.Role == RoleHost
}

// Clone returns a deep copy of the participant.
func (p Participant) Clone() Participant {
	if p.Cursor != nil {
		c := *p.Cursor
		p.Cursor = &c
	}
	return p
}
