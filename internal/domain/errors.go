package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned for operations on an unknown or stopped session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrParticipantNotFound is returned when a participant id is not in the session roster.
	ErrParticipantNotFound = errors.New("participant not found")

	// ErrInvalidRole is returned when a role is not host, editor or viewer.
	ErrInvalidRole = errors.New("invalid role")

	// ErrPortInUse is returned when another live session already holds the port.
	ErrPortInUse = errors.New("port already bound")

	// ErrConnClosed is returned when delivering to a connection that has closed.
	ErrConnClosed = errors.New("connection closed")

	// ErrQueueFull is returned when a connection's outbound queue cannot take more messages.
	ErrQueueFull = errors.New("outbound queue full")
)

// ProtocolError describes an inbound message that could not be applied.
// The connection that sent it stays open.
type ProtocolError struct {
	Type   MessageType
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	msg := "protocol error"
	if e.Type != "" {
		msg += " (" + string(e.Type) + ")"
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// NewProtocolError builds a ProtocolError for the given message type.
func NewProtocolError(t MessageType, reason string, err error) *ProtocolError {
	return &ProtocolError{Type: t, Reason: reason, Err: err}
}
