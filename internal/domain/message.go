package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies a wire message.
type MessageType string

const (
	MessageJoin         MessageType = "join"
	MessageLeave        MessageType = "leave"
	MessageCursorUpdate MessageType = "cursor_update"
	MessageFileChange   MessageType = "file_change"
	MessageChat         MessageType = "chat"
	MessageSync         MessageType = "sync"
)

// Valid reports whether t is one of the protocol message types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageJoin, MessageLeave, MessageCursorUpdate, MessageFileChange, MessageChat, MessageSync:
		return true
	}
	return false
}

// Message is the wire envelope exchanged over a session connection.
type Message struct {
	Type          MessageType     `json:"type"`
	ParticipantID string          `json:"participantId,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Decode unmarshals the message payload into v.
func (m *Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("empty %s payload", m.Type)
	}
	return json.Unmarshal(m.Data, v)
}

// JoinData is the payload of a join message.
// Inbound it may carry admission details; outbound it carries the new participant.
type JoinData struct {
	Name        string       `json:"name,omitempty"`
	Email       string       `json:"email,omitempty"`
	Role        string       `json:"role,omitempty"`
	Participant *Participant `json:"participant,omitempty"`
}

// LeaveData is the payload of a leave broadcast.
type LeaveData struct {
	ParticipantID string `json:"participantId"`
}

// CursorData is the payload of a cursor_update message.
type CursorData struct {
	Cursor Cursor `json:"cursor"`
}

// FileChangeData is the payload of a file_change message.
type FileChangeData struct {
	FilePath   string `json:"filePath"`
	Content    string `json:"content"`
	ModifiedBy string `json:"modifiedBy"`
	Version    int64  `json:"version,omitempty"`
}

// ChatData is the payload of a chat message.
type ChatData struct {
	Text string `json:"text"`
}

// NewMessage builds an outbound message stamped with now.
func NewMessage(t MessageType, participantID string, data any, now time.Time) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return Message{
		Type:          t,
		ParticipantID: participantID,
		Data:          raw,
		Timestamp:     now.UTC(),
	}, nil
}

// FileChangeMessage builds the file_change broadcast for an applied change.
func FileChangeMessage(fs FileState) (Message, error) {
	return NewMessage(MessageFileChange, "", FileChangeData{
		FilePath:   fs.Path,
		Content:    fs.Content,
		ModifiedBy: fs.ModifiedBy,
		Version:    fs.Version,
	}, fs.LastModifiedAt)
}

// SyncMessage builds the point-to-point sync reply.
func SyncMessage(participantID string, snap Snapshot, now time.Time) (Message, error) {
	return NewMessage(MessageSync, participantID, snap, now)
}
