package gateway

import (
	"errors"
	"testing"

	"github.com/ashureev/livesync/internal/domain"
)

func TestValidator_Decode(t *testing.T) {
	t.Parallel()

	v, err := loadValidator()
	if err != nil {
		t.Fatalf("loadValidator failed: %v", err)
	}

	tests := []struct {
		name       string
		raw        string
		wantType   domain.MessageType
		wantReason string
	}{
		{"sync without data", `{"type":"sync"}`, domain.MessageSync, ""},
		{"join by id", `{"type":"join","participantId":"p1"}`, domain.MessageJoin, ""},
		{"join by name", `{"type":"join","data":{"name":"Alice","role":"editor"}}`, domain.MessageJoin, ""},
		{"chat", `{"type":"chat","data":{"text":"hi"},"timestamp":"2026-01-01T00:00:00Z"}`, domain.MessageChat, ""},
		{"cursor", `{"type":"cursor_update","participantId":"p1","data":{"cursor":{"line":1,"character":2,"file":"a.html"}}}`, domain.MessageCursorUpdate, ""},
		{"file change", `{"type":"file_change","data":{"filePath":"a.html","content":"x","modifiedBy":"Alice"}}`, domain.MessageFileChange, ""},
		{"not json", `hello`, "", "invalid_json"},
		{"array", `[1,2]`, "", "invalid_envelope"},
		{"unknown type", `{"type":"dance"}`, "", "invalid_envelope"},
		{"missing type", `{"data":{}}`, "", "invalid_envelope"},
		{"bad timestamp", `{"type":"sync","timestamp":"yesterday"}`, "", "invalid_envelope"},
		{"chat without data", `{"type":"chat"}`, "", "missing_data"},
		{"chat null data", `{"type":"chat","data":null}`, "", "missing_data"},
		{"chat text not string", `{"type":"chat","data":{"text":5}}`, "", "invalid_data"},
		{"cursor negative line", `{"type":"cursor_update","data":{"cursor":{"line":-1,"character":0}}}`, "", "invalid_data"},
		{"cursor missing", `{"type":"cursor_update","data":{}}`, "", "invalid_data"},
		{"file change empty path", `{"type":"file_change","data":{"filePath":"","content":"x"}}`, "", "invalid_data"},
		{"file change no content", `{"type":"file_change","data":{"filePath":"a.html"}}`, "", "invalid_data"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := v.decode([]byte(tc.raw))
			if tc.wantReason != "" {
				var perr *domain.ProtocolError
				if !errors.As(err, &perr) {
					t.Fatalf("expected ProtocolError, got %v", err)
				}
				if perr.Reason != tc.wantReason {
					t.Errorf("reason = %q, want %q (%v)", perr.Reason, tc.wantReason, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msg.Type != tc.wantType {
				t.Errorf("type = %q, want %q", msg.Type, tc.wantType)
			}
		})
	}
}
