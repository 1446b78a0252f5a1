package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewSessionID(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := NewSessionID()
		if err != nil {
			t.Fatalf("NewSessionID failed: %v", err)
		}
		if !IsValidSessionID(id) {
			t.Fatalf("generated id %q does not validate", id)
		}
		if seen[id] {
			t.Fatalf("duplicate session id %q", id)
		}
		seen[id] = true
	}
}

func TestIsValidSessionID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"generated shape", "sess_0123456789abcdef0123456789abcdef", true},
		{"missing prefix", "0123456789abcdef0123456789abcdef", false},
		{"upper hex", "sess_0123456789ABCDEF0123456789ABCDEF", false},
		{"too short", "sess_abc", false},
		{"empty", "", false},
		{"path traversal", "sess_../../etc/passwd", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsValidSessionID(tc.id); got != tc.want {
				t.Errorf("IsValidSessionID(%q) = %v, want %v", tc.id, got, tc.want)
			}
		})
	}
}

func TestNewParticipantID(t *testing.T) {
	t.Parallel()

	a, b := NewParticipantID(), NewParticipantID()
	if a == b {
		t.Fatalf("expected distinct participant ids, got %q twice", a)
	}
	if !IsValidParticipantID(a) {
		t.Errorf("expected %q to be a valid participant id", a)
	}
	if IsValidParticipantID("Alice") {
		t.Error("expected a plain name to be rejected")
	}
}

func TestSessionIDContext(t *testing.T) {
	t.Parallel()

	ctx := WithSessionID(context.Background(), "sess_x")
	if got := SessionIDFromContext(ctx); got != "sess_x" {
		t.Errorf("SessionIDFromContext = %q, want sess_x", got)
	}
	if got := SessionIDFromContext(context.Background()); got != "" {
		t.Errorf("expected empty session id, got %q", got)
	}
}

func TestMiddlewareRecordsRemoteIP(t *testing.T) {
	t.Parallel()

	var got string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = RemoteIPFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got != "10.1.2.3" {
		t.Errorf("remote ip = %q, want 10.1.2.3", got)
	}
}
