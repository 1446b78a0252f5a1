// Package identity generates and validates session and participant identifiers.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const sessionIDPrefix = "sess_"

type contextKey int

const (
	sessionIDKey contextKey = iota
	remoteIPKey
)

var sessionIDPattern = regexp.MustCompile(`^sess_[a-f0-9]{32}$`)

// NewSessionID returns an unguessable session id with 128 bits of entropy.
func NewSessionID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return sessionIDPrefix + hex.EncodeToString(buf), nil
}

// NewParticipantID returns a random UUIDv4 participant id.
func NewParticipantID() string {
	return uuid.NewString()
}

// IsValidSessionID reports whether id has the shape produced by NewSessionID.
func IsValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(strings.TrimSpace(id))
}

// IsValidParticipantID reports whether id parses as a UUID.
func IsValidParticipantID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// WithSessionID stores the addressed session id on ctx.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// SessionIDFromContext extracts the session id from the request context.
func SessionIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionIDKey).(string); ok {
		return v
	}
	return ""
}

// RemoteIPFromContext extracts the client IP stored by Middleware.
func RemoteIPFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(remoteIPKey).(string); ok {
		return v
	}
	return ""
}

// Middleware records the normalized remote IP on the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), remoteIPKey, IPFromRequest(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IPFromRequest returns a normalized remote IP for request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
