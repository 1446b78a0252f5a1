package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ashureev/livesync/internal/domain"
	"github.com/ashureev/livesync/internal/identity"
	"github.com/ashureev/livesync/internal/store"
	"github.com/go-chi/chi/v5"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// SessionHandler handles session lifecycle endpoints.
type SessionHandler struct {
	*Handler
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(base *Handler) *SessionHandler {
	return &SessionHandler{Handler: base}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Use(sessionContext)
			r.Get("/", h.Get)
			r.Delete("/", h.Stop)
			r.Post("/participants", h.Join)
			r.Put("/files", h.ApplyChange)
			r.Get("/events", h.Events)
		})
	})
}

// sessionContext rejects malformed session ids and stores the id on the context.
func sessionContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		if !identity.IsValidSessionID(id) {
			Error(w, http.StatusNotFound, "session not found")
			return
		}
		next.ServeHTTP(w, r.WithContext(identity.WithSessionID(r.Context(), id)))
	})
}

type createRequest struct {
	Name string `json:"name"`
	Port int    `json:"port"`
}

// Create starts a new session.
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeBody(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		Error(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Port < 0 || req.Port > 65535 {
		Error(w, http.StatusBadRequest, "port must be between 0 and 65535")
		return
	}

	sess, err := h.sessions.Create(req.Name, req.Port)
	if err != nil {
		slog.Error("Failed to create session", "error", err, "name", req.Name, "port", req.Port)
		Error(w, statusFor(err), err.Error())
		return
	}
	JSON(w, http.StatusCreated, sess)
}

// List returns the active sessions.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	sessions := h.sessions.Active()
	if sessions == nil {
		sessions = []domain.Session{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
	})
}

// Get returns the full snapshot of one session.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.sessions.Snapshot(identity.SessionIDFromContext(r.Context()))
	if err != nil {
		Error(w, statusFor(err), err.Error())
		return
	}
	JSON(w, http.StatusOK, snap)
}

// Stop tears a session down.
func (h *SessionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	id := identity.SessionIDFromContext(r.Context())
	if err := h.sessions.Stop(id); err != nil {
		Error(w, statusFor(err), err.Error())
		return
	}
	slog.Info("Session stopped via API", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

type joinRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Join admits a participant.
func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeBody(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		Error(w, http.StatusBadRequest, "name is required")
		return
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.sessions.Join(identity.SessionIDFromContext(r.Context()), req.Name, req.Email, role)
	if err != nil {
		Error(w, statusFor(err), err.Error())
		return
	}
	JSON(w, http.StatusCreated, p)
}

type changeRequest struct {
	Path       string `json:"path"`
	Content    string `json:"content"`
	ModifiedBy string `json:"modifiedBy"`
}

// ApplyChange writes file content into a session.
func (h *SessionHandler) ApplyChange(w http.ResponseWriter, r *http.Request) {
	var req changeRequest
	if err := decodeBody(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	fs, err := h.sessions.ApplyChange(identity.SessionIDFromContext(r.Context()), req.Path, req.Content, req.ModifiedBy)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			// Path validation failures.
			status = http.StatusBadRequest
		}
		Error(w, status, err.Error())
		return
	}
	JSON(w, http.StatusOK, fs)
}

// Events returns the most recent journal entries of a session.
func (h *SessionHandler) Events(w http.ResponseWriter, r *http.Request) {
	id := identity.SessionIDFromContext(r.Context())
	if h.events == nil {
		Error(w, http.StatusNotFound, "journal disabled")
		return
	}

	limit := defaultEventLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxEventLimit)
	}

	events, err := h.events.Events(r.Context(), id, limit)
	if err != nil {
		slog.Error("Failed to list session events", "error", err, "session_id", id)
		Error(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []store.Event{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"session_id": id,
		"events":     events,
	})
}
