// Package filesync tracks the authoritative content and version of session files.
//
// Concurrent edits resolve as last-write-wins: every accepted change replaces
// the previous content and bumps the version by one. There is no conflict
// detection and no rejection path; this is the intended policy.
//
// A Store is not safe for concurrent use; the owning session serializes access.
package filesync

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/ashureev/livesync/internal/domain"
)

// Store holds one FileState per distinct path.
type Store struct {
	files map[string]*domain.FileState
	now   func() time.Time
}

// NewStore creates an empty file store.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		files: make(map[string]*domain.FileState),
		now:   now,
	}
}

// CleanPath normalizes a session-relative path to forward slashes without
// leading "./" or "/". Paths escaping the workspace are rejected.
func CleanPath(p string) (string, error) {
	p = strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	if p == "" {
		return "", fmt.Errorf("empty file path")
	}
	cleaned := strings.TrimPrefix(path.Clean("/"+p), "/")
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("invalid file path %q", p)
	}
	if strings.HasPrefix(path.Clean(p), "../") || path.Clean(p) == ".." {
		return "", fmt.Errorf("file path %q escapes workspace", p)
	}
	return cleaned, nil
}

// ApplyChange records new content for p. The first write creates version 1;
// each later write sets version to the previous version plus one.
func (s *Store) ApplyChange(p, content, modifiedBy string) (domain.FileState, error) {
	key, err := CleanPath(p)
	if err != nil {
		return domain.FileState{}, err
	}

	now := s.now()
	fs, ok := s.files[key]
	if !ok {
		fs = &domain.FileState{Path: key}
		s.files[key] = fs
	}
	fs.Content = content
	fs.ModifiedBy = modifiedBy
	fs.LastModifiedAt = now
	fs.Version++
	return *fs, nil
}

// Get returns the current state of p.
func (s *Store) Get(p string) (domain.FileState, bool) {
	key, err := CleanPath(p)
	if err != nil {
		return domain.FileState{}, false
	}
	fs, ok := s.files[key]
	if !ok {
		return domain.FileState{}, false
	}
	return *fs, true
}

// Snapshot returns a copy of every tracked file keyed by path.
func (s *Store) Snapshot() map[string]domain.FileState {
	out := make(map[string]domain.FileState, len(s.files))
	for k, fs := range s.files {
		out[k] = *fs
	}
	return out
}

// Len returns the number of tracked paths.
func (s *Store) Len() int {
	return len(s.files)
}
