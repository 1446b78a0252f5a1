// Package housekeeping releases the resources of stopped sessions and
// reclaims sessions past their expiry.
package housekeeping

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Resource is a named closable owned by a session.
type Resource struct {
	Name   string
	Closer io.Closer
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Func wraps a cleanup function as a Resource.
func Func(name string, fn func() error) Resource {
	return Resource{Name: name, Closer: closerFunc(fn)}
}

// Release closes each resource in order and returns the joined failures.
// It is the single teardown path of a session and must be called by exactly
// one goroutine per session; the registry guarantees that by handing the
// session to whichever Stop call removed it.
func Release(logger *slog.Logger, sessionID string, resources ...Resource) error {
	if logger == nil {
		logger = slog.Default()
	}

	var errs []error
	for _, res := range resources {
		if res.Closer == nil {
			continue
		}
		if err := res.Closer.Close(); err != nil {
			logger.Warn("Failed to release session resource",
				"session_id", sessionID,
				"resource", res.Name,
				"error", err)
			errs = append(errs, fmt.Errorf("%s: %w", res.Name, err))
			continue
		}
		logger.Debug("Released session resource", "session_id", sessionID, "resource", res.Name)
	}
	return errors.Join(errs...)
}
