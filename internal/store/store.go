// Package store persists resolution sessions. The Postgres store keeps the
// session payload as JSONB; the memory store backs tests and CLI-only runs.
package store

import (
	"errors"
)

// ErrNotFound is returned when a session ID is unknown
var ErrNotFound = errors.New("session not found")
