package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/chaluvadis/schemasync/pkg/models"
)

// MemoryStore is an in-process session store. Values are deep-copied on the
// way in and out so callers must SaveSession to make mutations visible,
// matching the Postgres store's semantics.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.ResolutionSession
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*models.ResolutionSession)}
}

// SaveSession inserts or replaces a session
func (s *MemoryStore) SaveSession(ctx context.Context, session *models.ResolutionSession) error {
	copied, err := copySession(session)
	if err != nil {
		return fmt.Errorf("failed to copy session: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = copied
	return nil
}

// GetSession loads one session by ID
func (s *MemoryStore) GetSession(ctx context.Context, id string) (*models.ResolutionSession, error) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return copySession(session)
}

// ListSessions returns all sessions ordered by creation time, newest first
func (s *MemoryStore) ListSessions(ctx context.Context) ([]*models.ResolutionSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.ResolutionSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		copied, err := copySession(session)
		if err != nil {
			return nil, err
		}
		out = append(out, copied)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func copySession(session *models.ResolutionSession) (*models.ResolutionSession, error) {
	raw, err := json.Marshal(session)
	if err != nil {
		return nil, err
	}
	var copied models.ResolutionSession
	if err := json.Unmarshal(raw, &copied); err != nil {
		return nil, err
	}
	return &copied, nil
}
