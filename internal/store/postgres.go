package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chaluvadis/schemasync/pkg/models"
)

// PostgresStore persists sessions in Postgres. The full session aggregate is
// stored as a JSONB payload next to a few indexed columns, so schema changes
// in the aggregate never require a migration of their own.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the sessions table if it does not exist yet
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schemasync_sessions (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			status      TEXT NOT NULL,
			source_conn TEXT NOT NULL,
			target_conn TEXT NOT NULL,
			created_by  TEXT NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL,
			payload     JSONB NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}
	return nil
}

// SaveSession upserts a session
func (s *PostgresStore) SaveSession(ctx context.Context, session *models.ResolutionSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	query := `
		INSERT INTO schemasync_sessions (id, name, status, source_conn, target_conn, created_by, created_at, updated_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    status = EXCLUDED.status,
		    updated_at = EXCLUDED.updated_at,
		    payload = EXCLUDED.payload
	`

	_, err = s.db.ExecContext(
		ctx, query,
		session.ID,
		session.Name,
		string(session.Status),
		session.SourceConnectionID,
		session.TargetConnectionID,
		session.CreatedBy,
		session.CreatedAt,
		time.Now(),
		payload,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// GetSession loads one session by ID
func (s *PostgresStore) GetSession(ctx context.Context, id string) (*models.ResolutionSession, error) {
	var payload []byte
	query := `SELECT payload FROM schemasync_sessions WHERE id = $1`

	err := s.db.QueryRowContext(ctx, query, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var session models.ResolutionSession
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

// ListSessions returns all sessions, newest first
func (s *PostgresStore) ListSessions(ctx context.Context) ([]*models.ResolutionSession, error) {
	query := `SELECT payload FROM schemasync_sessions ORDER BY created_at DESC, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.ResolutionSession
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		var session models.ResolutionSession
		if err := json.Unmarshal(payload, &session); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session: %w", err)
		}
		sessions = append(sessions, &session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	return sessions, nil
}
