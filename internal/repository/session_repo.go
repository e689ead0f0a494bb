package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fame0528/powerbot/internal/models"
	"github.com/fame0528/powerbot/internal/storage"
)

// SQLiteSessionRepository implements SessionRepository using SQLite.
type SQLiteSessionRepository struct {
	store *storage.Store
}

// NewSQLiteSessionRepository creates a new session repository.
func NewSQLiteSessionRepository(store *storage.Store) *SQLiteSessionRepository {
	return &SQLiteSessionRepository{store: store}
}

// Create inserts a new session row and fills in the generated row id.
func (r *SQLiteSessionRepository) Create(ctx context.Context, session *models.Session) error {
	metadata, err := marshalMetadata(session.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO sessions (session_id, target_url, status, started_at, ended_at, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := r.store.Execute(ctx, query,
		session.SessionID,
		session.TargetURL,
		string(session.Status),
		formatTime(session.StartedAt),
		nullTime(session.EndedAt),
		metadata,
		formatTime(session.CreatedAt),
		formatTime(session.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	session.ID = res.LastInsertID
	return nil
}

// GetBySessionID retrieves a session by its public id.
func (r *SQLiteSessionRepository) GetBySessionID(ctx context.Context, sessionID string) (*models.Session, error) {
	query := `
		SELECT id, session_id, target_url, status, started_at, ended_at, metadata, created_at, updated_at
		FROM sessions
		WHERE session_id = ?
	`
	session, err := scanSession(r.store.QueryOne(ctx, query, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// Update writes the mutable session fields. updated_at is refreshed by
// the schema trigger regardless of the value supplied here.
func (r *SQLiteSessionRepository) Update(ctx context.Context, session *models.Session) error {
	metadata, err := marshalMetadata(session.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		UPDATE sessions
		SET target_url = ?, status = ?, ended_at = ?, metadata = ?, updated_at = ?
		WHERE session_id = ?
	`
	res, err := r.store.Execute(ctx, query,
		session.TargetURL,
		string(session.Status),
		nullTime(session.EndedAt),
		metadata,
		formatTime(time.Now().UTC()),
		session.SessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if res.RowsAffected == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}

// List returns sessions ordered by most recently started.
func (r *SQLiteSessionRepository) List(ctx context.Context, limit, offset int) ([]*models.Session, error) {
	query := `
		SELECT id, session_id, target_url, status, started_at, ended_at, metadata, created_at, updated_at
		FROM sessions
		ORDER BY started_at DESC, id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := r.store.QueryAll(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	return collectSessions(rows)
}

// ListByStatus returns all sessions with the given status.
func (r *SQLiteSessionRepository) ListByStatus(ctx context.Context, status models.SessionStatus) ([]*models.Session, error) {
	query := `
		SELECT id, session_id, target_url, status, started_at, ended_at, metadata, created_at, updated_at
		FROM sessions
		WHERE status = ?
		ORDER BY started_at DESC, id DESC
	`
	rows, err := r.store.QueryAll(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions by status: %w", err)
	}
	defer rows.Close()

	return collectSessions(rows)
}

// CountByStatus returns the number of sessions with the given status.
func (r *SQLiteSessionRepository) CountByStatus(ctx context.Context, status models.SessionStatus) (int, error) {
	var count int
	err := r.store.QueryOne(ctx, "SELECT COUNT(*) FROM sessions WHERE status = ?", string(status)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return count, nil
}

// Delete removes a session permanently. Scraped data, captured state and
// action log rows cascade with it.
func (r *SQLiteSessionRepository) Delete(ctx context.Context, sessionID string) error {
	res, err := r.store.Execute(ctx, "DELETE FROM sessions WHERE session_id = ?", sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if res.RowsAffected == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanSession scans a session from a row.
func scanSession(row rowScanner) (*models.Session, error) {
	var session models.Session
	var status string
	var startedAt, createdAt, updatedAt string
	var endedAt, metadata sql.NullString

	err := row.Scan(
		&session.ID,
		&session.SessionID,
		&session.TargetURL,
		&status,
		&startedAt,
		&endedAt,
		&metadata,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	session.Status = models.SessionStatus(status)
	session.StartedAt = parseTime(startedAt)
	session.CreatedAt = parseTime(createdAt)
	session.UpdatedAt = parseTime(updatedAt)
	if endedAt.Valid {
		t := parseTime(endedAt.String)
		session.EndedAt = &t
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &session.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &session, nil
}

// collectSessions drains rows into session models.
func collectSessions(rows *sql.Rows) ([]*models.Session, error) {
	var sessions []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// formatTime renders a timestamp the way the schema stores them.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime reads a stored timestamp, zero on parse failure.
func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

// nullTime converts an optional timestamp for binding.
func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// nullString converts an optional string for binding.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// marshalMetadata renders a metadata map for storage; empty maps store as
// NULL.
func marshalMetadata(m map[string]string) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
