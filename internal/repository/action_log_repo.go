package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fame0528/powerbot/internal/models"
	"github.com/fame0528/powerbot/internal/storage"
)

// SQLiteActionLogRepository implements ActionLogRepository using SQLite.
type SQLiteActionLogRepository struct {
	store *storage.Store
}

// NewSQLiteActionLogRepository creates a new action log repository.
func NewSQLiteActionLogRepository(store *storage.Store) *SQLiteActionLogRepository {
	return &SQLiteActionLogRepository{store: store}
}

// Record inserts one action outcome.
func (r *SQLiteActionLogRepository) Record(ctx context.Context, entry *models.ActionEntry) error {
	query := `
		INSERT INTO action_log (session_id, action, selector, success, error_message, duration_ms, logged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	res, err := r.store.Execute(ctx, query,
		entry.SessionID,
		entry.Action,
		nullString(entry.Selector),
		boolToInt(entry.Success),
		nullString(entry.ErrorMessage),
		entry.DurationMs,
		formatTime(entry.LoggedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to record action: %w", err)
	}

	entry.ID = res.LastInsertID
	return nil
}

// GetBySessionID returns all actions for a session in execution order.
func (r *SQLiteActionLogRepository) GetBySessionID(ctx context.Context, sessionID string) ([]*models.ActionEntry, error) {
	query := `
		SELECT id, session_id, action, selector, success, error_message, duration_ms, logged_at
		FROM action_log
		WHERE session_id = ?
		ORDER BY id
	`
	rows, err := r.store.QueryAll(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get action log: %w", err)
	}
	defer rows.Close()

	var entries []*models.ActionEntry
	for rows.Next() {
		entry, err := scanActionEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CountBySessionID returns the number of logged actions for a session.
func (r *SQLiteActionLogRepository) CountBySessionID(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := r.store.QueryOne(ctx, "SELECT COUNT(*) FROM action_log WHERE session_id = ?", sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count actions: %w", err)
	}
	return count, nil
}

// FailureCount returns the number of failed actions for a session.
func (r *SQLiteActionLogRepository) FailureCount(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := r.store.QueryOne(ctx,
		"SELECT COUNT(*) FROM action_log WHERE session_id = ? AND success = 0", sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count failed actions: %w", err)
	}
	return count, nil
}

// scanActionEntry scans an action entry from a row.
func scanActionEntry(row rowScanner) (*models.ActionEntry, error) {
	var entry models.ActionEntry
	var success int
	var loggedAt string
	var selector, errorMessage sql.NullString

	err := row.Scan(
		&entry.ID,
		&entry.SessionID,
		&entry.Action,
		&selector,
		&success,
		&errorMessage,
		&entry.DurationMs,
		&loggedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.Selector = selector.String
	entry.ErrorMessage = errorMessage.String
	entry.Success = success != 0
	entry.LoggedAt = parseTime(loggedAt)
	return &entry, nil
}

// boolToInt renders a bool for an INTEGER column.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
