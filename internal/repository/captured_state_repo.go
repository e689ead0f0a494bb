package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fame0528/powerbot/internal/models"
	"github.com/fame0528/powerbot/internal/storage"
)

// SQLiteCapturedStateRepository implements CapturedStateRepository using SQLite.
type SQLiteCapturedStateRepository struct {
	store *storage.Store
}

// NewSQLiteCapturedStateRepository creates a new captured state repository.
func NewSQLiteCapturedStateRepository(store *storage.Store) *SQLiteCapturedStateRepository {
	return &SQLiteCapturedStateRepository{store: store}
}

// Create inserts an opaque state snapshot.
func (r *SQLiteCapturedStateRepository) Create(ctx context.Context, state *models.CapturedState) error {
	query := `
		INSERT INTO captured_state (session_id, state_type, data, captured_at)
		VALUES (?, ?, ?, ?)
	`
	res, err := r.store.Execute(ctx, query,
		state.SessionID,
		state.StateType,
		state.Data,
		formatTime(state.CapturedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create captured state: %w", err)
	}

	state.ID = res.LastInsertID
	return nil
}

// GetBySessionID returns all snapshots for a session in capture order.
func (r *SQLiteCapturedStateRepository) GetBySessionID(ctx context.Context, sessionID string) ([]*models.CapturedState, error) {
	query := `
		SELECT id, session_id, state_type, data, captured_at
		FROM captured_state
		WHERE session_id = ?
		ORDER BY id
	`
	rows, err := r.store.QueryAll(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get captured state: %w", err)
	}
	defer rows.Close()

	var states []*models.CapturedState
	for rows.Next() {
		state, err := scanCapturedState(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan captured state: %w", err)
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

// LatestByType returns the most recent snapshot of a type for a session.
func (r *SQLiteCapturedStateRepository) LatestByType(ctx context.Context, sessionID, stateType string) (*models.CapturedState, error) {
	query := `
		SELECT id, session_id, state_type, data, captured_at
		FROM captured_state
		WHERE session_id = ? AND state_type = ?
		ORDER BY id DESC
		LIMIT 1
	`
	state, err := scanCapturedState(r.store.QueryOne(ctx, query, sessionID, stateType))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get captured state: %w", err)
	}
	return state, nil
}

// scanCapturedState scans a snapshot from a row.
func scanCapturedState(row rowScanner) (*models.CapturedState, error) {
	var state models.CapturedState
	var capturedAt string

	err := row.Scan(
		&state.ID,
		&state.SessionID,
		&state.StateType,
		&state.Data,
		&capturedAt,
	)
	if err != nil {
		return nil, err
	}

	state.CapturedAt = parseTime(capturedAt)
	return &state, nil
}
