// Package repository defines repository interfaces for data access.
// All repositories run through the storage engine so the configured flush
// policy applies to every mutation.
package repository

import (
	"context"

	"github.com/fame0528/powerbot/internal/models"
	"github.com/fame0528/powerbot/internal/storage"
)

// SessionRepository defines methods for session data access.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	// GetBySessionID returns (nil, nil) when the id has no row.
	GetBySessionID(ctx context.Context, sessionID string) (*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
	List(ctx context.Context, limit, offset int) ([]*models.Session, error)
	ListByStatus(ctx context.Context, status models.SessionStatus) ([]*models.Session, error)
	CountByStatus(ctx context.Context, status models.SessionStatus) (int, error)
	// Delete is the administrative purge; dependent records cascade.
	Delete(ctx context.Context, sessionID string) error
}

// ScrapedDataRepository defines methods for extracted record data access.
// Records are immutable once created.
type ScrapedDataRepository interface {
	Create(ctx context.Context, record *models.ScrapedRecord) error
	// CreateBatch inserts all records in one transaction: all-or-nothing.
	CreateBatch(ctx context.Context, records []*models.ScrapedRecord) error
	GetBySessionID(ctx context.Context, sessionID string) ([]*models.ScrapedRecord, error)
	CountBySessionID(ctx context.Context, sessionID string) (int, error)
}

// CapturedStateRepository defines methods for opaque session snapshots.
type CapturedStateRepository interface {
	Create(ctx context.Context, state *models.CapturedState) error
	GetBySessionID(ctx context.Context, sessionID string) ([]*models.CapturedState, error)
	// LatestByType returns (nil, nil) when no snapshot of the type exists.
	LatestByType(ctx context.Context, sessionID, stateType string) (*models.CapturedState, error)
}

// ActionLogRepository defines methods for per-action outcome records.
type ActionLogRepository interface {
	Record(ctx context.Context, entry *models.ActionEntry) error
	GetBySessionID(ctx context.Context, sessionID string) ([]*models.ActionEntry, error)
	CountBySessionID(ctx context.Context, sessionID string) (int, error)
	FailureCount(ctx context.Context, sessionID string) (int, error)
}

// Repositories holds all repository instances.
type Repositories struct {
	Session       SessionRepository
	ScrapedData   ScrapedDataRepository
	CapturedState CapturedStateRepository
	ActionLog     ActionLogRepository
}

// NewRepositories creates all repository instances.
func NewRepositories(store *storage.Store) *Repositories {
	return &Repositories{
		Session:       NewSQLiteSessionRepository(store),
		ScrapedData:   NewSQLiteScrapedDataRepository(store),
		CapturedState: NewSQLiteCapturedStateRepository(store),
		ActionLog:     NewSQLiteActionLogRepository(store),
	}
}
