package repository

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/fame0528/powerbot/internal/models"
	"github.com/fame0528/powerbot/internal/storage"
)

// setupTestStore creates an ephemeral in-memory store for testing.
// Migrations run on open; the store is closed when the test completes.
func setupTestStore(t *testing.T) *storage.Store {
	t.Helper()

	store, err := storage.Open(storage.Config{}, nil)
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

// setupTestRepos creates all repositories using a test store.
func setupTestRepos(t *testing.T) *Repositories {
	t.Helper()
	return NewRepositories(setupTestStore(t))
}

// insertTestSession creates an active session and returns its id.
func insertTestSession(t *testing.T, repos *Repositories) string {
	t.Helper()

	now := time.Now().UTC()
	session := &models.Session{
		SessionID: ulid.Make().String(),
		TargetURL: "https://example.com/app",
		Status:    models.SessionStatusActive,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repos.Session.Create(context.Background(), session); err != nil {
		t.Fatalf("failed to insert test session: %v", err)
	}
	return session.SessionID
}

// insertTestRecord creates a scraped record under the given session.
func insertTestRecord(t *testing.T, repos *Repositories, sessionID, dataType string) *models.ScrapedRecord {
	t.Helper()

	record := &models.ScrapedRecord{
		SessionID: sessionID,
		DataType:  dataType,
		Content:   models.Document{"title": "example"},
		URL:       "https://example.com/app/page",
		ScrapedAt: time.Now().UTC(),
	}
	if err := repos.ScrapedData.Create(context.Background(), record); err != nil {
		t.Fatalf("failed to insert test record: %v", err)
	}
	return record
}
