package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/fame0528/powerbot/internal/models"
	"github.com/fame0528/powerbot/internal/storage"
)

// SQLiteScrapedDataRepository implements ScrapedDataRepository using SQLite.
type SQLiteScrapedDataRepository struct {
	store *storage.Store
}

// NewSQLiteScrapedDataRepository creates a new scraped data repository.
func NewSQLiteScrapedDataRepository(store *storage.Store) *SQLiteScrapedDataRepository {
	return &SQLiteScrapedDataRepository{store: store}
}

// Create inserts a single extracted record.
func (r *SQLiteScrapedDataRepository) Create(ctx context.Context, record *models.ScrapedRecord) error {
	content, metadata, err := marshalRecord(record)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO scraped_data (session_id, data_type, content, url, scraped_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	res, err := r.store.Execute(ctx, query,
		record.SessionID,
		record.DataType,
		content,
		nullString(record.URL),
		formatTime(record.ScrapedAt),
		metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to create scraped record: %w", err)
	}

	record.ID = res.LastInsertID
	return nil
}

// CreateBatch inserts all records inside one transaction. Either every
// record lands or none do, and the store flushes once for the whole
// batch.
func (r *SQLiteScrapedDataRepository) CreateBatch(ctx context.Context, records []*models.ScrapedRecord) error {
	if len(records) == 0 {
		return nil
	}

	return r.store.Transaction(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO scraped_data (session_id, data_type, content, url, scraped_at, metadata)
			VALUES (?, ?, ?, ?, ?, ?)
		`
		for _, record := range records {
			content, metadata, err := marshalRecord(record)
			if err != nil {
				return err
			}
			res, err := tx.ExecContext(ctx, query,
				record.SessionID,
				record.DataType,
				content,
				nullString(record.URL),
				formatTime(record.ScrapedAt),
				metadata,
			)
			if err != nil {
				return fmt.Errorf("failed to insert scraped record: %w", err)
			}
			record.ID, _ = res.LastInsertId()
		}
		return nil
	})
}

// GetBySessionID returns all records for a session in capture order.
func (r *SQLiteScrapedDataRepository) GetBySessionID(ctx context.Context, sessionID string) ([]*models.ScrapedRecord, error) {
	query := `
		SELECT id, session_id, data_type, content, url, scraped_at, metadata
		FROM scraped_data
		WHERE session_id = ?
		ORDER BY id
	`
	rows, err := r.store.QueryAll(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get scraped records: %w", err)
	}
	defer rows.Close()

	var records []*models.ScrapedRecord
	for rows.Next() {
		record, err := scanScrapedRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scraped record: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// CountBySessionID returns the number of records for a session.
func (r *SQLiteScrapedDataRepository) CountBySessionID(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := r.store.QueryOne(ctx, "SELECT COUNT(*) FROM scraped_data WHERE session_id = ?", sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count scraped records: %w", err)
	}
	return count, nil
}

// marshalRecord renders the document and metadata columns.
func marshalRecord(record *models.ScrapedRecord) (string, any, error) {
	content, err := json.Marshal(record.Content)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal content: %w", err)
	}
	metadata, err := marshalMetadata(record.Metadata)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return string(content), metadata, nil
}

// scanScrapedRecord scans a record from a row.
func scanScrapedRecord(row rowScanner) (*models.ScrapedRecord, error) {
	var record models.ScrapedRecord
	var content, scrapedAt string
	var url, metadata sql.NullString

	err := row.Scan(
		&record.ID,
		&record.SessionID,
		&record.DataType,
		&content,
		&url,
		&scrapedAt,
		&metadata,
	)
	if err != nil {
		return nil, err
	}

	record.URL = url.String
	record.ScrapedAt = parseTime(scrapedAt)
	if err := json.Unmarshal([]byte(content), &record.Content); err != nil {
		return nil, fmt.Errorf("failed to unmarshal content: %w", err)
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &record.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &record, nil
}
