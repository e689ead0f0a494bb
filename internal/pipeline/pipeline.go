// Package pipeline pulls structured documents out of pages and routes
// them into storage. The extraction itself is a strategy value supplied
// at construction; the pipeline owns session binding, batching and
// persistence.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"github.com/fame0528/powerbot/internal/crypto"
	"github.com/fame0528/powerbot/internal/models"
	"github.com/fame0528/powerbot/internal/repository"
)

// Extractor turns one page into one structured document. An empty
// document means "nothing extracted" and is not an error.
type Extractor interface {
	// Type tags the records this extractor produces.
	Type() string
	Extract(ctx context.Context, page *rod.Page) (models.Document, error)
}

// Pipeline extracts documents and persists them under the bound session.
type Pipeline struct {
	mu        sync.Mutex
	extractor Extractor
	scraped   repository.ScrapedDataRepository
	captured  repository.CapturedStateRepository
	cipher    *crypto.Cipher
	logger    *slog.Logger
	sessionID string
}

// NewPipeline creates a pipeline around the given extractor.
func NewPipeline(
	extractor Extractor,
	scraped repository.ScrapedDataRepository,
	captured repository.CapturedStateRepository,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		extractor: extractor,
		scraped:   scraped,
		captured:  captured,
		logger:    logger.With("component", "pipeline"),
	}
}

// UseCipher encrypts captured state at rest. Scraped records stay in
// the clear; they are the product, snapshots are credentials.
func (p *Pipeline) UseCipher(c *crypto.Cipher) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cipher = c
}

// Bind attaches the pipeline to a session. Records persist under this id.
func (p *Pipeline) Bind(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionID = sessionID
}

// SessionID returns the bound session id, empty when unbound.
func (p *Pipeline) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionID
}

// Scrape extracts one document from the page and persists it. An empty
// extraction is a no-op and returns (nil, nil).
func (p *Pipeline) Scrape(ctx context.Context, page *rod.Page) (*models.ScrapedRecord, error) {
	sessionID := p.SessionID()
	if sessionID == "" {
		return nil, models.NewSessionError("scrape", "", models.ErrSessionNotBound)
	}

	doc, err := p.extractor.Extract(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("failed to extract document: %w", err)
	}
	if len(doc) == 0 {
		p.logger.Debug("empty extraction, skipping persist", "session_id", sessionID)
		return nil, nil
	}

	record := &models.ScrapedRecord{
		SessionID: sessionID,
		DataType:  p.extractor.Type(),
		Content:   doc,
		URL:       pageURL(page),
		ScrapedAt: time.Now().UTC(),
	}
	if err := p.scraped.Create(ctx, record); err != nil {
		return nil, err
	}

	p.logger.Info("document scraped", "session_id", sessionID, "data_type", record.DataType, "fields", len(doc))
	return record, nil
}

// ScrapeMultiple extracts from every page independently: a failed or
// empty extraction is logged and that page skipped, the batch keeps
// going. Whatever survives is persisted as one transactional insert.
// Returns the number of records persisted.
func (p *Pipeline) ScrapeMultiple(ctx context.Context, pages []*rod.Page) (int, error) {
	sessionID := p.SessionID()
	if sessionID == "" {
		return 0, models.NewSessionError("scrape", "", models.ErrSessionNotBound)
	}

	var records []*models.ScrapedRecord
	for i, page := range pages {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		doc, err := p.extractor.Extract(ctx, page)
		if err != nil {
			p.logger.Warn("extraction failed, skipping page", "session_id", sessionID, "page_index", i, "error", err)
			continue
		}
		if len(doc) == 0 {
			p.logger.Debug("empty extraction, skipping page", "session_id", sessionID, "page_index", i)
			continue
		}

		records = append(records, &models.ScrapedRecord{
			SessionID: sessionID,
			DataType:  p.extractor.Type(),
			Content:   doc,
			URL:       pageURL(page),
			ScrapedAt: time.Now().UTC(),
		})
	}

	if len(records) == 0 {
		return 0, nil
	}
	if err := p.scraped.CreateBatch(ctx, records); err != nil {
		return 0, err
	}

	p.logger.Info("batch scraped", "session_id", sessionID, "pages", len(pages), "records", len(records))
	return len(records), nil
}

// CaptureState stores an opaque session snapshot (cookies, page HTML,
// whatever the caller serializes). With a cipher attached the payload
// is sealed before it reaches the store.
func (p *Pipeline) CaptureState(ctx context.Context, stateType, data string) (*models.CapturedState, error) {
	sessionID := p.SessionID()
	if sessionID == "" {
		return nil, models.NewSessionError("capture_state", "", models.ErrSessionNotBound)
	}

	payload := data
	cipher := p.stateCipher()
	if cipher != nil {
		sealed, err := cipher.Seal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to seal state: %w", err)
		}
		payload = sealed
	}

	state := &models.CapturedState{
		SessionID:  sessionID,
		StateType:  stateType,
		Data:       payload,
		CapturedAt: time.Now().UTC(),
	}
	if err := p.captured.Create(ctx, state); err != nil {
		return nil, err
	}

	p.logger.Info("state captured",
		"session_id", sessionID,
		"state_type", stateType,
		"encrypted", cipher != nil,
	)
	return state, nil
}

// OpenState returns a snapshot's payload, unsealing it when a cipher
// is attached. Snapshots written under a different key fail to open.
func (p *Pipeline) OpenState(state *models.CapturedState) (string, error) {
	cipher := p.stateCipher()
	if cipher == nil {
		return state.Data, nil
	}
	return cipher.Open(state.Data)
}

func (p *Pipeline) stateCipher() *crypto.Cipher {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cipher
}

// pageURL reads the page's current URL, best effort.
func pageURL(page *rod.Page) string {
	if page == nil {
		return ""
	}
	info, err := page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}
