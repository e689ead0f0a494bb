package runner

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/fame0528/powerbot/internal/models"
)

// Scraper is the slice of the extraction pipeline a strategy needs.
type Scraper interface {
	Scrape(ctx context.Context, page *rod.Page) (*models.ScrapedRecord, error)
}

// ScrapeStrategy extracts the current page on every iteration, then
// follows a pagination element until none remains. With no pagination
// selector it scrapes once and finishes.
type ScrapeStrategy struct {
	scraper      Scraper
	nextSelector string
	timeout      time.Duration
	logger       *slog.Logger
}

// NewScrapeStrategy creates a scrape-and-paginate strategy. An empty
// nextSelector makes it single-shot.
func NewScrapeStrategy(scraper Scraper, nextSelector string, timeout time.Duration, logger *slog.Logger) *ScrapeStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScrapeStrategy{
		scraper:      scraper,
		nextSelector: nextSelector,
		timeout:      timeout,
		logger:       logger.With("component", "strategy"),
	}
}

// Step scrapes the page, then advances to the next one if a pagination
// element is present.
func (s *ScrapeStrategy) Step(ctx context.Context, page *rod.Page) (bool, error) {
	record, err := s.scraper.Scrape(ctx, page)
	if err != nil {
		return false, err
	}
	if record != nil {
		s.logger.Debug("page scraped", "record_id", record.ID, "data_type", record.DataType)
	}

	if s.nextSelector == "" {
		return true, nil
	}

	p := page.Context(ctx).Timeout(s.timeout)
	has, el, err := p.Has(s.nextSelector)
	if err != nil {
		return false, err
	}
	if !has {
		s.logger.Info("no further pages", "selector", s.nextSelector)
		return true, nil
	}

	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return false, err
	}
	if err := p.WaitLoad(); err != nil {
		return false, err
	}
	return false, nil
}
