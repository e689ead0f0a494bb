package runner

import (
	"context"
	"errors"
	"testing"

	"github.com/go-rod/rod"

	"github.com/fame0528/powerbot/internal/models"
)

type stubScraper struct {
	calls  int
	record *models.ScrapedRecord
	err    error
}

func (s *stubScraper) Scrape(_ context.Context, _ *rod.Page) (*models.ScrapedRecord, error) {
	s.calls++
	return s.record, s.err
}

func TestScrapeStrategySingleShot(t *testing.T) {
	scraper := &stubScraper{record: &models.ScrapedRecord{ID: 7, DataType: "product"}}
	strategy := NewScrapeStrategy(scraper, "", 0, nil)

	done, err := strategy.Step(context.Background(), nil)
	if err != nil {
		t.Fatalf("expected clean step, got %v", err)
	}
	if !done {
		t.Error("expected a single-shot strategy to finish after one step")
	}
	if scraper.calls != 1 {
		t.Errorf("expected 1 scrape, got %d", scraper.calls)
	}
}

func TestScrapeStrategyEmptyPageStillFinishes(t *testing.T) {
	strategy := NewScrapeStrategy(&stubScraper{}, "", 0, nil)

	done, err := strategy.Step(context.Background(), nil)
	if err != nil {
		t.Fatalf("expected clean step, got %v", err)
	}
	if !done {
		t.Error("expected the strategy to finish even when nothing was extracted")
	}
}

func TestScrapeStrategyPropagatesScrapeError(t *testing.T) {
	cause := errors.New("page gone")
	strategy := NewScrapeStrategy(&stubScraper{err: cause}, "", 0, nil)

	done, err := strategy.Step(context.Background(), nil)
	if !errors.Is(err, cause) {
		t.Fatalf("expected the scrape error, got %v", err)
	}
	if done {
		t.Error("expected the strategy not to finish on error")
	}
}
