package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	nurl "net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	readability "github.com/go-shiori/go-readability"

	"github.com/fame0528/powerbot/internal/models"
)

var errNoPage = errors.New("no page supplied")

// SelectorExtractor builds documents from a field-name to CSS-selector
// map. Fields that fail to extract are dropped, never fatal.
type SelectorExtractor struct {
	dataType string
	fields   map[string]string
	logger   *slog.Logger
}

// NewSelectorExtractor creates an extractor producing records tagged
// with dataType.
func NewSelectorExtractor(dataType string, fields map[string]string, logger *slog.Logger) *SelectorExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &SelectorExtractor{
		dataType: dataType,
		fields:   fields,
		logger:   logger.With("component", "extractor", "data_type", dataType),
	}
}

// Type returns the record tag.
func (e *SelectorExtractor) Type() string {
	return e.dataType
}

// Extract reads the page HTML and applies the selector map.
func (e *SelectorExtractor) Extract(ctx context.Context, page *rod.Page) (models.Document, error) {
	if page == nil {
		return nil, errNoPage
	}
	html, err := page.Context(ctx).HTML()
	if err != nil {
		return nil, fmt.Errorf("failed to read page html: %w", err)
	}
	return e.ExtractHTML(html)
}

// ExtractHTML applies the selector map to already-rendered HTML.
func (e *SelectorExtractor) ExtractHTML(html string) (models.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	out := make(models.Document)
	for field, selector := range e.fields {
		value, err := extractField(doc, field, selector)
		if err != nil {
			e.logger.Debug("field extraction failed", "field", field, "error", err)
			continue
		}
		out[field] = value
	}
	return out, nil
}

// ArticleExtractor runs the Mozilla Readability algorithm over the page
// and produces title, byline, excerpt and plain-text content. Pages
// with no discernible article come back as an empty document.
type ArticleExtractor struct {
	logger *slog.Logger
}

// NewArticleExtractor creates an article extractor.
func NewArticleExtractor(logger *slog.Logger) *ArticleExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArticleExtractor{
		logger: logger.With("component", "extractor", "data_type", "article"),
	}
}

// Type returns the record tag.
func (e *ArticleExtractor) Type() string {
	return "article"
}

// Extract reads the page HTML and runs readability against it.
func (e *ArticleExtractor) Extract(ctx context.Context, page *rod.Page) (models.Document, error) {
	if page == nil {
		return nil, errNoPage
	}
	html, err := page.Context(ctx).HTML()
	if err != nil {
		return nil, fmt.Errorf("failed to read page html: %w", err)
	}
	return e.ExtractHTML(html, pageURL(page))
}

// ExtractHTML runs readability over already-rendered HTML. sourceURL
// resolves relative links inside the article.
func (e *ArticleExtractor) ExtractHTML(html, sourceURL string) (models.Document, error) {
	parsed, err := nurl.Parse(sourceURL)
	if err != nil {
		parsed = &nurl.URL{}
	}

	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil {
		return nil, fmt.Errorf("failed to extract article: %w", err)
	}

	doc := make(models.Document)
	if article.Title != "" {
		doc["title"] = article.Title
	}
	if article.Byline != "" {
		doc["byline"] = article.Byline
	}
	if article.Excerpt != "" {
		doc["excerpt"] = article.Excerpt
	}
	if article.SiteName != "" {
		doc["site_name"] = article.SiteName
	}
	if text := strings.TrimSpace(article.TextContent); text != "" {
		doc["text"] = text
	}
	return doc, nil
}
