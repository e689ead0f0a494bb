package pipeline

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/fame0528/powerbot/internal/models"
)

// fallbackAttrs are tried in order when an element has no text, so one
// selector map works across headings, links and images alike.
var fallbackAttrs = []string{"href", "src"}

// extractField pulls one field value out of a parsed document: element
// text first, then the fallback attributes. A miss is an
// ExtractionError; callers drop the field and keep going.
func extractField(doc *goquery.Document, field, selector string) (string, error) {
	sel := doc.Find(selector)
	if sel.Length() == 0 {
		return "", &models.ExtractionError{
			Field: field,
			Err:   fmt.Errorf("no element matches %q", selector),
		}
	}

	node := sel.First()
	if text := strings.TrimSpace(node.Text()); text != "" {
		return text, nil
	}
	for _, attr := range fallbackAttrs {
		if value, ok := node.Attr(attr); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value), nil
		}
	}

	return "", &models.ExtractionError{
		Field: field,
		Err:   fmt.Errorf("element %q has no text or fallback attribute", selector),
	}
}
