// Package consent clears cookie consent banners after navigation.
// Banners overlay the page and swallow the clicks an automation run
// aims at real elements, so the runner dismisses them before stepping.
package consent

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// acceptSelectors target the accept buttons of the common consent
// platforms, most specific first. Generic patterns sit last so a CMP
// match wins over a coincidental class name.
var acceptSelectors = []string{
	// OneTrust
	`button#onetrust-accept-btn-handler`,
	`#onetrust-accept-btn-handler`,
	`button[id*="onetrust-accept"]`,
	`#accept-recommended-btn-handler`,

	// Cookiebot
	`button#CybotCookiebotDialogBodyLevelButtonLevelOptinAllowAll`,
	`button#CybotCookiebotDialogBodyButtonAccept`,

	// Quantcast / TCF
	`.qc-cmp2-summary-buttons button[mode="primary"]`,
	`button[class*="qc-cmp"]`,

	// TrustArc
	`#truste-consent-button`,
	`button.trustarc-agree-btn`,

	// Didomi
	`button#didomi-notice-agree-button`,

	// Common hand-rolled patterns
	`button[data-testid="cookie-policy-dialog-accept-button"]`,
	`button[data-testid="accept-cookies"]`,
	`button#accept-cookies`,
	`button#acceptCookies`,
	`button.cookie-accept`,
	`button.accept-cookies`,
	`button.consent-accept`,
	`button.gdpr-accept`,
	`div[class*="consent"] button[class*="accept"]`,
	`div[class*="cookie"] button[class*="accept"]`,
}

// acceptLabels are button texts tried when no selector matches. Matched
// exact-or-substring against trimmed visible text, case sensitive.
var acceptLabels = []string{
	"Accept All",
	"Accept all",
	"Accept Cookies",
	"Accept cookies",
	"Allow All",
	"Allow all",
	"I Accept",
	"I Agree",
	"Agree",
	"Got it",
}

// Dismisser clicks away cookie consent banners. Every probe is bounded
// by a short timeout; a page without a banner costs little.
type Dismisser struct {
	logger       *slog.Logger
	probeTimeout time.Duration
}

func NewDismisser(logger *slog.Logger) *Dismisser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dismisser{
		logger:       logger.With("component", "consent"),
		probeTimeout: 2 * time.Second,
	}
}

// Dismiss looks for a consent banner and clicks its accept control.
// Reports whether anything was dismissed. Failures never propagate;
// a stubborn banner surfaces later as a failed step on the element it
// shadows.
func (d *Dismisser) Dismiss(ctx context.Context, page *rod.Page) bool {
	// Banners mount asynchronously after load.
	settle(ctx, 500*time.Millisecond)
	if ctx.Err() != nil {
		return false
	}

	for _, selector := range acceptSelectors {
		if d.clickSelector(ctx, page, selector) {
			d.logger.Info("dismissed consent banner", "selector", selector)
			settle(ctx, 300*time.Millisecond)
			return true
		}
	}

	if label := d.clickByLabel(ctx, page); label != "" {
		d.logger.Info("dismissed consent banner", "label", label)
		settle(ctx, 300*time.Millisecond)
		return true
	}

	return false
}

func (d *Dismisser) clickSelector(ctx context.Context, page *rod.Page, selector string) bool {
	p := page.Context(ctx).Timeout(d.probeTimeout)

	has, el, err := p.Has(selector)
	if err != nil || !has {
		return false
	}
	visible, err := el.Visible()
	if err != nil || !visible {
		return false
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		d.logger.Debug("consent click failed", "selector", selector, "error", err)
		return false
	}
	return true
}

// clickByLabel scans visible buttons and links for an accept label and
// clicks the first match in one script pass, returning the label.
func (d *Dismisser) clickByLabel(ctx context.Context, page *rod.Page) string {
	js := `(labels) => {
		const nodes = document.querySelectorAll('button, a');
		for (const node of nodes) {
			const rect = node.getBoundingClientRect();
			if (rect.width === 0 || rect.height === 0) continue;
			const text = (node.textContent || '').trim();
			for (const label of labels) {
				if (text === label || text.includes(label)) {
					node.click();
					return label;
				}
			}
		}
		return '';
	}`

	res, err := page.Context(ctx).Timeout(d.probeTimeout).Eval(js, acceptLabels)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// settle waits for the page to catch up, abandoning the wait when the
// context ends.
func settle(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
