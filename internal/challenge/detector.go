// Package challenge recognizes anti-bot interstitials. A run that has
// tripped bot protection must stop with a clear verdict instead of
// scraping the challenge page as if it were content.
package challenge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
)

// Type names the protection system holding the page.
type Type string

const (
	TypeNone       Type = ""
	TypeCloudflare Type = "cloudflare"
	TypeTurnstile  Type = "turnstile"
	TypeHCaptcha   Type = "hcaptcha"
	TypeReCaptcha  Type = "recaptcha"
	TypeDDoSGuard  Type = "ddosguard"
)

// Detection describes a challenge found on a page. AutoResolves marks
// the JavaScript checks that clear themselves when the browser passes,
// as opposed to captchas that need a human.
type Detection struct {
	Type         Type
	SiteKey      string
	URL          string
	Title        string
	AutoResolves bool
}

// Detector probes pages for known challenge markers.
type Detector struct {
	logger *slog.Logger
}

func NewDetector(logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{logger: logger.With("component", "challenge")}
}

// Detect inspects the page and returns the challenge holding it, or
// (nil, nil) for a clean page. Individual probe failures count as
// absent markers; only an unreadable page is an error.
func (d *Detector) Detect(ctx context.Context, page *rod.Page) (*Detection, error) {
	p := page.Context(ctx)

	info, err := p.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to read page info: %w", err)
	}

	det := &Detection{URL: info.URL, Title: info.Title}

	if t := classifyTitle(info.Title); t != TypeNone {
		det.Type = t
		det.AutoResolves = true
		return det, nil
	}

	if hasAny(p, "#cf-browser-verification", "#cf-challenge-running", ".challenge-running") {
		det.Type = TypeCloudflare
		det.AutoResolves = true
		return det, nil
	}

	if has, _, _ := p.Has(`iframe[src*="challenges.cloudflare.com"]`); has {
		det.Type = TypeTurnstile
		det.SiteKey = attr(p, `[data-sitekey]`, "data-sitekey")
		return det, nil
	}
	if key := attr(p, ".cf-turnstile", "data-sitekey"); key != "" {
		det.Type = TypeTurnstile
		det.SiteKey = key
		return det, nil
	}

	if key := attr(p, ".h-captcha", "data-sitekey"); key != "" {
		det.Type = TypeHCaptcha
		det.SiteKey = key
		return det, nil
	}
	if has, _, _ := p.Has(`iframe[src*="hcaptcha.com"]`); has {
		det.Type = TypeHCaptcha
		det.SiteKey = attr(p, `[data-sitekey]`, "data-sitekey")
		return det, nil
	}

	if key := attr(p, ".g-recaptcha", "data-sitekey"); key != "" {
		det.Type = TypeReCaptcha
		det.SiteKey = key
		return det, nil
	}
	if hasAny(p, ".grecaptcha-badge", `iframe[src*="google.com/recaptcha"]`) {
		det.Type = TypeReCaptcha
		return det, nil
	}

	if has, _, _ := p.Has(`meta[name="generator"][content*="DDoS-GUARD"]`); has {
		det.Type = TypeDDoSGuard
		det.AutoResolves = true
		return det, nil
	}

	return nil, nil
}

// Resolve detects and, for self-clearing challenges, polls until the
// page is released or wait runs out. It returns the challenge still
// holding the page, or (nil, nil) once the page is clean.
func (d *Detector) Resolve(ctx context.Context, page *rod.Page, wait time.Duration) (*Detection, error) {
	det, err := d.Detect(ctx, page)
	if err != nil || det == nil {
		return nil, err
	}
	if !det.AutoResolves {
		return det, nil
	}

	d.logger.Info("waiting for challenge to clear", "kind", det.Type, "url", det.URL)

	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return det, ctx.Err()
		case <-deadline.C:
			return det, nil
		case <-tick.C:
			next, err := d.Detect(ctx, page)
			if err != nil {
				return det, err
			}
			if next == nil {
				d.logger.Info("challenge cleared", "kind", det.Type)
				return nil, nil
			}
			det = next
			if !next.AutoResolves {
				return next, nil
			}
		}
	}
}

// cloudflareTitles are the title fragments of the hold-on pages. The
// bare "Please wait" is deliberately absent; it matches too many
// legitimate pages.
var cloudflareTitles = []string{
	"just a moment",
	"checking your browser",
	"attention required",
	"one more step",
	"verify you are human",
}

func classifyTitle(title string) Type {
	t := strings.ToLower(title)
	for _, fragment := range cloudflareTitles {
		if strings.Contains(t, fragment) {
			return TypeCloudflare
		}
	}
	if strings.Contains(t, "ddos-guard") {
		return TypeDDoSGuard
	}
	return TypeNone
}

func hasAny(p *rod.Page, selectors ...string) bool {
	for _, selector := range selectors {
		if has, _, _ := p.Has(selector); has {
			return true
		}
	}
	return false
}

func attr(p *rod.Page, selector, name string) string {
	has, el, err := p.Has(selector)
	if err != nil || !has {
		return ""
	}
	val, err := el.Attribute(name)
	if err != nil || val == nil {
		return ""
	}
	return *val
}
