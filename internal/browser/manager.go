// Package browser provides browser process and context management for
// powerbot. One Manager owns one browser process; contexts are isolated
// browsing environments keyed by caller-supplied ids, and each context
// owns its pages.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/fame0528/powerbot/internal/config"
	"github.com/fame0528/powerbot/internal/models"
)

// DefaultPageID names the page used when callers do not ask for a
// specific one.
const DefaultPageID = "default"

// State tracks the browser process lifecycle. Closed is terminal: a
// closed Manager cannot relaunch, construct a new one instead.
type State int

const (
	StateUnlaunched State = iota
	StateLaunched
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnlaunched:
		return "unlaunched"
	case StateLaunched:
		return "launched"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Context is an isolated browsing environment (cookies, storage) plus
// the pages opened under it.
type Context struct {
	id        string
	incognito *rod.Browser
	pages     map[string]*rod.Page
}

// ID returns the caller-supplied context id.
func (c *Context) ID() string {
	return c.id
}

// Manager owns the browser process and its contexts. The mutex guards
// the handle maps only; callers running concurrent flows must still
// serialize use of shared context and page ids.
type Manager struct {
	mu       sync.Mutex
	cfg      *config.Config
	logger   *slog.Logger
	state    State
	browser  *rod.Browser
	contexts map[string]*Context
}

// NewManager creates an unlaunched manager.
func NewManager(cfg *config.Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		logger:   logger.With("component", "browser"),
		contexts: make(map[string]*Context),
	}
}

// Launch starts the browser process. It fails when a process handle
// already exists or the manager has been closed.
func (m *Manager) Launch(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateLaunched:
		return models.NewResourceError("launch", models.ErrAlreadyLaunched)
	case StateClosed:
		return models.NewResourceError("launch", models.ErrManagerClosed)
	}

	l := launcher.New()
	if m.cfg.ChromePath != "" {
		l = l.Bin(m.cfg.ChromePath)
	}

	l = l.
		Headless(m.cfg.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-infobars").
		Set("disable-extensions").
		Set("disable-background-networking").
		Set("disable-background-timer-throttling").
		Set("disable-backgrounding-occluded-windows").
		Set("disable-renderer-backgrounding").
		Set("window-size", fmt.Sprintf("%d,%d", m.cfg.ViewportWidth, m.cfg.ViewportHeight)).
		Set("lang", "en-US,en")

	u, err := l.Launch()
	if err != nil {
		return models.NewResourceError("launch", err)
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return models.NewResourceError("launch", err)
	}

	m.browser = browser
	m.state = StateLaunched
	m.logger.Info("browser launched", "headless", m.cfg.Headless)
	return nil
}

// CreateContext registers a new isolated context under the given id.
// Pages created under it get the fingerprint normalization script
// before any document runs; script registration is a page-scoped
// operation in the devtools protocol, so injection happens in GetPage.
func (m *Manager) CreateContext(ctx context.Context, contextID string) (*Context, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateUnlaunched:
		return nil, models.NewResourceError("create_context", models.ErrNotLaunched)
	case StateClosed:
		return nil, models.NewResourceError("create_context", models.ErrManagerClosed)
	}

	if _, exists := m.contexts[contextID]; exists {
		return nil, models.NewResourceError("create_context",
			fmt.Errorf("context %q: %w", contextID, models.ErrDuplicateContext))
	}

	incognito, err := m.browser.Incognito()
	if err != nil {
		return nil, models.NewResourceError("create_context", err)
	}

	c := &Context{
		id:        contextID,
		incognito: incognito,
		pages:     make(map[string]*rod.Page),
	}
	m.contexts[contextID] = c

	m.logger.Info("context created", "context_id", contextID)
	return c, nil
}

// GetPage returns the page registered under (contextID, pageID),
// lazily creating it on first use. An empty pageID means DefaultPageID.
// The new page carries the stealth patches and the configured viewport.
func (m *Manager) GetPage(ctx context.Context, contextID, pageID string) (*rod.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if pageID == "" {
		pageID = DefaultPageID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateClosed {
		return nil, models.NewResourceError("get_page", models.ErrManagerClosed)
	}

	c, ok := m.contexts[contextID]
	if !ok {
		return nil, models.NewResourceError("get_page",
			fmt.Errorf("context %q: %w", contextID, models.ErrContextNotFound))
	}

	if page, ok := c.pages[pageID]; ok {
		return page, nil
	}

	page, err := NewStealthPage(c.incognito)
	if err != nil {
		return nil, models.NewResourceError("get_page", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.ViewportWidth,
		Height:            m.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		m.logger.Warn("failed to set viewport", "context_id", contextID, "page_id", pageID, "error", err)
	}

	c.pages[pageID] = page
	m.logger.Info("page created", "context_id", contextID, "page_id", pageID)
	return page, nil
}

// ClosePage closes one page and removes it from its context. The handle
// is removed even when the close itself fails.
func (m *Manager) ClosePage(contextID, pageID string) error {
	if pageID == "" {
		pageID = DefaultPageID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contexts[contextID]
	if !ok {
		return models.NewResourceError("close_page",
			fmt.Errorf("context %q: %w", contextID, models.ErrContextNotFound))
	}
	page, ok := c.pages[pageID]
	if !ok {
		return models.NewResourceError("close_page",
			fmt.Errorf("page %q: %w", pageID, models.ErrPageNotFound))
	}

	if err := page.Close(); err != nil {
		m.logger.Warn("error closing page", "context_id", contextID, "page_id", pageID, "error", err)
	}
	delete(c.pages, pageID)
	return nil
}

// CloseContext closes every page in the context, disposes the context
// and removes it from the manager. Individual close failures are logged
// and the teardown keeps going; a leaked handle is worse than a logged
// error.
func (m *Manager) CloseContext(contextID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.contexts[contextID]
	if !ok {
		return models.NewResourceError("close_context",
			fmt.Errorf("context %q: %w", contextID, models.ErrContextNotFound))
	}

	m.closeContextLocked(c)
	delete(m.contexts, contextID)
	return nil
}

// Close tears down all contexts and the browser process. Closed is
// terminal; calling Close again is a no-op.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateClosed {
		return nil
	}

	for id, c := range m.contexts {
		m.closeContextLocked(c)
		delete(m.contexts, id)
	}

	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.logger.Warn("error closing browser", "error", err)
		}
		m.browser = nil
	}

	m.state = StateClosed
	m.logger.Info("browser closed")
	return nil
}

// closeContextLocked cascades a close through a context's pages, then
// disposes the browsing context itself. Caller holds the mutex.
func (m *Manager) closeContextLocked(c *Context) {
	for pageID, page := range c.pages {
		if err := page.Close(); err != nil {
			m.logger.Warn("error closing page", "context_id", c.id, "page_id", pageID, "error", err)
		}
		delete(c.pages, pageID)
	}

	if c.incognito.BrowserContextID != "" {
		err := proto.TargetDisposeBrowserContext{
			BrowserContextID: c.incognito.BrowserContextID,
		}.Call(c.incognito)
		if err != nil {
			m.logger.Warn("error disposing context", "context_id", c.id, "error", err)
		}
	}

	m.logger.Info("context closed", "context_id", c.id)
}

// IsRunning reports whether the browser process is up.
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateLaunched
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ContextCount returns the number of registered contexts.
func (m *Manager) ContextCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.contexts)
}

// PageCount returns the number of open pages across all contexts.
func (m *Manager) PageCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, c := range m.contexts {
		count += len(c.pages)
	}
	return count
}

// Stats returns a snapshot of the manager for the health surface.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{
		State:    m.state.String(),
		Contexts: len(m.contexts),
	}
	for _, c := range m.contexts {
		stats.Pages += len(c.pages)
	}
	return stats
}

// Stats contains browser manager statistics.
type Stats struct {
	State    string `json:"state"`
	Contexts int    `json:"contexts"`
	Pages    int    `json:"pages"`
}
