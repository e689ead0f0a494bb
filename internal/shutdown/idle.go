// Package shutdown signals process exit when the service goes idle.
// A bot deployed for a one-shot run serves its results for a while and
// then has no reason to keep a browser-capable machine warm.
package shutdown

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Monitor tracks API activity and closes ShutdownChan after the
// configured stretch of inactivity with no requests in flight. A zero
// or negative timeout disables it.
type Monitor struct {
	timeout      time.Duration
	logger       *slog.Logger
	active       atomic.Int64
	lastActivity atomic.Value // time.Time
	stopCh       chan struct{}
	shutdownCh   chan struct{}
	wg           sync.WaitGroup
}

func NewMonitor(timeout time.Duration, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{
		timeout:    timeout,
		logger:     logger.With("component", "idle"),
		stopCh:     make(chan struct{}),
		shutdownCh: make(chan struct{}),
	}
	m.lastActivity.Store(time.Now())
	return m
}

// Start begins watching for the idle condition. A disabled monitor
// starts nothing and its ShutdownChan never closes.
func (m *Monitor) Start() {
	if m.timeout <= 0 {
		m.logger.Debug("idle shutdown disabled")
		return
	}
	m.logger.Info("idle shutdown armed", "timeout", m.timeout)
	m.wg.Add(1)
	go m.run()
}

// Stop ends the watch. Call once, after Start.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
}

// ShutdownChan is closed when the idle timeout is reached. Select on
// it alongside the signal channel.
func (m *Monitor) ShutdownChan() <-chan struct{} {
	return m.shutdownCh
}

func (m *Monitor) run() {
	defer m.wg.Done()

	// Check faster for short timeouts so the signal does not lag the
	// deadline by a full tick.
	interval := m.timeout / 4
	if interval > 10*time.Second {
		interval = 10 * time.Second
	}
	if interval < 25*time.Millisecond {
		interval = 25 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			idle := time.Since(m.lastActivity.Load().(time.Time))
			if idle > m.timeout && m.active.Load() == 0 {
				m.logger.Info("idle timeout reached, requesting shutdown",
					"idle", idle.Round(time.Millisecond),
					"timeout", m.timeout,
				)
				close(m.shutdownCh)
				return
			}
		}
	}
}

// Track registers an in-flight request and returns its completion
// callback. Health probes are exempt so a load balancer cannot keep
// the process alive by itself.
func (m *Monitor) Track(r *http.Request) func() {
	if isHealthProbe(r) {
		return func() {}
	}

	m.active.Add(1)
	m.lastActivity.Store(time.Now())

	return func() {
		m.active.Add(-1)
		m.lastActivity.Store(time.Now())
	}
}

// Middleware tracks every request passing through it.
func (m *Monitor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		done := m.Track(r)
		defer done()
		next.ServeHTTP(w, r)
	})
}

// Active reports the number of requests currently in flight.
func (m *Monitor) Active() int64 {
	return m.active.Load()
}

// LastActivity reports when the last counted request started or ended.
func (m *Monitor) LastActivity() time.Time {
	return m.lastActivity.Load().(time.Time)
}

func isHealthProbe(r *http.Request) bool {
	switch r.URL.Path {
	case "/health", "/healthz", "/livez", "/readyz":
		return true
	}
	return strings.Contains(r.Header.Get("User-Agent"), "HealthCheck")
}
