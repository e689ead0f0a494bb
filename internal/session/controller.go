// Package session implements the automation session state machine. A
// Controller binds to at most one session for its lifetime; build a new
// controller for a new run.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/fame0528/powerbot/internal/models"
	"github.com/fame0528/powerbot/internal/repository"
)

// allowedTransitions is the session state machine. Completed and failed
// are terminal; paused rows may be re-activated or finalized.
var allowedTransitions = map[models.SessionStatus][]models.SessionStatus{
	models.SessionStatusActive: {
		models.SessionStatusCompleted,
		models.SessionStatusFailed,
		models.SessionStatusPaused,
	},
	models.SessionStatusPaused: {
		models.SessionStatusActive,
		models.SessionStatusCompleted,
		models.SessionStatusFailed,
	},
}

func transitionAllowed(from, to models.SessionStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Controller drives one session through its lifecycle and persists every
// state change.
type Controller struct {
	mu      sync.Mutex
	repo    repository.SessionRepository
	logger  *slog.Logger
	current *models.Session
}

// NewController creates an unbound controller.
func NewController(repo repository.SessionRepository, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		repo:   repo,
		logger: logger.With("component", "session"),
	}
}

// Start creates a new active session for the target URL, binds the
// controller to it and returns the session id. Starting an already
// bound controller fails with ErrAlreadyBound.
func (c *Controller) Start(ctx context.Context, targetURL string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		return "", models.NewSessionError("start", c.current.SessionID, models.ErrAlreadyBound)
	}

	now := time.Now().UTC()
	session := &models.Session{
		SessionID: ulid.Make().String(),
		TargetURL: targetURL,
		Status:    models.SessionStatusActive,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := c.repo.Create(ctx, session); err != nil {
		return "", models.NewSessionError("start", session.SessionID, err)
	}

	c.current = session
	c.logger.Info("session started", "session_id", session.SessionID, "target_url", targetURL)
	return session.SessionID, nil
}

// Transition moves the bound session to a new status. Terminal statuses
// stamp EndedAt. A non-empty errorMessage is merged into the metadata
// map under the last_error key; the merge is read-merge-write, so
// concurrent writers on the same session id can lose updates.
func (c *Controller) Transition(ctx context.Context, status models.SessionStatus, errorMessage string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return models.NewSessionError("transition", "", models.ErrSessionNotBound)
	}
	sessionID := c.current.SessionID

	if !status.Valid() {
		return models.NewSessionError("transition", sessionID,
			fmt.Errorf("unknown status %q: %w", status, models.ErrInvalidTransition))
	}

	// Re-read the row so metadata written by others since our last
	// write survives the merge.
	session, err := c.repo.GetBySessionID(ctx, sessionID)
	if err != nil {
		return models.NewSessionError("transition", sessionID, err)
	}
	if session == nil {
		return models.NewSessionError("transition", sessionID, models.ErrSessionNotFound)
	}

	if !transitionAllowed(session.Status, status) {
		return models.NewSessionError("transition", sessionID,
			fmt.Errorf("%s -> %s: %w", session.Status, status, models.ErrInvalidTransition))
	}

	session.Status = status
	if status.IsTerminal() {
		now := time.Now().UTC()
		session.EndedAt = &now
	}
	if errorMessage != "" {
		if session.Metadata == nil {
			session.Metadata = make(map[string]string)
		}
		session.Metadata[models.MetadataKeyLastError] = errorMessage
	}

	if err := c.repo.Update(ctx, session); err != nil {
		return models.NewSessionError("transition", sessionID, err)
	}

	c.current = session
	c.logger.Info("session transitioned", "session_id", sessionID, "status", string(status))
	return nil
}

// Complete finalizes the bound session as completed.
func (c *Controller) Complete(ctx context.Context) error {
	return c.Transition(ctx, models.SessionStatusCompleted, "")
}

// Fail finalizes the bound session as failed, recording the cause.
func (c *Controller) Fail(ctx context.Context, errorMessage string) error {
	return c.Transition(ctx, models.SessionStatusFailed, errorMessage)
}

// Current returns the bound session id, empty when unbound.
func (c *Controller) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return ""
	}
	return c.current.SessionID
}
