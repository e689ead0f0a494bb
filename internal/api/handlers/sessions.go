// Package handlers provides HTTP handlers for the powerbot status API.
package handlers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/fame0528/powerbot/internal/models"
	"github.com/fame0528/powerbot/internal/repository"
)

// SessionsHandler serves the session read surface and the admin purge.
type SessionsHandler struct {
	repos  *repository.Repositories
	logger *slog.Logger
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(repos *repository.Repositories, logger *slog.Logger) *SessionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionsHandler{repos: repos, logger: logger}
}

// ListSessionsInput represents a session listing request.
type ListSessionsInput struct {
	Limit  int    `query:"limit" default:"50" maximum:"500" doc:"Number of sessions to return"`
	Offset int    `query:"offset" default:"0" doc:"Offset for pagination"`
	Status string `query:"status" enum:",active,completed,failed,paused" doc:"Filter by status"`
}

// ListSessionsOutput represents a session listing response.
type ListSessionsOutput struct {
	Body struct {
		Sessions []*models.Session `json:"sessions"`
		Count    int               `json:"count"`
	}
}

// ListSessions returns recent sessions, optionally filtered by status.
func (h *SessionsHandler) ListSessions(ctx context.Context, input *ListSessionsInput) (*ListSessionsOutput, error) {
	var (
		sessions []*models.Session
		err      error
	)
	if input.Status != "" {
		sessions, err = h.repos.Session.ListByStatus(ctx, models.SessionStatus(input.Status))
	} else {
		sessions, err = h.repos.Session.List(ctx, input.Limit, input.Offset)
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list sessions: " + err.Error())
	}

	out := &ListSessionsOutput{}
	out.Body.Sessions = sessions
	out.Body.Count = len(sessions)
	return out, nil
}

// GetSessionInput represents a single-session request.
type GetSessionInput struct {
	SessionID string `path:"id" doc:"Session ID"`
}

// GetSessionOutput represents a single-session response.
type GetSessionOutput struct {
	Body models.Session
}

// GetSession returns one session by its public id.
func (h *SessionsHandler) GetSession(ctx context.Context, input *GetSessionInput) (*GetSessionOutput, error) {
	session, err := h.repos.Session.GetBySessionID(ctx, input.SessionID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load session: " + err.Error())
	}
	if session == nil {
		return nil, huma.Error404NotFound("session not found")
	}
	return &GetSessionOutput{Body: *session}, nil
}

// SessionRecordsOutput represents the extracted records of a session.
type SessionRecordsOutput struct {
	Body struct {
		SessionID string                  `json:"session_id"`
		Records   []*models.ScrapedRecord `json:"records"`
		Count     int                     `json:"count"`
	}
}

// ListRecords returns the extracted records of a session.
func (h *SessionsHandler) ListRecords(ctx context.Context, input *GetSessionInput) (*SessionRecordsOutput, error) {
	session, err := h.repos.Session.GetBySessionID(ctx, input.SessionID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load session: " + err.Error())
	}
	if session == nil {
		return nil, huma.Error404NotFound("session not found")
	}

	records, err := h.repos.ScrapedData.GetBySessionID(ctx, input.SessionID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load records: " + err.Error())
	}

	out := &SessionRecordsOutput{}
	out.Body.SessionID = input.SessionID
	out.Body.Records = records
	out.Body.Count = len(records)
	return out, nil
}

// SessionActionsOutput represents the action log of a session.
type SessionActionsOutput struct {
	Body struct {
		SessionID string                `json:"session_id"`
		Actions   []*models.ActionEntry `json:"actions"`
		Failures  int                   `json:"failures"`
	}
}

// ListActions returns the action log of a session.
func (h *SessionsHandler) ListActions(ctx context.Context, input *GetSessionInput) (*SessionActionsOutput, error) {
	session, err := h.repos.Session.GetBySessionID(ctx, input.SessionID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load session: " + err.Error())
	}
	if session == nil {
		return nil, huma.Error404NotFound("session not found")
	}

	actions, err := h.repos.ActionLog.GetBySessionID(ctx, input.SessionID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load actions: " + err.Error())
	}
	failures, err := h.repos.ActionLog.FailureCount(ctx, input.SessionID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to count failures: " + err.Error())
	}

	out := &SessionActionsOutput{}
	out.Body.SessionID = input.SessionID
	out.Body.Actions = actions
	out.Body.Failures = failures
	return out, nil
}

// DeleteSessionOutput represents the purge response.
type DeleteSessionOutput struct {
	Body struct {
		SessionID string `json:"session_id"`
		Deleted   bool   `json:"deleted"`
	}
}

// DeleteSession purges a session and its dependent rows.
func (h *SessionsHandler) DeleteSession(ctx context.Context, input *GetSessionInput) (*DeleteSessionOutput, error) {
	if err := h.repos.Session.Delete(ctx, input.SessionID); err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			return nil, huma.Error404NotFound("session not found")
		}
		return nil, huma.Error500InternalServerError("failed to delete session: " + err.Error())
	}

	h.logger.Info("session purged", "session_id", input.SessionID)

	out := &DeleteSessionOutput{}
	out.Body.SessionID = input.SessionID
	out.Body.Deleted = true
	return out, nil
}
