// Package models defines the domain models for powerbot.
package models

import (
	"time"
)

// SessionStatus represents the lifecycle status of an automation session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
	SessionStatusPaused    SessionStatus = "paused"
)

// IsTerminal reports whether the status ends a session. Paused sessions
// may still be re-activated or finalized.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusFailed
}

// Valid reports whether the status is one of the known values.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusActive, SessionStatusCompleted, SessionStatusFailed, SessionStatusPaused:
		return true
	}
	return false
}

// MetadataKeyLastError is the reserved metadata key the session controller
// uses to record the message that caused a failure transition.
const MetadataKeyLastError = "last_error"

// Session represents one logical automation run, tracked independently of
// any particular browser resource. EndedAt is set if and only if the
// status is completed or failed.
type Session struct {
	ID        int64             `json:"id"`
	SessionID string            `json:"session_id"`
	TargetURL string            `json:"target_url"`
	Status    SessionStatus     `json:"status"`
	StartedAt time.Time         `json:"started_at"`
	EndedAt   *time.Time        `json:"ended_at,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Document is one extracted structured document. Field values are opaque
// to the pipeline; an empty document is treated as "nothing extracted".
type Document map[string]any

// ScrapedRecord is one extracted document bound to a session. Records are
// created only by the extraction pipeline and never mutated afterwards.
type ScrapedRecord struct {
	ID        int64             `json:"id"`
	SessionID string            `json:"session_id"`
	DataType  string            `json:"data_type"`
	Content   Document          `json:"content"`
	URL       string            `json:"url,omitempty"`
	ScrapedAt time.Time         `json:"scraped_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// CapturedState is a session-scoped opaque snapshot (page HTML, cookie
// dump, screenshot reference).
type CapturedState struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	StateType  string    `json:"state_type"`
	Data       string    `json:"data"`
	CapturedAt time.Time `json:"captured_at"`
}

// ActionEntry records the outcome of a single page action.
type ActionEntry struct {
	ID           int64     `json:"id"`
	SessionID    string    `json:"session_id"`
	Action       string    `json:"action"`
	Selector     string    `json:"selector,omitempty"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
	DurationMs   int64     `json:"duration_ms"`
	LoggedAt     time.Time `json:"logged_at"`
}
