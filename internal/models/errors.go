package models

import (
	"errors"
	"fmt"
)

// Sentinel conditions. These mark caller misuse of a handle or id and are
// matched with errors.Is through the typed wrappers below.
var (
	// ErrAlreadyLaunched is returned when Launch is called on a manager
	// that already holds a browser process.
	ErrAlreadyLaunched = errors.New("browser already launched")
	// ErrNotLaunched is returned when an operation needs a browser but
	// none has been launched.
	ErrNotLaunched = errors.New("browser not launched")
	// ErrManagerClosed is returned after Close; a closed manager cannot
	// be relaunched.
	ErrManagerClosed = errors.New("browser manager is closed")
	// ErrDuplicateContext is returned when a context id is already
	// registered.
	ErrDuplicateContext = errors.New("context id already registered")
	// ErrContextNotFound is returned for operations on an unregistered
	// context id.
	ErrContextNotFound = errors.New("context not found")
	// ErrPageNotFound is returned when closing a page id that was never
	// created.
	ErrPageNotFound = errors.New("page not found")

	// ErrAlreadyBound is returned when Start is called on a controller
	// that is already bound to a session.
	ErrAlreadyBound = errors.New("controller already bound to a session")
	// ErrSessionNotBound is returned when a pipeline operation needs a
	// bound session and none is set.
	ErrSessionNotBound = errors.New("no session bound")
	// ErrSessionNotFound is returned when a session id has no row.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidTransition is returned for a status transition the state
	// machine does not allow.
	ErrInvalidTransition = errors.New("invalid session transition")
)

// ResourceError wraps failures of the browser resource manager.
type ResourceError struct {
	Op  string
	Err error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("resource %s: %v", e.Op, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// NewResourceError creates a ResourceError for the given operation.
func NewResourceError(op string, err error) *ResourceError {
	return &ResourceError{Op: op, Err: err}
}

// SessionError wraps failures of the session controller.
type SessionError struct {
	Op        string
	SessionID string
	Err       error
}

func (e *SessionError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("session %s (%s): %v", e.Op, e.SessionID, e.Err)
	}
	return fmt.Sprintf("session %s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// NewSessionError creates a SessionError for the given operation.
func NewSessionError(op, sessionID string, err error) *SessionError {
	return &SessionError{Op: op, SessionID: sessionID, Err: err}
}

// PersistenceError wraps failures of the storage engine or its backing
// medium.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NewPersistenceError creates a PersistenceError for the given operation.
func NewPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

// RetryExhaustedError is returned after bounded retries are used up. It
// wraps the last observed failure.
type RetryExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

// ExtractionError reports a field-level extraction failure. It is
// recovered locally as an absent field and never aborts a scrape.
type ExtractionError struct {
	Field string
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract field %q: %v", e.Field, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ChallengeError reports an anti-bot challenge holding the page. Kind
// names the detected system (cloudflare, turnstile, hcaptcha, ...).
type ChallengeError struct {
	Kind string
	URL  string
}

func (e *ChallengeError) Error() string {
	return fmt.Sprintf("blocked by %s challenge at %s", e.Kind, e.URL)
}
