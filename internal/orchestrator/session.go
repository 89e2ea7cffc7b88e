// Package orchestrator implements the asynchronous onboarding/connection
// orchestrator: the workflow step controller, the platform task executor, the
// connection handshake manager and the generic job poller.
package orchestrator

import (
	"sync"

	"socialpulse/backend/pkg/models"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Session carries the state of one onboarding run. It is passed explicitly
// through the controller, executor and handshake manager instead of living in
// ambient shared state. The controller owns mutation of connections and
// results; the username is the one field the handshake manager also writes,
// so it is guarded by the session's own lock.
type Session struct {
	mu sync.Mutex
	// username is the provider-side company/session identifier. Empty until
	// init_profile has run.
	username string

	// Company is the display name the user entered during configuration.
	Company string
	// WorkflowVersion keys the persisted "onboarding completed" marker.
	WorkflowVersion int
	// Connections is the per-platform configuration for this run.
	Connections []models.PlatformConnection
	// Results accumulates platform task results in arrival order. Append-only
	// within a run; discarded on restart.
	Results []models.PlatformTaskResult
}

// Username returns the provider-side identifier, empty until init_profile has
// run.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// SetUsername records the provider-assigned identifier.
func (s *Session) SetUsername(username string) {
	s.mu.Lock()
	s.username = username
	s.mu.Unlock()
}

// NewSession creates a session with one unanswered connection per platform.
func NewSession(company string, workflowVersion int) *Session {
	conns := make([]models.PlatformConnection, 0, len(models.AllPlatforms))
	for _, p := range models.AllPlatforms {
		conns = append(conns, models.PlatformConnection{
			Platform:   p,
			HasAccount: models.HasAccountUnknown,
		})
	}
	return &Session{
		Company:         company,
		WorkflowVersion: workflowVersion,
		Connections:     conns,
	}
}
