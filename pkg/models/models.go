// Package models defines the domain models for the socialpulse backend
package models

import (
	"net/url"
	"time"
)

// Platform identifies one of the external social platforms a company can connect.
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformTikTok    Platform = "tiktok"
)

// AllPlatforms lists the platforms the onboarding flow offers, in display order.
var AllPlatforms = []Platform{
	PlatformInstagram,
	PlatformFacebook,
	PlatformLinkedIn,
	PlatformTikTok,
}

// HasAccount is the tri-state answer to "does the company have an account on
// this platform". Unknown means the user has not answered yet.
type HasAccount string

const (
	HasAccountUnknown HasAccount = "unknown"
	HasAccountYes     HasAccount = "yes"
	HasAccountNo      HasAccount = "no"
)

// PlatformConnection represents one external platform the company may or may
// not use. It is owned by the workflow controller for the duration of a session.
type PlatformConnection struct {
	Platform   Platform   `json:"platform"`
	ProfileURL string     `json:"profile_url,omitempty"`
	HasAccount HasAccount `json:"has_account"`
}

// Connected reports whether the connection carries a structurally valid
// profile URL. It is derived state, never stored.
func (c PlatformConnection) Connected() bool {
	if c.ProfileURL == "" {
		return false
	}
	u, err := url.Parse(c.ProfileURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// TaskPhase selects which per-platform subroutine the task executor runs.
type TaskPhase string

const (
	PhaseIngest  TaskPhase = "ingest"
	PhaseAnalyze TaskPhase = "analyze"
)

// PlatformTaskResult is the outcome of one ingestion or analysis attempt for
// one platform. Results are append-only; Seq records arrival order.
type PlatformTaskResult struct {
	Platform       Platform       `json:"platform"`
	Phase          TaskPhase      `json:"phase"`
	Success        bool           `json:"success"`
	ItemsProcessed int            `json:"items_processed"`
	Profile        map[string]any `json:"profile,omitempty"`
	Error          string         `json:"error,omitempty"`
	Seq            int            `json:"seq"`
}

// JobStatus is the five-state status of a watched remote job.
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

// Terminal reports whether no further transition is possible for this status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// JobWatch is one snapshot of an outstanding remote job being polled.
type JobWatch struct {
	JobID     string    `json:"job_id"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`
	StartedAt time.Time `json:"started_at"`
	Deadline  time.Time `json:"deadline"`
	Error     string    `json:"error,omitempty"`
}

// HandshakeState is the lifecycle state of one external authorization attempt.
type HandshakeState string

const (
	HandshakeIdle               HandshakeState = "idle"
	HandshakeOpening            HandshakeState = "opening"
	HandshakeAwaitingCredential HandshakeState = "awaiting_credential"
	HandshakeAwaitingCompletion HandshakeState = "awaiting_completion"
	HandshakeClosed             HandshakeState = "closed"
)

// WorkflowStep is one entry of the ordered onboarding step sequence.
type WorkflowStep struct {
	Index     int    `json:"index"`
	Label     string `json:"label"`
	Completed bool   `json:"completed"`
}

// PlatformConfig is the persisted per-platform configuration record.
type PlatformConfig struct {
	Username   string     `json:"username"`
	Platform   Platform   `json:"platform"`
	HasAccount HasAccount `json:"has_account"`
	ProfileURL string     `json:"profile_url,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Insight is one generated observation about a company's social presence.
// Insights are append-only.
type Insight struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Platform  Platform  `json:"platform,omitempty"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// Actionable is one suggested follow-up action derived from the insights.
// Actionables are append-only.
type Actionable struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Platform  Platform  `json:"platform,omitempty"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Done      bool      `json:"done"`
	CreatedAt time.Time `json:"created_at"`
}

// OnboardingStatus marks whether a company finished a given version of the
// onboarding workflow. A new workflow version restarts onboarding.
type OnboardingStatus struct {
	Username        string     `json:"username"`
	WorkflowVersion int        `json:"workflow_version"`
	Completed       bool       `json:"completed"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// CompanyProfile holds the company-level record created by init_profile.
type CompanyProfile struct {
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	Industry  string    `json:"industry,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
