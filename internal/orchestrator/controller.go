package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"socialpulse/backend/internal/gateway"
	"socialpulse/backend/internal/repository"
	"socialpulse/backend/pkg/models"
)

// Step indices of the onboarding workflow.
const (
	StepConfigure = iota
	StepIngest
	StepAnalyze
	StepComplete
)

var stepLabels = [...]string{
	StepConfigure: "Configure your channels",
	StepIngest:    "Fetch your content",
	StepAnalyze:   "Analyze your presence",
	StepComplete:  "All set",
}

// ErrStepNotReady is returned when Advance is called while the current step's
// readiness conditions are not met.
var ErrStepNotReady = errors.New("current step is not ready to advance")

// ErrWorkflowComplete is returned when Advance is called on the final step.
var ErrWorkflowComplete = errors.New("workflow is already complete")

// Controller is the top-level state machine sequencing configuration,
// ingestion, analysis and completion. Advancing from a step first executes
// the side-effecting action bound to it and only then moves the index; a
// fully failed action keeps the index unchanged. Backward navigation is a
// pure index decrement.
type Controller struct {
	store     repository.Store
	gw        gateway.Invoker
	executor  *TaskExecutor
	handshake *HandshakeManager
	poller    *JobPoller
	logger    Logger

	pollInterval time.Duration
	pollTimeout  time.Duration

	mu      sync.Mutex
	steps   []models.WorkflowStep
	index   int
	running bool
	session *Session
}

// ControllerOption customizes a Controller.
type ControllerOption func(*Controller)

// WithPollSettings overrides the aggregation job poll interval and deadline.
func WithPollSettings(interval, timeout time.Duration) ControllerOption {
	return func(c *Controller) {
		c.pollInterval = interval
		c.pollTimeout = timeout
	}
}

// NewController creates a new Controller for one onboarding session.
func NewController(store repository.Store, gw gateway.Invoker, executor *TaskExecutor, handshake *HandshakeManager, poller *JobPoller, session *Session, logger Logger, opts ...ControllerOption) *Controller {
	c := &Controller{
		store:        store,
		gw:           gw,
		executor:     executor,
		handshake:    handshake,
		poller:       poller,
		logger:       logger,
		pollInterval: DefaultWatchInterval,
		pollTimeout:  DefaultWatchTimeout,
		steps:        newSteps(),
		session:      session,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newSteps() []models.WorkflowStep {
	steps := make([]models.WorkflowStep, len(stepLabels))
	for i, label := range stepLabels {
		steps[i] = models.WorkflowStep{Index: i, Label: label}
	}
	return steps
}

// Status is a read-only snapshot of the workflow state for the UI.
type Status struct {
	Steps      []models.WorkflowStep       `json:"steps"`
	Index      int                         `json:"index"`
	Running    bool                        `json:"running"`
	CanProceed bool                        `json:"can_proceed"`
	Handshake  models.HandshakeState       `json:"handshake"`
	Results    []models.PlatformTaskResult `json:"results"`
}

// Status returns a snapshot of the current workflow state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	steps := make([]models.WorkflowStep, len(c.steps))
	copy(steps, c.steps)
	results := make([]models.PlatformTaskResult, len(c.session.Results))
	copy(results, c.session.Results)
	return Status{
		Steps:      steps,
		Index:      c.index,
		Running:    c.running,
		CanProceed: c.canProceedLocked(),
		Handshake:  c.handshake.State(),
		Results:    results,
	}
}

// Connections returns a copy of the session's platform connections.
func (c *Controller) Connections() []models.PlatformConnection {
	c.mu.Lock()
	defer c.mu.Unlock()
	conns := make([]models.PlatformConnection, len(c.session.Connections))
	copy(conns, c.session.Connections)
	return conns
}

// Username returns the session username, empty until init_profile has run.
func (c *Controller) Username() string {
	return c.session.Username()
}

// CanProceed reports whether Advance would be allowed right now.
func (c *Controller) CanProceed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canProceedLocked()
}

func (c *Controller) canProceedLocked() bool {
	if c.running || c.index >= StepComplete {
		return false
	}
	if c.index == StepConfigure {
		// every platform must be answered before configuration is done
		for _, conn := range c.session.Connections {
			if conn.HasAccount == models.HasAccountUnknown {
				return false
			}
		}
	}
	return true
}

// Advance executes the action bound to the current step and, if it does not
// fully fail, moves to the next step. Partial per-platform failures are
// tolerated; only a failure of the step's own required action keeps the
// index unchanged.
func (c *Controller) Advance(ctx context.Context) error {
	c.mu.Lock()
	if c.index >= StepComplete {
		c.mu.Unlock()
		return ErrWorkflowComplete
	}
	if !c.canProceedLocked() {
		c.mu.Unlock()
		return ErrStepNotReady
	}
	index := c.index
	c.running = true
	c.mu.Unlock()

	err := c.runStepAction(ctx, index)

	c.mu.Lock()
	c.running = false
	if err == nil && c.index == index {
		c.steps[c.index].Completed = true
		c.index++
	}
	c.mu.Unlock()

	if err != nil {
		stepAdvances.Add(ctx, 1, outcomeAttrs("failed"))
		return err
	}
	stepAdvances.Add(ctx, 1, outcomeAttrs("advanced"))
	return nil
}

// Previous moves back one step. Backward navigation is always allowed and
// has no side effects.
func (c *Controller) Previous() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index > 0 {
		c.index--
	}
}

// Restart resets the workflow to the first step and discards accumulated
// task results. Connections keep their answers.
func (c *Controller) Restart() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = newSteps()
	c.index = 0
	c.session.Results = nil
}

// UpdateConnection records the user's answer for one platform.
func (c *Controller) UpdateConnection(platform models.Platform, profileURL string, hasAccount models.HasAccount) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.session.Connections {
		if c.session.Connections[i].Platform == platform {
			c.session.Connections[i].ProfileURL = profileURL
			c.session.Connections[i].HasAccount = hasAccount
			return nil
		}
	}
	return fmt.Errorf("unknown platform %q", platform)
}

// StartHandshake opens the external authorization flow for every platform the
// user said they have an account on.
func (c *Controller) StartHandshake(ctx context.Context) error {
	c.mu.Lock()
	var platforms []models.Platform
	for _, conn := range c.session.Connections {
		if conn.HasAccount == models.HasAccountYes {
			platforms = append(platforms, conn.Platform)
		}
	}
	session := c.session
	c.mu.Unlock()

	if len(platforms) == 0 {
		return fmt.Errorf("no platforms selected for connection")
	}
	return c.handshake.Start(ctx, session, platforms)
}

// StopHandshake abandons the in-flight authorization attempt, if any.
func (c *Controller) StopHandshake() {
	c.handshake.Stop()
}

// RefreshConnections re-queries connection state from the provider, typically
// after the handshake surface closed. Failures are logged, not fatal: the
// session keeps its previous state until the next refresh.
func (c *Controller) RefreshConnections(ctx context.Context) {
	username := c.session.Username()

	data, err := c.gw.Invoke(ctx, "get_connections", map[string]any{"username": username})
	if err != nil {
		c.logger.Warn("connection refresh failed", "error", err)
		return
	}
	raw, ok := data["connections"].([]any)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, item := range raw {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		platform, _ := entry["platform"].(string)
		profileURL, _ := entry["profile_url"].(string)
		for i := range c.session.Connections {
			if string(c.session.Connections[i].Platform) != platform {
				continue
			}
			if profileURL != "" {
				c.session.Connections[i].ProfileURL = profileURL
				c.session.Connections[i].HasAccount = models.HasAccountYes
			}
		}
	}
}

func (c *Controller) runStepAction(ctx context.Context, index int) error {
	switch index {
	case StepConfigure:
		return c.persistConfiguration(ctx)
	case StepIngest:
		c.runPlatformTasks(ctx, models.PhaseIngest)
		return nil
	case StepAnalyze:
		return c.analyzeAndConsolidate(ctx)
	default:
		return nil
	}
}

// persistConfiguration writes the tri-state record for every platform.
func (c *Controller) persistConfiguration(ctx context.Context) error {
	c.mu.Lock()
	username := c.session.Username()
	conns := make([]models.PlatformConnection, len(c.session.Connections))
	copy(conns, c.session.Connections)
	c.mu.Unlock()

	for _, conn := range conns {
		cfg := &models.PlatformConfig{
			Username:   username,
			Platform:   conn.Platform,
			HasAccount: conn.HasAccount,
			ProfileURL: conn.ProfileURL,
		}
		if err := c.store.SavePlatformConfig(ctx, cfg); err != nil {
			return fmt.Errorf("persist configuration for %s: %w", conn.Platform, err)
		}
	}
	return nil
}

// runPlatformTasks fans the phase out to every connected platform and appends
// the results to the session in arrival order.
func (c *Controller) runPlatformTasks(ctx context.Context, phase models.TaskPhase) []models.PlatformTaskResult {
	c.mu.Lock()
	session := c.session
	conns := make([]models.PlatformConnection, len(c.session.Connections))
	copy(conns, c.session.Connections)
	c.mu.Unlock()

	results := c.executor.RunAll(ctx, session, conns, phase)

	c.mu.Lock()
	base := len(c.session.Results)
	for i := range results {
		results[i].Seq = base + i + 1
	}
	c.session.Results = append(c.session.Results, results...)
	c.mu.Unlock()
	return results
}

// analyzeAndConsolidate runs the per-platform analysis tasks, then the
// cross-platform aggregation, then persists the generated insights and
// actionables and marks onboarding complete. Per-platform analysis failures
// are tolerated; a failed consolidation fails the whole step.
func (c *Controller) analyzeAndConsolidate(ctx context.Context) error {
	c.runPlatformTasks(ctx, models.PhaseAnalyze)

	c.mu.Lock()
	username := c.session.Username()
	version := c.session.WorkflowVersion
	c.mu.Unlock()

	data, err := c.gw.Invoke(ctx, "aggregate_insights", map[string]any{"username": username})
	if err != nil {
		return fmt.Errorf("consolidate insights: %w", err)
	}

	// Large accounts are aggregated asynchronously; the op then returns a job
	// id to poll instead of immediate results.
	if jobID, ok := data["jobId"].(string); ok && jobID != "" {
		data, err = c.awaitAggregation(ctx, jobID)
		if err != nil {
			return err
		}
	}

	if err := c.persistGenerated(ctx, username, data); err != nil {
		return err
	}

	c.logger.Info("analysis consolidated",
		"insights", intField(data, "insightsGenerated"),
		"actionables", intField(data, "actionablesGenerated"))

	if err := c.store.SetOnboardingCompleted(ctx, username, version); err != nil {
		return fmt.Errorf("mark onboarding complete: %w", err)
	}
	return nil
}

// awaitAggregation watches the remote aggregation job and fetches its result
// once done.
func (c *Controller) awaitAggregation(ctx context.Context, jobID string) (map[string]any, error) {
	check := func(ctx context.Context, jobID string) (map[string]any, error) {
		return c.gw.Invoke(ctx, "get_job_status", map[string]any{"job_id": jobID})
	}

	var last models.JobWatch
	terminal := false
	for snap := range c.poller.Watch(ctx, jobID, check, c.pollInterval, c.pollTimeout) {
		last = snap
		terminal = snap.Status.Terminal()
	}
	if !terminal {
		return nil, fmt.Errorf("aggregation job %s watch cancelled", jobID)
	}
	if last.Status != models.JobStatusDone {
		return nil, fmt.Errorf("aggregation job %s failed: %s", jobID, last.Error)
	}

	return c.gw.Invoke(ctx, "get_aggregation_result", map[string]any{"job_id": jobID})
}

// persistGenerated appends the insights and actionables the aggregation
// produced. The orchestrator treats their content as opaque.
func (c *Controller) persistGenerated(ctx context.Context, username string, data map[string]any) error {
	for _, item := range anySlice(data["insights"]) {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		insight := &models.Insight{
			ID:       uuid.New().String(),
			Username: username,
			Platform: models.Platform(stringField(entry, "platform")),
			Title:    stringField(entry, "title"),
			Body:     stringField(entry, "body"),
		}
		if err := c.store.AddInsight(ctx, insight); err != nil {
			return fmt.Errorf("persist insight: %w", err)
		}
	}
	for _, item := range anySlice(data["actionables"]) {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		actionable := &models.Actionable{
			ID:       uuid.New().String(),
			Username: username,
			Platform: models.Platform(stringField(entry, "platform")),
			Title:    stringField(entry, "title"),
			Body:     stringField(entry, "body"),
		}
		if err := c.store.AddActionable(ctx, actionable); err != nil {
			return fmt.Errorf("persist actionable: %w", err)
		}
	}
	return nil
}

func anySlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}
