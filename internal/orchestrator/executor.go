package orchestrator

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"socialpulse/backend/internal/gateway"
	"socialpulse/backend/pkg/models"
)

// DefaultPlatformDelay is the pause inserted between platform tasks to avoid
// bursting shared external rate limits.
const DefaultPlatformDelay = 500 * time.Millisecond

// ProgressFn is invoked before each platform task so the UI can surface
// "currently processing X".
type ProgressFn func(platform models.Platform)

// TaskExecutor runs one data-ingestion or analysis task per connected
// platform. Platforms are processed sequentially to bound load on shared
// external quota and to produce a deterministic progress sequence. One
// platform's failure never aborts the batch.
type TaskExecutor struct {
	gw         gateway.Invoker
	logger     Logger
	delay      time.Duration
	onProgress ProgressFn
}

// ExecutorOption customizes a TaskExecutor.
type ExecutorOption func(*TaskExecutor)

// WithPlatformDelay overrides the pause between platform tasks.
func WithPlatformDelay(d time.Duration) ExecutorOption {
	return func(e *TaskExecutor) { e.delay = d }
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFn) ExecutorOption {
	return func(e *TaskExecutor) { e.onProgress = fn }
}

// NewTaskExecutor creates a new TaskExecutor.
func NewTaskExecutor(gw gateway.Invoker, logger Logger, opts ...ExecutorOption) *TaskExecutor {
	e := &TaskExecutor{
		gw:     gw,
		logger: logger,
		delay:  DefaultPlatformDelay,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunAll runs the phase task for every connected platform, in connection
// order, and returns one result per attempted platform. There is no overall
// failure state; callers inspect the per-result success flags. An empty or
// fully unconnected input returns an empty list without any remote call.
func (e *TaskExecutor) RunAll(ctx context.Context, session *Session, conns []models.PlatformConnection, phase models.TaskPhase) []models.PlatformTaskResult {
	connected := make([]models.PlatformConnection, 0, len(conns))
	for _, c := range conns {
		if c.Connected() {
			connected = append(connected, c)
		}
	}

	results := make([]models.PlatformTaskResult, 0, len(connected))
	for i, conn := range connected {
		if e.onProgress != nil {
			e.onProgress(conn.Platform)
		}

		res := e.runOne(ctx, session, conn, phase)
		res.Seq = i + 1
		results = append(results, res)
		taskRuns.Add(ctx, 1, platformAttrs(string(conn.Platform), string(phase), res.Success))

		if res.Success {
			e.logger.Info("platform task finished", "platform", conn.Platform, "phase", phase, "items", res.ItemsProcessed)
		} else {
			e.logger.Warn("platform task failed, continuing with next platform", "platform", conn.Platform, "phase", phase, "error", res.Error)
		}

		if e.delay > 0 && i < len(connected)-1 {
			select {
			case <-ctx.Done():
				return results
			case <-time.After(e.delay):
			}
		}
	}
	return results
}

// runOne dispatches to the phase-specific subroutine for one platform. Each
// platform has its own payload shape and identifier extraction rule; any
// failure is converted into an unsuccessful result at this boundary.
func (e *TaskExecutor) runOne(ctx context.Context, session *Session, conn models.PlatformConnection, phase models.TaskPhase) models.PlatformTaskResult {
	res := models.PlatformTaskResult{Platform: conn.Platform, Phase: phase}

	var data map[string]any
	var err error
	switch conn.Platform {
	case models.PlatformInstagram:
		data, err = e.runInstagram(ctx, session, conn, phase)
	case models.PlatformFacebook:
		data, err = e.runFacebook(ctx, session, conn, phase)
	case models.PlatformLinkedIn:
		data, err = e.runLinkedIn(ctx, session, conn, phase)
	case models.PlatformTikTok:
		data, err = e.runTikTok(ctx, session, conn, phase)
	default:
		err = fmt.Errorf("no task routine for platform %q", conn.Platform)
	}
	if err != nil {
		res.Error = err.Error()
		return res
	}

	res.Success = true
	res.ItemsProcessed = intField(data, "postsFound")
	if profile, ok := data["profile"].(map[string]any); ok {
		res.Profile = profile
	}
	return res
}

func (e *TaskExecutor) runInstagram(ctx context.Context, session *Session, conn models.PlatformConnection, phase models.TaskPhase) (map[string]any, error) {
	handle, err := lastPathSegment(conn.ProfileURL)
	if err != nil {
		return nil, fmt.Errorf("instagram profile URL yields no username: %w", err)
	}
	op := "get_posts"
	if phase == models.PhaseAnalyze {
		op = "analyze_posts"
	}
	return e.gw.Invoke(ctx, op, map[string]any{
		"username":  session.Username(),
		"ig_handle": handle,
	})
}

var facebookPageID = regexp.MustCompile(`(\d{5,})`)

func (e *TaskExecutor) runFacebook(ctx context.Context, session *Session, conn models.PlatformConnection, phase models.TaskPhase) (map[string]any, error) {
	m := facebookPageID.FindString(conn.ProfileURL)
	if m == "" {
		return nil, fmt.Errorf("facebook profile URL %q yields no numeric page id", conn.ProfileURL)
	}
	op := "get_page_posts"
	if phase == models.PhaseAnalyze {
		op = "analyze_page"
	}
	return e.gw.Invoke(ctx, op, map[string]any{
		"username": session.Username(),
		"page_id":  m,
	})
}

func (e *TaskExecutor) runLinkedIn(ctx context.Context, session *Session, conn models.PlatformConnection, phase models.TaskPhase) (map[string]any, error) {
	slug, err := pathSegmentAfter(conn.ProfileURL, "company")
	if err != nil {
		return nil, fmt.Errorf("linkedin profile URL yields no company slug: %w", err)
	}
	op := "get_company_posts"
	if phase == models.PhaseAnalyze {
		op = "analyze_company"
	}
	return e.gw.Invoke(ctx, op, map[string]any{
		"username":     session.Username(),
		"company_slug": slug,
	})
}

func (e *TaskExecutor) runTikTok(ctx context.Context, session *Session, conn models.PlatformConnection, phase models.TaskPhase) (map[string]any, error) {
	seg, err := lastPathSegment(conn.ProfileURL)
	if err != nil {
		return nil, fmt.Errorf("tiktok profile URL yields no handle: %w", err)
	}
	handle := strings.TrimPrefix(seg, "@")
	if handle == "" {
		return nil, fmt.Errorf("tiktok profile URL %q yields no handle", conn.ProfileURL)
	}
	op := "get_videos"
	if phase == models.PhaseAnalyze {
		op = "analyze_videos"
	}
	return e.gw.Invoke(ctx, op, map[string]any{
		"username": session.Username(),
		"handle":   handle,
	})
}

// lastPathSegment returns the last non-empty path segment of a profile URL.
func lastPathSegment(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	last := segments[len(segments)-1]
	if last == "" {
		return "", fmt.Errorf("url %q has an empty path", raw)
	}
	return last, nil
}

// pathSegmentAfter returns the path segment following the named one, e.g. the
// company slug after "company" in a linkedin URL.
func pathSegmentAfter(raw, name string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, s := range segments {
		if s == name && i+1 < len(segments) && segments[i+1] != "" {
			return segments[i+1], nil
		}
	}
	return "", fmt.Errorf("url %q has no segment after %q", raw, name)
}

// intField coerces a numeric JSON field to int. The orchestrator treats
// provider counts only as integers for reporting.
func intField(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
