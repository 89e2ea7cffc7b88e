package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"socialpulse/backend/internal/gateway"
	"socialpulse/backend/pkg/models"
)

// DefaultWatchTimeout is the hard deadline applied when Watch is called with
// a non-positive timeout.
const DefaultWatchTimeout = 10 * time.Minute

// DefaultWatchInterval is the poll interval applied when Watch is called with
// a non-positive interval.
const DefaultWatchInterval = 2 * time.Second

// CheckFn queries the remote side for the current state of a job. It is
// supplied by the caller and typically wraps a gateway operation.
type CheckFn func(ctx context.Context, jobID string) (map[string]any, error)

// statusProgress is the coarse progress estimate per status. This is a UX
// signal, not a measurement.
var statusProgress = map[models.JobStatus]int{
	models.JobStatusPending: 10,
	models.JobStatusQueued:  25,
	models.JobStatusRunning: 60,
	models.JobStatusDone:    100,
	models.JobStatusFailed:  0,
}

// JobPoller watches asynchronous remote jobs to completion. A poller owns at
// most one active watch; starting a new watch cancels and replaces the
// previous one.
type JobPoller struct {
	logger Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewJobPoller creates a new JobPoller.
func NewJobPoller(logger Logger) *JobPoller {
	return &JobPoller{logger: logger}
}

// Watch polls check every interval until the job reaches a terminal status or
// the timeout elapses, pushing JobWatch snapshots onto the returned channel.
// One immediate check happens before the first tick. The channel is closed
// when the watch ends; at most one terminal snapshot is ever emitted. A watch
// cancelled via Stop or ctx emits no terminal snapshot.
func (p *JobPoller) Watch(ctx context.Context, jobID string, check CheckFn, interval, timeout time.Duration) <-chan models.JobWatch {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	if timeout <= 0 {
		timeout = DefaultWatchTimeout
	}

	wctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.cancel = cancel
	p.mu.Unlock()

	out := make(chan models.JobWatch, 1)
	go p.run(wctx, jobID, check, interval, timeout, out)
	return out
}

// Stop cancels the active watch, if any. Calling it after the watch has
// terminated is a no-op.
func (p *JobPoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *JobPoller) run(ctx context.Context, jobID string, check CheckFn, interval, timeout time.Duration, out chan<- models.JobWatch) {
	defer close(out)

	start := time.Now()
	deadline := start.Add(timeout)

	// immediate first check
	if terminal := p.checkOnce(ctx, jobID, check, start, deadline, out); terminal {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// deadline and terminal status are both evaluated on every tick
			if time.Since(start) >= timeout {
				p.emit(ctx, out, models.JobWatch{
					JobID:     jobID,
					Status:    models.JobStatusFailed,
					Progress:  statusProgress[models.JobStatusFailed],
					StartedAt: start,
					Deadline:  deadline,
					Error:     fmt.Sprintf("Timeout: job %s did not finish within %s", jobID, timeout),
				})
				return
			}
			if terminal := p.checkOnce(ctx, jobID, check, start, deadline, out); terminal {
				return
			}
		}
	}
}

// checkOnce performs a single status check and emits a snapshot. It returns
// true when the watch must stop.
func (p *JobPoller) checkOnce(ctx context.Context, jobID string, check CheckFn, start, deadline time.Time, out chan<- models.JobWatch) bool {
	data, err := check(ctx, jobID)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		// A failed check does not fail the watch; the next tick retries.
		if gateway.IsTransport(err) {
			p.logger.Warn("job check failed, will retry on next tick", "job_id", jobID, "error", err)
		} else {
			p.logger.Error("job check failed, will retry on next tick", "job_id", jobID, "error", err)
		}
		return false
	}

	status := mapJobStatus(data)
	snap := models.JobWatch{
		JobID:     jobID,
		Status:    status,
		Progress:  statusProgress[status],
		StartedAt: start,
		Deadline:  deadline,
	}
	if status == models.JobStatusFailed {
		if msg, ok := data["error"].(string); ok {
			snap.Error = msg
		}
	}

	if status.Terminal() {
		p.emit(ctx, out, snap)
		return true
	}

	// Non-terminal snapshots are dropped if the consumer is behind; only the
	// terminal emission is guaranteed delivery.
	select {
	case out <- snap:
	default:
	}
	return false
}

func (p *JobPoller) emit(ctx context.Context, out chan<- models.JobWatch, snap models.JobWatch) {
	select {
	case out <- snap:
	case <-ctx.Done():
	}
}

// mapJobStatus maps the remote status string onto the five-state enum. An
// unrecognized or absent status defaults to pending.
func mapJobStatus(data map[string]any) models.JobStatus {
	raw, _ := data["status"].(string)
	switch models.JobStatus(raw) {
	case models.JobStatusPending, models.JobStatusQueued, models.JobStatusRunning,
		models.JobStatusDone, models.JobStatusFailed:
		return models.JobStatus(raw)
	default:
		return models.JobStatusPending
	}
}
