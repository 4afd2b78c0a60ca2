// Package worker runs the single cooperative job executor: it polls the
// priority queue, dispatches per-type handlers, re-evaluates preemption
// between items, and finalizes through the quality gate.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cruxtone/hymnsift/src/features/progress"
	"github.com/cruxtone/hymnsift/src/features/quality"
	"github.com/cruxtone/hymnsift/src/features/queue"
	"github.com/cruxtone/hymnsift/src/music"
)

// Analyzer is the opaque analysis collaborator. The result map carries at
// minimum the fields the quality validator requires.
type Analyzer interface {
	Analyze(ctx context.Context, song music.Identity) (map[string]any, error)
}

// Notifier is pinged when a job reaches a terminal state. Optional.
type Notifier interface {
	NotifyJobFinished(job *queue.Job, success bool, message string)
}

// CurrentJob is the in-flight job snapshot reported by worker health.
type CurrentJob struct {
	ID        string            `json:"job_id"`
	Type      queue.JobType     `json:"job_type"`
	Priority  queue.JobPriority `json:"priority"`
	StartedAt time.Time         `json:"started_at"`
}

// Stats is the worker's in-memory health report.
type Stats struct {
	Running         bool        `json:"running"`
	StartedAt       time.Time   `json:"started_at"`
	UptimeSeconds   float64     `json:"uptime_seconds"`
	JobsProcessed   int64       `json:"jobs_processed"`
	JobsFailed      int64       `json:"jobs_failed"`
	JobsInterrupted int64       `json:"jobs_interrupted"`
	LastHeartbeat   time.Time   `json:"last_heartbeat"`
	CurrentJob      *CurrentJob `json:"current_job"`
}

// Worker is the single executor for a queue namespace. Exactly one Worker
// runs at a time per namespace; the loop itself is strictly sequential and
// yields at the polling sleep, provider waits, and item boundaries.
type Worker struct {
	queue     *queue.Service
	tracker   *progress.Tracker
	validator *quality.Validator
	analyzer  Analyzer
	library   music.Library
	notifier  Notifier

	pollInterval time.Duration

	mu        sync.Mutex
	stats     Stats
	cancelled map[string]string // job id -> cancellation reason

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a worker. notifier may be nil.
func New(q *queue.Service, tracker *progress.Tracker, validator *quality.Validator, analyzer Analyzer, library music.Library, notifier Notifier, pollInterval time.Duration) *Worker {
	return &Worker{
		queue:        q,
		tracker:      tracker,
		validator:    validator,
		analyzer:     analyzer,
		library:      library,
		notifier:     notifier,
		pollInterval: pollInterval,
		cancelled:    make(map[string]string),
	}
}

// Start launches the polling loop. Calling Start on a running worker is a
// no-op.
func (w *Worker) Start() {
	w.mu.Lock()
	if w.stats.Running {
		w.mu.Unlock()
		return
	}
	w.stats.Running = true
	w.stats.StartedAt = time.Now().UTC()
	w.stats.LastHeartbeat = w.stats.StartedAt
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	slog.Info("Worker started", "poll_interval", w.pollInterval.String())
	go w.run()
}

// Stop requests graceful shutdown: the worker finishes the current item,
// interrupts (re-enqueues) the current job, and exits. Returns false when
// the loop does not join within the timeout.
func (w *Worker) Stop(timeout time.Duration) bool {
	w.mu.Lock()
	if !w.stats.Running {
		w.mu.Unlock()
		return true
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	select {
	case <-stopCh:
	default:
		close(stopCh)
	}

	select {
	case <-doneCh:
		return true
	case <-time.After(timeout):
		slog.Error("Worker did not stop within timeout", "timeout", timeout.String())
		return false
	}
}

// Cancel aborts a job by id. Pending jobs leave the queue immediately;
// the active job is finalized as failed at the next item boundary.
func (w *Worker) Cancel(ctx context.Context, jobID, reason string) error {
	removed, err := w.queue.Remove(ctx, jobID)
	if err != nil {
		return err
	}
	if removed {
		return w.queue.Complete(ctx, jobID, false, reason)
	}
	w.mu.Lock()
	w.cancelled[jobID] = reason
	w.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the worker's health counters.
func (w *Worker) Snapshot() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	stats := w.stats
	if stats.Running {
		stats.UptimeSeconds = time.Since(stats.StartedAt).Seconds()
	}
	if w.stats.CurrentJob != nil {
		current := *w.stats.CurrentJob
		stats.CurrentJob = &current
	}
	return stats
}

func (w *Worker) run() {
	defer close(w.doneCh)
	defer func() {
		w.mu.Lock()
		w.stats.Running = false
		w.stats.CurrentJob = nil
		w.mu.Unlock()
		slog.Info("Worker stopped")
	}()

	ctx := context.Background()
	for {
		select {
		case <-w.stopCh:
			return
		default:
		}
		w.heartbeat()

		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			slog.Error("Dequeue failed", "error", err)
			if !w.sleep(w.pollInterval) {
				return
			}
			continue
		}
		if job == nil {
			if !w.sleep(w.pollInterval) {
				return
			}
			continue
		}

		w.process(ctx, job)
	}
}

// sleep waits for the poll interval, returning false when stop is requested.
func (w *Worker) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-w.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

func (w *Worker) heartbeat() {
	w.mu.Lock()
	w.stats.LastHeartbeat = time.Now().UTC()
	w.mu.Unlock()
}

func (w *Worker) setCurrent(job *queue.Job) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if job == nil {
		w.stats.CurrentJob = nil
		return
	}
	startedAt := time.Now().UTC()
	if job.StartedAt != nil {
		startedAt = *job.StartedAt
	}
	w.stats.CurrentJob = &CurrentJob{
		ID:        job.ID,
		Type:      job.Type,
		Priority:  job.Priority,
		StartedAt: startedAt,
	}
}

// stopRequested reports whether graceful shutdown has been asked for.
func (w *Worker) stopRequested() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}

// cancelReason returns and consumes a pending API cancellation for the job.
func (w *Worker) cancelReason(jobID string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	reason, ok := w.cancelled[jobID]
	if ok {
		delete(w.cancelled, jobID)
	}
	return reason, ok
}
