package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cruxtone/hymnsift/src/features/queue"
	"github.com/cruxtone/hymnsift/src/infra/redisstore"
	"github.com/redis/go-redis/v9"
)

// mirrorTTL keeps progress mirrors around long enough to survive a worker
// restart mid-job but not forever.
const mirrorTTL = 24 * time.Hour

// Record is the live progress of one job.
type Record struct {
	JobID            string        `json:"job_id"`
	JobType          queue.JobType `json:"job_type"`
	TotalItems       int           `json:"total_items"`
	CompletedItems   int           `json:"completed_items"`
	CurrentProgress  float64       `json:"current_progress"`
	StartTime        time.Time     `json:"start_time"`
	EstimatedPerItem float64       `json:"estimated_duration_per_item"`
	CurrentStep      *string       `json:"current_step"`
	StepProgress     *float64      `json:"step_progress"`
	CurrentMessage   *string       `json:"current_message"`
	IsComplete       bool          `json:"is_complete"`
	ETASeconds       float64       `json:"eta_seconds"`
}

func (r *Record) recompute() {
	if r.TotalItems > 0 {
		r.CurrentProgress = float64(r.CompletedItems) / float64(r.TotalItems)
	} else {
		r.CurrentProgress = 1.0
	}
}

// Subscriber receives progress updates for a job. Implementations must
// tolerate duplicate and missed updates.
type Subscriber interface {
	OnUpdate(record Record)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(record Record)

func (f SubscriberFunc) OnUpdate(record Record) { f(record) }

// Tracker keeps per-job progress in memory, mirrors it to Redis after every
// update, and fans updates out to subscribers. The worker writes; the API
// and subscribers read.
type Tracker struct {
	mu          sync.RWMutex
	active      map[string]*Record
	subscribers map[string][]Subscriber
	client      *redis.Client
	keys        redisstore.Keys
	eta         *ETACalculator
	now         func() time.Time
}

// NewTracker creates a tracker backed by the given Redis mirror.
func NewTracker(client *redis.Client, keys redisstore.Keys, eta *ETACalculator) *Tracker {
	return &Tracker{
		active:      make(map[string]*Record),
		subscribers: make(map[string][]Subscriber),
		client:      client,
		keys:        keys,
		eta:         eta,
		now:         time.Now,
	}
}

// Start begins tracking a job with the given number of items.
func (t *Tracker) Start(ctx context.Context, jobID string, jobType queue.JobType, totalItems int) *Record {
	record := &Record{
		JobID:            jobID,
		JobType:          jobType,
		TotalItems:       totalItems,
		StartTime:        t.now().UTC(),
		EstimatedPerItem: t.eta.averagePerItem(jobType),
	}
	record.recompute()
	record.ETASeconds = t.eta.Estimate(jobType, totalItems, 0, 0)

	t.mu.Lock()
	t.active[jobID] = record
	snapshot := *record
	t.mu.Unlock()

	t.mirror(ctx, &snapshot)
	t.notify(jobID, snapshot)
	slog.Debug("Progress tracking started", "job_id", jobID, "job_type", jobType, "total_items", totalItems)
	return &snapshot
}

// Update records item-level progress. completedItems is clamped to
// [0, total]; step, stepProgress, and message are optional annotations.
func (t *Tracker) Update(ctx context.Context, jobID string, completedItems int, step string, stepProgress float64, message string) {
	t.mu.Lock()
	record, ok := t.active[jobID]
	if !ok {
		t.mu.Unlock()
		return
	}
	if completedItems < 0 {
		completedItems = 0
	}
	if record.TotalItems > 0 && completedItems > record.TotalItems {
		completedItems = record.TotalItems
	}
	record.CompletedItems = completedItems
	if step != "" {
		record.CurrentStep = &step
		record.StepProgress = &stepProgress
	}
	if message != "" {
		record.CurrentMessage = &message
	}
	record.recompute()
	elapsed := t.now().UTC().Sub(record.StartTime)
	record.ETASeconds = t.eta.Estimate(record.JobType, record.TotalItems, record.CompletedItems, elapsed)
	snapshot := *record
	t.mu.Unlock()

	t.mirror(ctx, &snapshot)
	t.notify(jobID, snapshot)
}

// Complete ends tracking. On success the observed per-item rate feeds the
// ETA history. The in-memory record is dropped; the mirror keeps its TTL for
// late readers.
func (t *Tracker) Complete(ctx context.Context, jobID string, success bool) {
	t.mu.Lock()
	record, ok := t.active[jobID]
	if !ok {
		t.mu.Unlock()
		return
	}
	record.IsComplete = true
	record.ETASeconds = 0
	if success && record.TotalItems > 0 {
		record.CompletedItems = record.TotalItems
	}
	record.recompute()
	elapsed := t.now().UTC().Sub(record.StartTime)
	snapshot := *record
	delete(t.active, jobID)
	t.mu.Unlock()

	if success {
		t.eta.RecordCompletion(snapshot.JobType, elapsed, snapshot.CompletedItems)
	}
	t.mirror(ctx, &snapshot)
	t.notify(jobID, snapshot)
	t.mu.Lock()
	delete(t.subscribers, jobID)
	t.mu.Unlock()
	slog.Debug("Progress tracking completed", "job_id", jobID, "success", success)
}

// Get returns the live record, falling back to the Redis mirror so a
// restarted worker's jobs stay visible.
func (t *Tracker) Get(ctx context.Context, jobID string) (*Record, error) {
	t.mu.RLock()
	record, ok := t.active[jobID]
	if ok {
		snapshot := *record
		t.mu.RUnlock()
		return &snapshot, nil
	}
	t.mu.RUnlock()

	data, err := t.client.Get(ctx, t.keys.Progress(jobID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read progress mirror for %s: %w", jobID, err)
	}
	var mirrored Record
	if err := json.Unmarshal([]byte(data), &mirrored); err != nil {
		return nil, fmt.Errorf("failed to parse progress mirror for %s: %w", jobID, err)
	}
	return &mirrored, nil
}

// Resume reloads a mirrored record into the active map after a worker
// restart mid-job.
func (t *Tracker) Resume(ctx context.Context, jobID string) (*Record, error) {
	record, err := t.Get(ctx, jobID)
	if err != nil || record == nil {
		return record, err
	}
	t.mu.Lock()
	if _, ok := t.active[jobID]; !ok && !record.IsComplete {
		copied := *record
		t.active[jobID] = &copied
	}
	t.mu.Unlock()
	return record, nil
}

// Subscribe registers a subscriber for a job's updates.
func (t *Tracker) Subscribe(jobID string, sub Subscriber) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribers[jobID] = append(t.subscribers[jobID], sub)
}

// CleanupStale finalizes, as unsuccessful, any active job older than maxAge.
// Guards against worker crashes leaking tracker state.
func (t *Tracker) CleanupStale(ctx context.Context, maxAge time.Duration) int {
	cutoff := t.now().UTC().Add(-maxAge)

	t.mu.RLock()
	var stale []string
	for jobID, record := range t.active {
		if record.StartTime.Before(cutoff) {
			stale = append(stale, jobID)
		}
	}
	t.mu.RUnlock()

	for _, jobID := range stale {
		slog.Warn("Evicting stale progress record", "job_id", jobID)
		t.Complete(ctx, jobID, false)
	}
	return len(stale)
}

// ActiveCount returns the number of jobs currently tracked in memory.
func (t *Tracker) ActiveCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.active)
}

func (t *Tracker) mirror(ctx context.Context, record *Record) {
	data, err := json.Marshal(record)
	if err != nil {
		slog.Warn("Failed to marshal progress record", "job_id", record.JobID, "error", err)
		return
	}
	if err := t.client.Set(ctx, t.keys.Progress(record.JobID), data, mirrorTTL).Err(); err != nil {
		slog.Warn("Failed to mirror progress record", "job_id", record.JobID, "error", err)
	}
}

// notify delivers an update to every subscriber of the job. A panicking
// subscriber is isolated and must not take the tracker down with it.
func (t *Tracker) notify(jobID string, record Record) {
	t.mu.RLock()
	subs := make([]Subscriber, len(t.subscribers[jobID]))
	copy(subs, t.subscribers[jobID])
	t.mu.RUnlock()

	for _, sub := range subs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("Progress subscriber panicked", "job_id", jobID, "panic", r)
				}
			}()
			sub.OnUpdate(record)
		}()
	}
}
