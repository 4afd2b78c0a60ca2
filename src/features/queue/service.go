package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cruxtone/hymnsift/src/features/metrics"
	"github.com/cruxtone/hymnsift/src/infra/redisstore"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// dequeueScanLimit bounds how many head-of-queue candidates one Dequeue call
// inspects when skipping tombstones and not-yet-due delayed jobs.
const dequeueScanLimit = 10

// Service is the Redis-backed priority queue. Pending jobs live in a sorted
// set scored so that priority dominates and insertion time breaks ties;
// records live in a hash keyed by job id; the single active job id lives in
// its own slot with a safety TTL.
type Service struct {
	client       *redis.Client
	keys         redisstore.Keys
	activeTTL    time.Duration
	completedTTL time.Duration
	lastActivity atomic.Int64 // unix nanos of the last queue operation
	now          func() time.Time
}

// NewService creates the queue over the given Redis client and key schema.
func NewService(client *redis.Client, keys redisstore.Keys, activeTTL, completedTTL time.Duration) *Service {
	s := &Service{
		client:       client,
		keys:         keys,
		activeTTL:    activeTTL,
		completedTTL: completedTTL,
		now:          time.Now,
	}
	s.touch()
	return s
}

func (s *Service) touch() {
	s.lastActivity.Store(s.now().UnixNano())
}

// LastActivity returns the time of the last queue operation in this process.
func (s *Service) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// score computes the sorted-set score for a job enqueued at t. The priority
// adds whole units on top of the time term (unix micros / 1e12, about 1.7e3
// today); that term grows by one only every ~11.6 days, so
// priority dominates for any jobs enqueued within the same scheduling
// horizon while insertion order breaks ties inside a class.
func score(priority JobPriority, t time.Time) float64 {
	return float64(priority) + float64(t.UnixMicro())/1e12
}

// Enqueue creates a pending job and inserts it into the priority index.
// The record write and the index insert are two Redis calls; if the second
// fails the orphaned record is swept by the janitor.
func (s *Service) Enqueue(ctx context.Context, jobType JobType, userID, targetID int64, priority JobPriority, metadata Metadata) (string, error) {
	return s.enqueueAt(ctx, jobType, userID, targetID, priority, metadata, s.now().UTC())
}

// EnqueueWithDelay creates a pending job that will not be dequeued before
// the delay elapses. Used by the quality gate's automatic retries.
func (s *Service) EnqueueWithDelay(ctx context.Context, jobType JobType, userID, targetID int64, priority JobPriority, metadata Metadata, delay time.Duration) (string, error) {
	if metadata == nil {
		metadata = Metadata{}
	}
	notBefore := s.now().UTC().Add(delay)
	metadata[metaNotBefore] = notBefore.Format(time.RFC3339Nano)
	return s.enqueueAt(ctx, jobType, userID, targetID, priority, metadata, notBefore)
}

func (s *Service) enqueueAt(ctx context.Context, jobType JobType, userID, targetID int64, priority JobPriority, metadata Metadata, scoreTime time.Time) (string, error) {
	if metadata == nil {
		metadata = Metadata{}
	}
	job := &Job{
		ID:        uuid.New().String(),
		Type:      jobType,
		Priority:  priority,
		UserID:    userID,
		TargetID:  targetID,
		Status:    StatusPending,
		CreatedAt: s.now().UTC(),
		Metadata:  metadata,
	}

	if err := s.writeJob(ctx, job); err != nil {
		return "", err
	}
	if err := s.client.ZAdd(ctx, s.keys.Queue(), redis.Z{
		Score:  score(priority, scoreTime),
		Member: job.ID,
	}).Err(); err != nil {
		return "", fmt.Errorf("failed to index job %s: %w", job.ID, err)
	}

	s.touch()
	metrics.QueuePending.WithLabelValues(priority.String()).Inc()
	slog.Info("Enqueued job", "job_id", job.ID, "job_type", jobType, "user_id", userID, "priority", int(priority))
	return job.ID, nil
}

// Dequeue pops the lowest-scored eligible job, transitions it to
// in_progress, and claims the active slot. Entries whose record has gone
// missing are dropped and the next candidate is taken. Delayed jobs that are
// not yet due are left in place. Returns nil when nothing is eligible.
func (s *Service) Dequeue(ctx context.Context) (*Job, error) {
	candidates, err := s.client.ZRangeWithScores(ctx, s.keys.Queue(), 0, dequeueScanLimit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue head: %w", err)
	}

	now := s.now().UTC()
	for _, z := range candidates {
		jobID, _ := z.Member.(string)

		job, err := s.Get(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job == nil {
			// Tombstoned or janitor-collected record; drop the index entry
			// and keep going.
			slog.Error("Job record not found for queued id, dropping", "job_id", jobID)
			s.client.ZRem(ctx, s.keys.Queue(), jobID)
			continue
		}
		if notBefore, ok := job.Metadata.NotBefore(); ok && now.Before(notBefore) {
			continue
		}

		if err := s.client.ZRem(ctx, s.keys.Queue(), jobID).Err(); err != nil {
			return nil, fmt.Errorf("failed to remove job %s from index: %w", jobID, err)
		}

		started := now
		job.Status = StatusInProgress
		job.StartedAt = &started
		if err := s.writeJob(ctx, job); err != nil {
			return nil, err
		}
		if err := s.client.Set(ctx, s.keys.Active(), job.ID, s.activeTTL).Err(); err != nil {
			return nil, fmt.Errorf("failed to claim active slot for %s: %w", job.ID, err)
		}

		s.touch()
		metrics.QueuePending.WithLabelValues(job.Priority.String()).Dec()
		slog.Info("Dequeued job", "job_id", job.ID, "job_type", job.Type, "priority", int(job.Priority))
		return job, nil
	}

	return nil, nil
}

// Complete finalizes a job. Repeated completion of an already-terminal job
// is a no-op so completed_at never regresses.
func (s *Service) Complete(ctx context.Context, jobID string, success bool, errorMessage string) error {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job not found: %s", jobID)
	}
	if job.Status.Terminal() {
		return nil
	}

	completed := s.now().UTC()
	if success {
		job.Status = StatusCompleted
	} else {
		job.Status = StatusFailed
	}
	job.CompletedAt = &completed
	if errorMessage != "" {
		job.ErrorMessage = &errorMessage
	}
	if err := s.writeJob(ctx, job); err != nil {
		return err
	}

	// Terminal records get a TTL so the hash doesn't grow without bound.
	if err := s.client.HExpire(ctx, s.keys.Jobs(), s.completedTTL, jobID).Err(); err != nil {
		slog.Warn("Failed to set TTL on terminal job record", "job_id", jobID, "error", err)
	}

	if err := s.releaseActive(ctx, jobID); err != nil {
		return err
	}
	s.touch()
	slog.Info("Completed job", "job_id", jobID, "status", job.Status, "error", errorMessage)
	return nil
}

// Interrupt re-enqueues a job at its original priority with a fresh score,
// preserving its position among peers by current time.
func (s *Service) Interrupt(ctx context.Context, jobID string) error {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job not found: %s", jobID)
	}

	job.Status = StatusInterrupted
	if err := s.writeJob(ctx, job); err != nil {
		return err
	}
	if err := s.client.ZAdd(ctx, s.keys.Queue(), redis.Z{
		Score:  score(job.Priority, s.now().UTC()),
		Member: job.ID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to re-index interrupted job %s: %w", jobID, err)
	}
	if err := s.releaseActive(ctx, jobID); err != nil {
		return err
	}

	s.touch()
	metrics.QueuePending.WithLabelValues(job.Priority.String()).Inc()
	slog.Info("Interrupted job", "job_id", jobID, "job_type", job.Type)
	return nil
}

// releaseActive clears the active slot iff it points at jobID.
func (s *Service) releaseActive(ctx context.Context, jobID string) error {
	current, err := s.client.Get(ctx, s.keys.Active()).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read active slot: %w", err)
	}
	if current != jobID {
		return nil
	}
	if err := s.client.Del(ctx, s.keys.Active()).Err(); err != nil {
		return fmt.Errorf("failed to clear active slot: %w", err)
	}
	return nil
}

// Get reads a job record; nil when unknown.
func (s *Service) Get(ctx context.Context, jobID string) (*Job, error) {
	data, err := s.client.HGet(ctx, s.keys.Jobs(), jobID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job %s: %w", jobID, err)
	}
	return UnmarshalJob(data)
}

// GetActive resolves the active slot through Get; nil when no job is active.
func (s *Service) GetActive(ctx context.Context) (*Job, error) {
	jobID, err := s.client.Get(ctx, s.keys.Active()).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read active slot: %w", err)
	}
	return s.Get(ctx, jobID)
}

func (s *Service) writeJob(ctx context.Context, job *Job) error {
	data, err := job.Marshal()
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, s.keys.Jobs(), job.ID, data).Err(); err != nil {
		return fmt.Errorf("failed to persist job %s: %w", job.ID, err)
	}
	return nil
}

// Summary is the aggregate queue report.
type Summary struct {
	TotalPending int            `json:"total_pending"`
	ByPriority   map[string]int `json:"by_priority"`
	ByStatus     map[string]int `json:"by_status"`
	ActiveJob    *Job           `json:"active_job"`
}

// Status scans the index and the record map for the full queue summary.
// O(n) in stored jobs; called infrequently.
func (s *Service) Status(ctx context.Context) (*Summary, error) {
	queuedIDs, err := s.client.ZRange(ctx, s.keys.Queue(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue index: %w", err)
	}
	queued := make(map[string]bool, len(queuedIDs))
	for _, id := range queuedIDs {
		queued[id] = true
	}

	records, err := s.client.HGetAll(ctx, s.keys.Jobs()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read job records: %w", err)
	}

	summary := &Summary{
		TotalPending: len(queuedIDs),
		ByPriority:   map[string]int{"high": 0, "medium": 0, "low": 0},
		ByStatus:     map[string]int{},
	}
	for id, data := range records {
		job, err := UnmarshalJob(data)
		if err != nil {
			slog.Warn("Skipping unreadable job record", "job_id", id, "error", err)
			continue
		}
		summary.ByStatus[string(job.Status)]++
		if queued[id] {
			summary.ByPriority[job.Priority.String()]++
		}
	}

	active, err := s.GetActive(ctx)
	if err != nil {
		return nil, err
	}
	summary.ActiveJob = active

	for priority, count := range summary.ByPriority {
		metrics.QueuePending.WithLabelValues(priority).Set(float64(count))
	}
	return summary, nil
}

// HasHigherPriority reports whether any pending, due job has a strictly
// higher priority (lower integer) than the given class. Used by the worker's
// preemption check.
func (s *Service) HasHigherPriority(ctx context.Context, than JobPriority) (bool, error) {
	if than == PriorityHigh {
		return false, nil
	}
	candidates, err := s.client.ZRangeWithScores(ctx, s.keys.Queue(), 0, dequeueScanLimit-1).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read queue head: %w", err)
	}
	now := s.now().UTC()
	for _, z := range candidates {
		jobID, _ := z.Member.(string)
		job, err := s.Get(ctx, jobID)
		if err != nil || job == nil {
			continue
		}
		if notBefore, ok := job.Metadata.NotBefore(); ok && now.Before(notBefore) {
			continue
		}
		if job.Priority < than {
			return true, nil
		}
	}
	return false, nil
}

// Remove drops a job from the pending index without touching its record.
// Reports whether the job was queued.
func (s *Service) Remove(ctx context.Context, jobID string) (bool, error) {
	removed, err := s.client.ZRem(ctx, s.keys.Queue(), jobID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to remove job %s from index: %w", jobID, err)
	}
	if removed > 0 {
		if job, err := s.Get(ctx, jobID); err == nil && job != nil {
			metrics.QueuePending.WithLabelValues(job.Priority.String()).Dec()
		}
		s.touch()
	}
	return removed > 0, nil
}

// Clear removes queued jobs: all of them, or only those owned by userID.
func (s *Service) Clear(ctx context.Context, userID *int64) (int, error) {
	queuedIDs, err := s.client.ZRange(ctx, s.keys.Queue(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue index: %w", err)
	}

	removed := 0
	for _, jobID := range queuedIDs {
		if userID != nil {
			job, err := s.Get(ctx, jobID)
			if err != nil {
				return removed, err
			}
			if job == nil || job.UserID != *userID {
				continue
			}
		}
		pipe := s.client.TxPipeline()
		pipe.ZRem(ctx, s.keys.Queue(), jobID)
		pipe.HDel(ctx, s.keys.Jobs(), jobID)
		if _, err := pipe.Exec(ctx); err != nil {
			return removed, fmt.Errorf("failed to clear job %s: %w", jobID, err)
		}
		removed++
	}

	s.touch()
	slog.Info("Cleared queued jobs", "removed", removed)
	return removed, nil
}

// SweepOrphans deletes pending records that have fallen out of the index —
// leftovers from an enqueue whose second write failed. Active, terminal, and
// interrupted records are left alone.
func (s *Service) SweepOrphans(ctx context.Context) (int, error) {
	queuedIDs, err := s.client.ZRange(ctx, s.keys.Queue(), 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue index: %w", err)
	}
	queued := make(map[string]bool, len(queuedIDs))
	for _, id := range queuedIDs {
		queued[id] = true
	}

	records, err := s.client.HGetAll(ctx, s.keys.Jobs()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read job records: %w", err)
	}

	swept := 0
	for id, data := range records {
		if queued[id] {
			continue
		}
		job, err := UnmarshalJob(data)
		if err != nil {
			continue
		}
		if job.Status != StatusPending {
			continue
		}
		if err := s.client.HDel(ctx, s.keys.Jobs(), id).Err(); err != nil {
			slog.Warn("Failed to delete orphaned job record", "job_id", id, "error", err)
			continue
		}
		swept++
	}
	if swept > 0 {
		slog.Info("Swept orphaned job records", "count", swept)
	}
	return swept, nil
}

// Ping reports whether the queue's Redis backend is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
