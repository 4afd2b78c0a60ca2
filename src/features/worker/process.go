package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cruxtone/hymnsift/src/features/metrics"
	"github.com/cruxtone/hymnsift/src/features/quality"
	"github.com/cruxtone/hymnsift/src/features/queue"
	"github.com/cruxtone/hymnsift/src/music"
)

// backgroundFallbackLimit caps the unanalyzed-songs query when a background
// job arrives without an explicit song list.
const backgroundFallbackLimit = 100

// checkAction is the outcome of the between-items checkpoint.
type checkAction int

const (
	keepGoing checkAction = iota
	wasInterrupted
	wasCancelled
	isStopping
)

func (w *Worker) process(ctx context.Context, job *queue.Job) {
	w.setCurrent(job)
	defer w.setCurrent(nil)

	slog.Info("Processing job", "job_id", job.ID, "job_type", job.Type, "priority", int(job.Priority))
	switch job.Type {
	case queue.JobTypeSong:
		w.processSong(ctx, job)
	case queue.JobTypePlaylist, queue.JobTypeBackground:
		w.processBatch(ctx, job)
	default:
		w.finalize(ctx, job, false, fmt.Sprintf("no handler for job type %q", job.Type))
	}
}

// checkpoint re-evaluates preemption, cancellation, and shutdown. Called
// only between items, never mid-item.
func (w *Worker) checkpoint(ctx context.Context, job *queue.Job) checkAction {
	w.heartbeat()

	if reason, ok := w.cancelReason(job.ID); ok {
		slog.Info("Job cancelled via API", "job_id", job.ID, "reason", reason)
		w.finalize(ctx, job, false, reason)
		return wasCancelled
	}
	if w.stopRequested() {
		w.interrupt(ctx, job)
		return isStopping
	}
	preempt, err := w.queue.HasHigherPriority(ctx, job.Priority)
	if err != nil {
		slog.Warn("Preemption check failed", "job_id", job.ID, "error", err)
		return keepGoing
	}
	if preempt {
		slog.Info("Preempting job for higher-priority work", "job_id", job.ID)
		w.interrupt(ctx, job)
		return wasInterrupted
	}
	return keepGoing
}

func (w *Worker) interrupt(ctx context.Context, job *queue.Job) {
	if err := w.queue.Interrupt(ctx, job.ID); err != nil {
		slog.Error("Failed to interrupt job", "job_id", job.ID, "error", err)
	}
	w.tracker.Complete(ctx, job.ID, false)

	w.mu.Lock()
	w.stats.JobsInterrupted++
	w.mu.Unlock()
	metrics.JobsFinalized.WithLabelValues(string(job.Type), string(queue.StatusInterrupted)).Inc()
}

func (w *Worker) finalize(ctx context.Context, job *queue.Job, success bool, errorMessage string) {
	if err := w.queue.Complete(ctx, job.ID, success, errorMessage); err != nil {
		slog.Error("Failed to complete job", "job_id", job.ID, "error", err)
	}
	w.tracker.Complete(ctx, job.ID, success)

	w.mu.Lock()
	w.stats.JobsProcessed++
	if !success {
		w.stats.JobsFailed++
	}
	w.mu.Unlock()

	status := queue.StatusCompleted
	if !success {
		status = queue.StatusFailed
	}
	metrics.JobsFinalized.WithLabelValues(string(job.Type), string(status)).Inc()
	if job.StartedAt != nil {
		metrics.JobDuration.WithLabelValues(string(job.Type)).Observe(time.Since(*job.StartedAt).Seconds())
	}

	if w.notifier != nil {
		w.notifier.NotifyJobFinished(job, success, errorMessage)
	}
}

func (w *Worker) processSong(ctx context.Context, job *queue.Job) {
	w.tracker.Start(ctx, job.ID, job.Type, 1)
	w.tracker.Update(ctx, job.ID, 0, "starting", 0.0, "Preparing analysis")

	song, err := w.library.GetSong(ctx, job.TargetID)
	if err != nil {
		w.finalize(ctx, job, false, fmt.Sprintf("failed to load song %d: %v", job.TargetID, err))
		return
	}
	if song == nil {
		w.finalize(ctx, job, false, fmt.Sprintf("song not found: %d", job.TargetID))
		return
	}

	w.tracker.Update(ctx, job.ID, 0, "lyrics_fetching", 0.3, "Fetching lyrics")
	result, err := w.analyzer.Analyze(ctx, song.Identity())
	if err != nil {
		w.finalize(ctx, job, false, fmt.Sprintf("analysis failed: %v", err))
		return
	}

	// Shutdown arriving mid-analysis: the item is done, but the job is
	// handed back to the queue rather than finalized so a restarted worker
	// picks it up.
	if reason, ok := w.cancelReason(job.ID); ok {
		w.finalize(ctx, job, false, reason)
		return
	}
	if w.stopRequested() {
		w.interrupt(ctx, job)
		return
	}

	w.tracker.Update(ctx, job.ID, 0, "analysis", 0.7, "Validating result")
	decision := w.gate(ctx, job, song, result)

	w.tracker.Update(ctx, job.ID, 1, "complete", 1.0, "Analysis complete")
	w.finalize(ctx, job, decision.StructuredError == "", decision.StructuredError)
}

func (w *Worker) processBatch(ctx context.Context, job *queue.Job) {
	songs, err := w.batchSongs(ctx, job)
	if err != nil {
		w.tracker.Start(ctx, job.ID, job.Type, 0)
		w.finalize(ctx, job, false, err.Error())
		return
	}

	w.tracker.Start(ctx, job.ID, job.Type, len(songs))
	failures := 0

	for i, song := range songs {
		switch w.checkpoint(ctx, job) {
		case keepGoing:
		default:
			return
		}

		result, err := w.analyzer.Analyze(ctx, song.Identity())
		if err != nil {
			// A single unhealthy song never fails the batch.
			failures++
			slog.Warn("Song analysis failed within batch", "job_id", job.ID, "song_id", song.ID, "error", err)
		} else {
			decision := w.gate(ctx, job, song, result)
			if decision.StructuredError != "" {
				failures++
			}
		}

		w.tracker.Update(ctx, job.ID, i+1, "", 0, fmt.Sprintf("Analyzed %d/%d songs", i+1, len(songs)))
	}

	if failures > 0 {
		slog.Warn("Batch finished with failures", "job_id", job.ID, "failed", failures, "total", len(songs))
	}
	w.finalize(ctx, job, true, "")
}

func (w *Worker) batchSongs(ctx context.Context, job *queue.Job) ([]*music.Song, error) {
	switch job.Type {
	case queue.JobTypePlaylist:
		songs, err := w.library.PlaylistSongs(ctx, job.TargetID, job.Metadata.UnanalyzedOnly())
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate playlist %d: %w", job.TargetID, err)
		}
		return songs, nil
	default:
		if ids := job.Metadata.SongIDs(); len(ids) > 0 {
			songs := make([]*music.Song, 0, len(ids))
			for _, id := range ids {
				song, err := w.library.GetSong(ctx, id)
				if err != nil {
					return nil, fmt.Errorf("failed to load song %d: %w", id, err)
				}
				if song == nil {
					slog.Warn("Skipping unknown song in background batch", "job_id", job.ID, "song_id", id)
					continue
				}
				songs = append(songs, song)
			}
			return songs, nil
		}
		songs, err := w.library.UnanalyzedSongs(ctx, backgroundFallbackLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to query unanalyzed songs: %w", err)
		}
		return songs, nil
	}
}

// gate runs the quality validator over one song-level result and routes it
// per the decision matrix: persist, flag for review, or re-enqueue with
// delay. The returned decision carries the structured error for the failed
// grade.
func (w *Worker) gate(ctx context.Context, job *queue.Job, song *music.Song, result map[string]any) quality.Decision {
	m := w.validator.Validate(result, job.ID)
	decision := w.validator.Decide(m)
	slog.Info("Quality gate", "job_id", job.ID, "song_id", song.ID, "grade", m.Grade, "overall", fmt.Sprintf("%.2f", m.Overall))

	if len(m.Recommendations) > 0 && m.Grade != quality.GradeExcellent {
		slog.Info("Quality recommendations", "job_id", job.ID, "song_id", song.ID, "recommendations", m.Recommendations)
	}

	if decision.Persist {
		data, err := json.Marshal(result)
		if err != nil {
			slog.Error("Failed to encode analysis result", "job_id", job.ID, "song_id", song.ID, "error", err)
		} else if err := w.library.SaveAnalysis(ctx, song.ID, string(data), decision.FlagForReview); err != nil {
			slog.Error("Failed to persist analysis result", "job_id", job.ID, "song_id", song.ID, "error", err)
		}
	}

	if decision.Reenqueue {
		reason := decision.StructuredError
		if reason == "" {
			reason = fmt.Sprintf("quality grade %s", m.Grade)
		}
		retryID, err := w.queue.EnqueueWithDelay(ctx,
			queue.JobTypeSong, job.UserID, song.ID, decision.ReenqueuePrio,
			queue.RetryMeta(nil, job.ID, reason), decision.ReenqueueDelay)
		if err != nil {
			slog.Error("Failed to re-enqueue low-quality analysis", "job_id", job.ID, "song_id", song.ID, "error", err)
		} else {
			slog.Info("Re-enqueued analysis after quality gate", "job_id", job.ID, "retry_job_id", retryID, "grade", m.Grade, "delay", decision.ReenqueueDelay.String())
		}
	}

	return decision
}
