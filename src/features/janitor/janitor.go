// Package janitor runs the periodic cleanup pass: expired lyrics cache
// entries, orphaned job records, and stale progress state.
package janitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/cruxtone/hymnsift/src/features/progress"
	"github.com/cruxtone/hymnsift/src/features/queue"
	"github.com/cruxtone/hymnsift/src/infra/cache"
)

// Janitor owns the hourly cleanup loop.
type Janitor struct {
	queue       *queue.Service
	tracker     *progress.Tracker
	cache       *cache.LyricsCache
	interval    time.Duration
	cacheMaxAge time.Duration
	staleJobs   time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a janitor.
func New(q *queue.Service, tracker *progress.Tracker, lyricsCache *cache.LyricsCache, interval, cacheMaxAge, staleJobs time.Duration) *Janitor {
	return &Janitor{
		queue:       q,
		tracker:     tracker,
		cache:       lyricsCache,
		interval:    interval,
		cacheMaxAge: cacheMaxAge,
		staleJobs:   staleJobs,
	}
}

// Start launches the cleanup loop.
func (j *Janitor) Start() {
	j.stopCh = make(chan struct{})
	j.doneCh = make(chan struct{})
	go j.run()
	slog.Info("Janitor started", "interval", j.interval.String())
}

// Stop halts the loop and waits for it to exit.
func (j *Janitor) Stop() {
	if j.stopCh == nil {
		return
	}
	close(j.stopCh)
	<-j.doneCh
	slog.Info("Janitor stopped")
}

func (j *Janitor) run() {
	defer close(j.doneCh)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-j.stopCh:
			return
		case <-ticker.C:
			j.RunOnce(context.Background())
		}
	}
}

// RunOnce performs a single cleanup pass.
func (j *Janitor) RunOnce(ctx context.Context) {
	evicted, err := j.cache.EvictOlderThan(ctx, j.cacheMaxAge)
	if err != nil {
		slog.Warn("Lyrics cache eviction failed", "error", err)
	}

	swept, err := j.queue.SweepOrphans(ctx)
	if err != nil {
		slog.Warn("Orphan sweep failed", "error", err)
	}

	stale := j.tracker.CleanupStale(ctx, j.staleJobs)

	slog.Info("Janitor pass complete", "cache_evicted", evicted, "orphans_swept", swept, "stale_progress", stale)
}
