package worker

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cruxtone/hymnsift/src/features/progress"
	"github.com/cruxtone/hymnsift/src/features/quality"
	"github.com/cruxtone/hymnsift/src/features/queue"
	"github.com/cruxtone/hymnsift/src/infra/redisstore"
	"github.com/cruxtone/hymnsift/src/music"
	"github.com/redis/go-redis/v9"
)

type fakeLibrary struct {
	mu        sync.Mutex
	songs     map[int64]*music.Song
	playlists map[int64]*music.Playlist
	members   map[int64][]int64 // playlist id -> song ids
	saved     map[int64]bool    // song id -> needsReview
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{
		songs:     make(map[int64]*music.Song),
		playlists: make(map[int64]*music.Playlist),
		members:   make(map[int64][]int64),
		saved:     make(map[int64]bool),
	}
}

func (l *fakeLibrary) GetSong(ctx context.Context, id int64) (*music.Song, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.songs[id], nil
}

func (l *fakeLibrary) GetPlaylist(ctx context.Context, id int64) (*music.Playlist, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.playlists[id], nil
}

func (l *fakeLibrary) PlaylistSongs(ctx context.Context, playlistID int64, unanalyzedOnly bool) ([]*music.Song, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var songs []*music.Song
	for _, id := range l.members[playlistID] {
		song := l.songs[id]
		if unanalyzedOnly && song.Analyzed {
			continue
		}
		songs = append(songs, song)
	}
	return songs, nil
}

func (l *fakeLibrary) UnanalyzedSongs(ctx context.Context, limit int) ([]*music.Song, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var songs []*music.Song
	for _, song := range l.songs {
		if !song.Analyzed && len(songs) < limit {
			songs = append(songs, song)
		}
	}
	return songs, nil
}

func (l *fakeLibrary) UserOwnsSongPlaylist(ctx context.Context, userID, songID int64) (bool, error) {
	return true, nil
}

func (l *fakeLibrary) SaveAnalysis(ctx context.Context, songID int64, resultJSON string, needsReview bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.saved[songID] = needsReview
	if song, ok := l.songs[songID]; ok {
		song.Analyzed = true
		song.AnalysisJSON = resultJSON
	}
	return nil
}

// scriptedAnalyzer blocks every call until the test releases it, so item
// boundaries happen exactly when the test says they do.
type scriptedAnalyzer struct {
	started chan int64
	release chan struct{}
	result  func(songID int64) map[string]any
}

func (a *scriptedAnalyzer) Analyze(ctx context.Context, song music.Identity) (map[string]any, error) {
	a.started <- song.ID
	<-a.release
	return a.result(song.ID), nil
}

func goodResult(int64) map[string]any {
	return map[string]any{
		"christian_score":      88.0,
		"concern_level":        "Low",
		"biblical_themes":      []any{"worship", "grace", "salvation"},
		"supporting_scripture": map[string]any{"worship": "Psalm 95:6"},
		"explanation":          strings.Repeat("A thorough explanation of this song's themes. ", 2),
		"positive_themes":      []any{"hope"},
		"purity_flags":         []any{},
		"detailed_concerns":    []any{},
		"positive_score_bonus": 20.0,
		"analysis_version":     "test-1",
	}
}

func badResult(int64) map[string]any {
	return map[string]any{
		"christian_score": 150.0,
		"concern_level":   "Invalid",
		"explanation":     "Too short",
	}
}

type testRig struct {
	queue   *queue.Service
	tracker *progress.Tracker
	library *fakeLibrary
	worker  *Worker
}

func newTestRig(t *testing.T, analyzer Analyzer) *testRig {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	keys := redisstore.NewKeys("analysis")

	q := queue.NewService(client, keys, time.Hour, 24*time.Hour)
	tracker := progress.NewTracker(client, keys, progress.NewETACalculator())
	library := newFakeLibrary()
	w := New(q, tracker, quality.NewValidator(), analyzer, library, nil, 5*time.Millisecond)
	return &testRig{queue: q, tracker: tracker, library: library, worker: w}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func recvID(t *testing.T, ch chan int64, what string) int64 {
	t.Helper()
	select {
	case id := <-ch:
		return id
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		return 0
	}
}

func TestPreemptionAtItemBoundary(t *testing.T) {
	analyzer := &scriptedAnalyzer{
		started: make(chan int64),
		release: make(chan struct{}),
		result:  goodResult,
	}
	rig := newTestRig(t, analyzer)
	ctx := context.Background()

	for _, id := range []int64{101, 102, 103} {
		rig.library.songs[id] = &music.Song{ID: id, Title: "Track", Artist: "Artist"}
	}
	rig.library.songs[200] = &music.Song{ID: 200, Title: "Urgent", Artist: "Artist"}
	rig.library.playlists[1] = &music.Playlist{ID: 1, UserID: 1}
	rig.library.members[1] = []int64{101, 102, 103}

	playlistJob, err := rig.queue.Enqueue(ctx, queue.JobTypePlaylist, 1, 1, queue.PriorityMedium, queue.PlaylistMeta(false))
	if err != nil {
		t.Fatalf("enqueue playlist: %v", err)
	}

	rig.worker.Start()
	defer rig.worker.Stop(2 * time.Second)

	// Playlist begins on its first song.
	if id := recvID(t, analyzer.started, "first playlist item"); id != 101 {
		t.Fatalf("expected song 101 first, got %d", id)
	}

	// Higher-priority work arrives while item 1 is in flight.
	songJob, err := rig.queue.Enqueue(ctx, queue.JobTypeSong, 1, 200, queue.PriorityHigh, queue.SongMeta())
	if err != nil {
		t.Fatalf("enqueue song: %v", err)
	}
	analyzer.release <- struct{}{} // finish item 1

	// The next analyzed song must be the preempting high-priority one.
	if id := recvID(t, analyzer.started, "preempting song"); id != 200 {
		t.Fatalf("expected preempting song 200, got %d", id)
	}

	// The playlist job was interrupted and re-indexed.
	job, _ := rig.queue.Get(ctx, playlistJob)
	if job.Status != queue.StatusInterrupted {
		t.Fatalf("playlist should be interrupted, got %s", job.Status)
	}
	summary, _ := rig.queue.Status(ctx)
	if summary.TotalPending != 1 {
		t.Fatalf("interrupted playlist should be back in the index, %d pending", summary.TotalPending)
	}

	analyzer.release <- struct{}{} // finish the song job
	waitFor(t, "song job completion", func() bool {
		job, _ := rig.queue.Get(ctx, songJob)
		return job != nil && job.Status == queue.StatusCompleted
	})

	// The playlist resumes from item 0; already-analyzed songs are filtered
	// only when unanalyzed_only is set, so all three run.
	for _, want := range []int64{101, 102, 103} {
		if id := recvID(t, analyzer.started, "resumed playlist item"); id != want {
			t.Fatalf("expected resumed item %d, got %d", want, id)
		}
		analyzer.release <- struct{}{}
	}

	waitFor(t, "playlist completion", func() bool {
		job, _ := rig.queue.Get(ctx, playlistJob)
		return job != nil && job.Status == queue.StatusCompleted
	})
}

func TestGracefulStopInterruptsCurrentJob(t *testing.T) {
	analyzer := &scriptedAnalyzer{
		started: make(chan int64),
		release: make(chan struct{}),
		result:  goodResult,
	}
	rig := newTestRig(t, analyzer)
	ctx := context.Background()

	var jobIDs []string
	for id := int64(1); id <= 5; id++ {
		rig.library.songs[id] = &music.Song{ID: id, Title: "Track", Artist: "Artist"}
		jobID, err := rig.queue.Enqueue(ctx, queue.JobTypeSong, 1, id, queue.PriorityHigh, queue.SongMeta())
		if err != nil {
			t.Fatalf("enqueue: %v", err)
		}
		jobIDs = append(jobIDs, jobID)
	}

	rig.worker.Start()
	recvID(t, analyzer.started, "first job analysis")

	stopped := make(chan bool)
	go func() { stopped <- rig.worker.Stop(30 * time.Second) }()

	// Let the in-flight item finish once the stop request has landed; the
	// worker must then interrupt rather than pick up more work.
	waitFor(t, "stop request", rig.worker.stopRequested)
	analyzer.release <- struct{}{}

	select {
	case ok := <-stopped:
		if !ok {
			t.Fatal("worker join should succeed within the timeout")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not return")
	}

	first, _ := rig.queue.Get(ctx, jobIDs[0])
	if first.Status != queue.StatusInterrupted {
		t.Fatalf("current job should be interrupted on stop, got %s", first.Status)
	}
	summary, _ := rig.queue.Status(ctx)
	if summary.TotalPending != 5 {
		t.Fatalf("the interrupted job and the 4 untouched jobs should remain queued, got %d", summary.TotalPending)
	}
	for _, jobID := range jobIDs[1:] {
		job, _ := rig.queue.Get(ctx, jobID)
		if job.Status != queue.StatusPending {
			t.Fatalf("untouched job %s should stay pending, got %s", jobID, job.Status)
		}
	}
}

func TestQualityGateReenqueuesFailedAnalysis(t *testing.T) {
	analyzer := &scriptedAnalyzer{
		started: make(chan int64),
		release: make(chan struct{}),
		result:  badResult,
	}
	rig := newTestRig(t, analyzer)
	ctx := context.Background()

	rig.library.songs[7] = &music.Song{ID: 7, Title: "Track", Artist: "Artist"}
	jobID, err := rig.queue.Enqueue(ctx, queue.JobTypeSong, 1, 7, queue.PriorityHigh, queue.SongMeta())
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	rig.worker.Start()
	defer rig.worker.Stop(2 * time.Second)

	recvID(t, analyzer.started, "analysis")
	analyzer.release <- struct{}{}

	waitFor(t, "job failure", func() bool {
		job, _ := rig.queue.Get(ctx, jobID)
		return job != nil && job.Status == queue.StatusFailed
	})

	// The failed result was not persisted.
	rig.library.mu.Lock()
	_, persisted := rig.library.saved[7]
	rig.library.mu.Unlock()
	if persisted {
		t.Fatal("failed-grade analysis must not be persisted")
	}

	// A structured error landed on the job record.
	job, _ := rig.queue.Get(ctx, jobID)
	if job.ErrorMessage == nil || !strings.Contains(*job.ErrorMessage, "analysis quality failed") {
		t.Fatalf("expected structured quality error, got %+v", job.ErrorMessage)
	}

	// A retry was enqueued at high priority with a ~60s delay; it must not
	// be dequeued early.
	summary, _ := rig.queue.Status(ctx)
	if summary.ByPriority["high"] != 1 {
		t.Fatalf("expected one high-priority retry pending, got %v", summary.ByPriority)
	}
	next, err := rig.queue.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if next != nil {
		t.Fatalf("retry must respect its delay, got %+v", next)
	}
}

func TestSongJobPersistsGoodAnalysis(t *testing.T) {
	analyzer := &scriptedAnalyzer{
		started: make(chan int64),
		release: make(chan struct{}),
		result:  goodResult,
	}
	rig := newTestRig(t, analyzer)
	ctx := context.Background()

	rig.library.songs[3] = &music.Song{ID: 3, Title: "Track", Artist: "Artist"}
	jobID, _ := rig.queue.Enqueue(ctx, queue.JobTypeSong, 1, 3, queue.PriorityHigh, queue.SongMeta())

	rig.worker.Start()
	defer rig.worker.Stop(2 * time.Second)

	recvID(t, analyzer.started, "analysis")
	analyzer.release <- struct{}{}

	waitFor(t, "job completion", func() bool {
		job, _ := rig.queue.Get(ctx, jobID)
		return job != nil && job.Status == queue.StatusCompleted
	})

	rig.library.mu.Lock()
	needsReview, persisted := rig.library.saved[3]
	rig.library.mu.Unlock()
	if !persisted || needsReview {
		t.Fatalf("good analysis should persist without review flag, persisted=%v review=%v", persisted, needsReview)
	}

	stats := rig.worker.Snapshot()
	if stats.JobsProcessed != 1 || stats.JobsFailed != 0 {
		t.Fatalf("unexpected worker stats: %+v", stats)
	}
}

func TestCancelPendingJob(t *testing.T) {
	analyzer := &scriptedAnalyzer{started: make(chan int64), release: make(chan struct{}), result: goodResult}
	rig := newTestRig(t, analyzer)
	ctx := context.Background()

	rig.library.songs[9] = &music.Song{ID: 9, Title: "Track", Artist: "Artist"}
	jobID, _ := rig.queue.Enqueue(ctx, queue.JobTypeSong, 1, 9, queue.PriorityHigh, queue.SongMeta())

	// Worker not started: the job is still pending.
	if err := rig.worker.Cancel(ctx, jobID, "cancelled by user"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	job, _ := rig.queue.Get(ctx, jobID)
	if job.Status != queue.StatusFailed || job.ErrorMessage == nil || *job.ErrorMessage != "cancelled by user" {
		t.Fatalf("cancelled pending job should fail with the reason, got %+v", job)
	}
	summary, _ := rig.queue.Status(ctx)
	if summary.TotalPending != 0 {
		t.Fatalf("cancelled job must leave the index, %d pending", summary.TotalPending)
	}
}
