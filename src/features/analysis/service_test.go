package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cruxtone/hymnsift/src/features/hosting"
	"github.com/cruxtone/hymnsift/src/features/progress"
	"github.com/cruxtone/hymnsift/src/features/queue"
	"github.com/cruxtone/hymnsift/src/infra/redisstore"
	"github.com/cruxtone/hymnsift/src/music"
	"github.com/redis/go-redis/v9"
)

type stubLibrary struct {
	music.Library
	songs     map[int64]*music.Song
	playlists map[int64]*music.Playlist
	owns      bool
}

func (l *stubLibrary) GetSong(ctx context.Context, id int64) (*music.Song, error) {
	return l.songs[id], nil
}

func (l *stubLibrary) GetPlaylist(ctx context.Context, id int64) (*music.Playlist, error) {
	return l.playlists[id], nil
}

func (l *stubLibrary) UserOwnsSongPlaylist(ctx context.Context, userID, songID int64) (bool, error) {
	return l.owns, nil
}

func newTestAnalysis(t *testing.T, library *stubLibrary) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := queue.NewService(client, redisstore.NewKeys("analysis"), time.Hour, 24*time.Hour)
	return NewService(q, library, progress.NewETACalculator())
}

func TestAnalyzeSongEnqueuesHighPriority(t *testing.T) {
	library := &stubLibrary{
		songs: map[int64]*music.Song{5: {ID: 5, Title: "T", Artist: "A"}},
		owns:  true,
	}
	s := newTestAnalysis(t, library)

	jobID, err := s.AnalyzeSong(context.Background(), 1, 5)
	if err != nil {
		t.Fatalf("analyze song: %v", err)
	}
	job, _ := s.queue.Get(context.Background(), jobID)
	if job.Type != queue.JobTypeSong || job.Priority != queue.PriorityHigh {
		t.Fatalf("song analysis must be high priority, got %+v", job)
	}
}

func TestAnalyzeSongUnknownIs404(t *testing.T) {
	s := newTestAnalysis(t, &stubLibrary{songs: map[int64]*music.Song{}, owns: true})
	_, err := s.AnalyzeSong(context.Background(), 1, 999)
	var apiErr *hosting.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 404 {
		t.Fatalf("expected 404 API error, got %v", err)
	}
}

func TestAnalyzeSongNotOwnedIs403(t *testing.T) {
	library := &stubLibrary{
		songs: map[int64]*music.Song{5: {ID: 5}},
		owns:  false,
	}
	s := newTestAnalysis(t, library)
	_, err := s.AnalyzeSong(context.Background(), 1, 5)
	var apiErr *hosting.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 403 {
		t.Fatalf("callers may only analyze songs from their playlists, got %v", err)
	}
}

func TestAnalyzePlaylistOwnershipAndMetadata(t *testing.T) {
	library := &stubLibrary{
		playlists: map[int64]*music.Playlist{3: {ID: 3, UserID: 1}},
	}
	s := newTestAnalysis(t, library)
	ctx := context.Background()

	jobID, err := s.AnalyzePlaylist(ctx, 1, 3, true)
	if err != nil {
		t.Fatalf("analyze playlist: %v", err)
	}
	job, _ := s.queue.Get(ctx, jobID)
	if job.Type != queue.JobTypePlaylist || job.Priority != queue.PriorityMedium {
		t.Fatalf("playlist analysis must be medium priority, got %+v", job)
	}
	if !job.Metadata.UnanalyzedOnly() {
		t.Fatal("unanalyzed_only flag lost")
	}

	_, err = s.AnalyzePlaylist(ctx, 2, 3, false)
	var apiErr *hosting.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != 403 {
		t.Fatalf("foreign playlist must be 403, got %v", err)
	}

	_, err = s.AnalyzePlaylist(ctx, 1, 404, false)
	if !errors.As(err, &apiErr) || apiErr.Status != 404 {
		t.Fatalf("unknown playlist must be 404, got %v", err)
	}
}

func TestStatusAggregates(t *testing.T) {
	library := &stubLibrary{
		songs: map[int64]*music.Song{1: {ID: 1}},
		owns:  true,
	}
	s := newTestAnalysis(t, library)
	ctx := context.Background()

	s.AnalyzeSong(ctx, 1, 1)
	s.AnalyzeBackground(ctx, 1, []int64{1})

	status, err := s.Status(ctx, 1)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.QueueLength != 2 || status.UserPending != 2 {
		t.Fatalf("unexpected aggregates: %+v", status)
	}
	if status.EstimatedCompleteM != 1.0 {
		t.Fatalf("2 queued items at the 30s default should estimate 1 minute, got %.2f", status.EstimatedCompleteM)
	}
}
