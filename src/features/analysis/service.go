package analysis

import (
	"context"
	"math"

	"github.com/cruxtone/hymnsift/src/features/hosting"
	"github.com/cruxtone/hymnsift/src/features/progress"
	"github.com/cruxtone/hymnsift/src/features/queue"
	"github.com/cruxtone/hymnsift/src/music"
	"github.com/gofiber/fiber/v2"
)

// Service orchestrates enqueueing analysis work and the caller-facing
// aggregate status.
type Service struct {
	queue   *queue.Service
	library music.Library
	eta     *progress.ETACalculator
}

// NewService creates the analysis orchestration service.
func NewService(q *queue.Service, library music.Library, eta *progress.ETACalculator) *Service {
	return &Service{queue: q, library: library, eta: eta}
}

// AnalyzeSong enqueues a high-priority song analysis. The caller must own a
// playlist containing the song.
func (s *Service) AnalyzeSong(ctx context.Context, userID, songID int64) (string, error) {
	song, err := s.library.GetSong(ctx, songID)
	if err != nil {
		return "", err
	}
	if song == nil {
		return "", hosting.NewError(fiber.StatusNotFound, hosting.TypeNotFound, "song not found")
	}
	owns, err := s.library.UserOwnsSongPlaylist(ctx, userID, songID)
	if err != nil {
		return "", err
	}
	if !owns {
		return "", hosting.NewError(fiber.StatusForbidden, hosting.TypeAuthorization, "song is not in any of your playlists")
	}
	return s.queue.Enqueue(ctx, queue.JobTypeSong, userID, songID, queue.PriorityHigh, queue.SongMeta())
}

// AnalyzePlaylist enqueues a medium-priority playlist analysis for a
// playlist the caller owns.
func (s *Service) AnalyzePlaylist(ctx context.Context, userID, playlistID int64, unanalyzedOnly bool) (string, error) {
	playlist, err := s.library.GetPlaylist(ctx, playlistID)
	if err != nil {
		return "", err
	}
	if playlist == nil {
		return "", hosting.NewError(fiber.StatusNotFound, hosting.TypeNotFound, "playlist not found")
	}
	if playlist.UserID != userID {
		return "", hosting.NewError(fiber.StatusForbidden, hosting.TypeAuthorization, "playlist is not yours")
	}
	return s.queue.Enqueue(ctx, queue.JobTypePlaylist, userID, playlistID, queue.PriorityMedium, queue.PlaylistMeta(unanalyzedOnly))
}

// AnalyzeBackground enqueues a low-priority background sweep. With no song
// ids the worker falls back to the oldest unanalyzed songs.
func (s *Service) AnalyzeBackground(ctx context.Context, userID int64, songIDs []int64) (string, error) {
	return s.queue.Enqueue(ctx, queue.JobTypeBackground, userID, userID, queue.PriorityLow, queue.BackgroundMeta(songIDs))
}

// CallerStatus is the aggregate view for one user.
type CallerStatus struct {
	QueueLength        int            `json:"queue_length"`
	UserPending        int            `json:"user_pending"`
	UserInProgress     int            `json:"user_in_progress"`
	ByStatus           map[string]int `json:"by_status"`
	EstimatedCompleteM float64        `json:"estimated_completion_minutes"`
}

// Status aggregates the queue for the calling user: pending/in-progress
// breakdown and a rough time-to-drain from the ETA history.
func (s *Service) Status(ctx context.Context, userID int64) (*CallerStatus, error) {
	summary, err := s.queue.Status(ctx)
	if err != nil {
		return nil, err
	}

	status := &CallerStatus{
		QueueLength: summary.TotalPending,
		ByStatus:    summary.ByStatus,
	}
	status.UserPending = summary.ByStatus[string(queue.StatusPending)]
	if summary.ActiveJob != nil && summary.ActiveJob.UserID == userID {
		status.UserInProgress = 1
	}

	// Rough drain estimate: every queued job costs at least one song-sized
	// item at the historical rate.
	drainSeconds := s.eta.Estimate(queue.JobTypeSong, summary.TotalPending, 0, 0)
	status.EstimatedCompleteM = math.Round(drainSeconds/60.0*100) / 100
	return status, nil
}
