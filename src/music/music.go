// Package music holds the domain types the analysis core reads and writes.
// The full relational schema (users, sync state, audit trails) belongs to the
// host application; only the fields the pipeline touches live here.
package music

import "context"

// Song is the minimal song surface the analysis core needs.
type Song struct {
	ID       int64
	Title    string
	Artist   string
	Explicit bool
	Analyzed bool
	// NeedsReview marks a song whose last analysis was accepted but flagged
	// by the quality gate for manual review.
	NeedsReview bool
	// AnalysisJSON is the last persisted analyzer result, JSON-encoded.
	AnalysisJSON string
}

// Identity is the slice of a song handed to the analyzer.
type Identity struct {
	ID       int64
	Title    string
	Artist   string
	Explicit bool
}

// Identity returns the analyzer-facing view of a song.
func (s *Song) Identity() Identity {
	return Identity{ID: s.ID, Title: s.Title, Artist: s.Artist, Explicit: s.Explicit}
}

// Playlist is the minimal playlist surface: ownership plus membership.
type Playlist struct {
	ID     int64
	UserID int64
	Name   string
}

// Library is the persistence port for songs and playlists.
type Library interface {
	GetSong(ctx context.Context, id int64) (*Song, error)
	GetPlaylist(ctx context.Context, id int64) (*Playlist, error)
	// PlaylistSongs returns the songs of a playlist in playlist order.
	// With unanalyzedOnly set, songs that already carry an analysis are
	// filtered out.
	PlaylistSongs(ctx context.Context, playlistID int64, unanalyzedOnly bool) ([]*Song, error)
	// UnanalyzedSongs returns up to limit songs without an analysis result.
	UnanalyzedSongs(ctx context.Context, limit int) ([]*Song, error)
	// UserOwnsSongPlaylist reports whether the user owns at least one
	// playlist containing the song.
	UserOwnsSongPlaylist(ctx context.Context, userID, songID int64) (bool, error)
	// SaveAnalysis persists an analyzer result for a song and marks it
	// analyzed. needsReview flags the result for manual review.
	SaveAnalysis(ctx context.Context, songID int64, resultJSON string, needsReview bool) error
}
