// Package database is the SQLite implementation of the music.Library port.
package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cruxtone/hymnsift/src/music"
	_ "github.com/mattn/go-sqlite3"
)

// SqliteLibrary is a SQLite implementation of the Library interface.
type SqliteLibrary struct {
	db *sql.DB
}

// NewSqliteLibrary creates a new SqliteLibrary.
func NewSqliteLibrary(path string) (*SqliteLibrary, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if err := createTables(db); err != nil {
		return nil, err
	}
	return &SqliteLibrary{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS songs (
			id INTEGER PRIMARY KEY,
			title TEXT NOT NULL,
			artist TEXT NOT NULL,
			explicit BOOLEAN DEFAULT FALSE,
			analyzed BOOLEAN DEFAULT FALSE,
			needs_review BOOLEAN DEFAULT FALSE,
			analysis_json TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS playlists (
			id INTEGER PRIMARY KEY,
			user_id INTEGER NOT NULL,
			name TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS playlist_songs (
			playlist_id INTEGER NOT NULL,
			song_id INTEGER NOT NULL,
			position INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (playlist_id, song_id),
			FOREIGN KEY (playlist_id) REFERENCES playlists(id),
			FOREIGN KEY (song_id) REFERENCES songs(id)
		);

		CREATE INDEX IF NOT EXISTS idx_songs_analyzed ON songs(analyzed);
		CREATE INDEX IF NOT EXISTS idx_playlists_user ON playlists(user_id);
	`)
	return err
}

const songColumns = "id, title, artist, explicit, analyzed, needs_review, analysis_json"

func scanSong(row interface{ Scan(...any) error }) (*music.Song, error) {
	var song music.Song
	err := row.Scan(&song.ID, &song.Title, &song.Artist, &song.Explicit, &song.Analyzed, &song.NeedsReview, &song.AnalysisJSON)
	if err != nil {
		return nil, err
	}
	return &song, nil
}

// GetSong returns a song by id, or nil when unknown.
func (l *SqliteLibrary) GetSong(ctx context.Context, id int64) (*music.Song, error) {
	row := l.db.QueryRowContext(ctx, "SELECT "+songColumns+" FROM songs WHERE id = ?", id)
	song, err := scanSong(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get song %d: %w", id, err)
	}
	return song, nil
}

// GetPlaylist returns a playlist by id, or nil when unknown.
func (l *SqliteLibrary) GetPlaylist(ctx context.Context, id int64) (*music.Playlist, error) {
	var playlist music.Playlist
	err := l.db.QueryRowContext(ctx, "SELECT id, user_id, name FROM playlists WHERE id = ?", id).
		Scan(&playlist.ID, &playlist.UserID, &playlist.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist %d: %w", id, err)
	}
	return &playlist, nil
}

// PlaylistSongs returns the songs of a playlist in playlist order.
func (l *SqliteLibrary) PlaylistSongs(ctx context.Context, playlistID int64, unanalyzedOnly bool) ([]*music.Song, error) {
	query := `
		SELECT s.id, s.title, s.artist, s.explicit, s.analyzed, s.needs_review, s.analysis_json
		FROM songs s
		JOIN playlist_songs ps ON ps.song_id = s.id
		WHERE ps.playlist_id = ?`
	if unanalyzedOnly {
		query += " AND s.analyzed = FALSE"
	}
	query += " ORDER BY ps.position"

	rows, err := l.db.QueryContext(ctx, query, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to list playlist %d songs: %w", playlistID, err)
	}
	defer rows.Close()

	var songs []*music.Song
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan song row: %w", err)
		}
		songs = append(songs, song)
	}
	return songs, rows.Err()
}

// UnanalyzedSongs returns up to limit songs without an analysis result.
func (l *SqliteLibrary) UnanalyzedSongs(ctx context.Context, limit int) ([]*music.Song, error) {
	rows, err := l.db.QueryContext(ctx,
		"SELECT "+songColumns+" FROM songs WHERE analyzed = FALSE ORDER BY id LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unanalyzed songs: %w", err)
	}
	defer rows.Close()

	var songs []*music.Song
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan song row: %w", err)
		}
		songs = append(songs, song)
	}
	return songs, rows.Err()
}

// UserOwnsSongPlaylist reports whether the user owns a playlist containing
// the song.
func (l *SqliteLibrary) UserOwnsSongPlaylist(ctx context.Context, userID, songID int64) (bool, error) {
	var count int
	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM playlists p
		JOIN playlist_songs ps ON ps.playlist_id = p.id
		WHERE p.user_id = ? AND ps.song_id = ?`, userID, songID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed ownership check for song %d: %w", songID, err)
	}
	return count > 0, nil
}

// SaveAnalysis persists an analyzer result and marks the song analyzed.
func (l *SqliteLibrary) SaveAnalysis(ctx context.Context, songID int64, resultJSON string, needsReview bool) error {
	res, err := l.db.ExecContext(ctx,
		"UPDATE songs SET analyzed = TRUE, needs_review = ?, analysis_json = ? WHERE id = ?",
		needsReview, resultJSON, songID)
	if err != nil {
		return fmt.Errorf("failed to save analysis for song %d: %w", songID, err)
	}
	affected, err := res.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("song not found: %d", songID)
	}
	return nil
}

// AddSong inserts a song; used by tests and host-application seeding.
func (l *SqliteLibrary) AddSong(ctx context.Context, song *music.Song) error {
	_, err := l.db.ExecContext(ctx,
		"INSERT INTO songs (id, title, artist, explicit) VALUES (?, ?, ?, ?)",
		song.ID, song.Title, song.Artist, song.Explicit)
	return err
}

// AddPlaylist inserts a playlist with its member songs.
func (l *SqliteLibrary) AddPlaylist(ctx context.Context, playlist *music.Playlist, songIDs []int64) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO playlists (id, user_id, name) VALUES (?, ?, ?)",
		playlist.ID, playlist.UserID, playlist.Name); err != nil {
		return err
	}
	for i, songID := range songIDs {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO playlist_songs (playlist_id, song_id, position) VALUES (?, ?, ?)",
			playlist.ID, songID, i); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Close releases the underlying database handle.
func (l *SqliteLibrary) Close() error {
	return l.db.Close()
}
