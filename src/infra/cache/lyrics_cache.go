// Package cache implements the durable lyrics cache on Redis hashes.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cruxtone/hymnsift/src/infra/redisstore"
	"github.com/redis/go-redis/v9"
)

// SourceNone marks a negative entry: every provider missed, don't hammer
// them again until the marker expires.
const SourceNone = "none"

// Entry is one cached lyrics record.
type Entry struct {
	Lyrics    string
	Source    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Negative reports whether this entry is a full-miss marker.
func (e *Entry) Negative() bool { return e.Source == SourceNone }

// LyricsCache stores lyrics keyed by lowercase-trimmed (artist, title).
// Writes are last-writer-wins.
type LyricsCache struct {
	client      *redis.Client
	keys        redisstore.Keys
	ttl         time.Duration
	negativeTTL time.Duration
}

// NewLyricsCache creates a cache with the given positive and negative TTLs.
func NewLyricsCache(client *redis.Client, keys redisstore.Keys, ttl, negativeTTL time.Duration) *LyricsCache {
	return &LyricsCache{client: client, keys: keys, ttl: ttl, negativeTTL: negativeTTL}
}

func cacheKeyParts(artist, title string) (string, string) {
	return strings.ToLower(strings.TrimSpace(artist)), strings.ToLower(strings.TrimSpace(title))
}

// Find returns the cached entry for (artist, title), or nil on miss.
func (c *LyricsCache) Find(ctx context.Context, artist, title string) (*Entry, error) {
	artistLC, titleLC := cacheKeyParts(artist, title)
	fields, err := c.client.HGetAll(ctx, c.keys.LyricsCache(artistLC, titleLC)).Result()
	if err != nil {
		return nil, fmt.Errorf("lyrics cache lookup: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	entry := &Entry{
		Lyrics: fields["lyrics"],
		Source: fields["source"],
	}
	if t, err := time.Parse(time.RFC3339, fields["created_at"]); err == nil {
		entry.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, fields["updated_at"]); err == nil {
		entry.UpdatedAt = t
	}
	return entry, nil
}

// Upsert stores lyrics for (artist, title). Empty lyrics are never cached.
func (c *LyricsCache) Upsert(ctx context.Context, artist, title, lyrics, source string) error {
	if strings.TrimSpace(lyrics) == "" {
		return fmt.Errorf("refusing to cache empty lyrics for %q/%q", artist, title)
	}
	return c.write(ctx, artist, title, lyrics, source, c.ttl)
}

// MarkMiss stores a negative marker with the short TTL.
func (c *LyricsCache) MarkMiss(ctx context.Context, artist, title string) error {
	return c.write(ctx, artist, title, "", SourceNone, c.negativeTTL)
}

func (c *LyricsCache) write(ctx context.Context, artist, title, lyrics, source string, ttl time.Duration) error {
	artistLC, titleLC := cacheKeyParts(artist, title)
	key := c.keys.LyricsCache(artistLC, titleLC)
	now := time.Now().UTC().Format(time.RFC3339)

	createdAt := now
	if existing, err := c.client.HGet(ctx, key, "created_at").Result(); err == nil && existing != "" {
		createdAt = existing
	}

	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"lyrics":     lyrics,
		"source":     source,
		"created_at": createdAt,
		"updated_at": now,
	})
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("lyrics cache write: %w", err)
	}
	return nil
}

// EvictOlderThan removes entries whose last update is older than maxAge.
// Runs a SCAN over the cache keyspace; called hourly by the janitor.
func (c *LyricsCache) EvictOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	evicted := 0
	iter := c.client.Scan(ctx, 0, c.keys.LyricsCachePattern(), 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := c.client.HGet(ctx, key, "updated_at").Result()
		if err != nil {
			continue
		}
		updatedAt, err := time.Parse(time.RFC3339, raw)
		if err != nil || updatedAt.Before(cutoff) {
			if err := c.client.Del(ctx, key).Err(); err != nil {
				slog.Warn("Failed to evict lyrics cache entry", "key", key, "error", err)
				continue
			}
			evicted++
		}
	}
	if err := iter.Err(); err != nil {
		return evicted, fmt.Errorf("lyrics cache scan: %w", err)
	}
	return evicted, nil
}
