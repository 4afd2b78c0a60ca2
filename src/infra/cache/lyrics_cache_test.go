package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cruxtone/hymnsift/src/infra/redisstore"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*LyricsCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	keys := redisstore.NewKeys("analysis")
	return NewLyricsCache(client, keys, 7*24*time.Hour, 24*time.Hour), mr
}

func TestUpsertAndFind(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if err := c.Upsert(ctx, "John Newton", "Amazing Grace", "Amazing grace, how sweet the sound", "lrclib"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Lookup is case-insensitive on the (artist, title) key.
	entry, err := c.Find(ctx, "  JOHN NEWTON ", "amazing grace")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if entry == nil || entry.Lyrics != "Amazing grace, how sweet the sound" || entry.Source != "lrclib" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.Negative() {
		t.Fatal("positive entry misread as negative marker")
	}
}

func TestFindMissReturnsNil(t *testing.T) {
	c, _ := newTestCache(t)
	entry, err := c.Find(context.Background(), "Nobody", "Nothing")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if entry != nil {
		t.Fatalf("expected nil on miss, got %+v", entry)
	}
}

func TestEmptyLyricsNeverCached(t *testing.T) {
	c, _ := newTestCache(t)
	if err := c.Upsert(context.Background(), "a", "b", "   ", "lrclib"); err == nil {
		t.Fatal("empty lyrics must be refused")
	}
}

func TestLastWriterWins(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.Upsert(ctx, "a", "b", "first version", "lrclib")
	c.Upsert(ctx, "a", "b", "second version", "genius")

	entry, _ := c.Find(ctx, "a", "b")
	if entry.Lyrics != "second version" || entry.Source != "genius" {
		t.Fatalf("last write must win, got %+v", entry)
	}
}

func TestNegativeMarker(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if err := c.MarkMiss(ctx, "Unknown", "Song"); err != nil {
		t.Fatalf("mark miss: %v", err)
	}
	entry, err := c.Find(ctx, "Unknown", "Song")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if entry == nil || !entry.Negative() {
		t.Fatalf("expected negative marker, got %+v", entry)
	}
}

func TestEvictOlderThan(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	c.Upsert(ctx, "old", "song", "old lyrics", "lrclib")
	c.Upsert(ctx, "new", "song", "new lyrics", "lrclib")

	// Age the first entry past the cutoff.
	stale := time.Now().Add(-31 * 24 * time.Hour).UTC().Format(time.RFC3339)
	mr.HSet("lyrics_cache:old:song", "updated_at", stale)

	evicted, err := c.EvictOlderThan(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("evict: %v", err)
	}
	if evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}
	if entry, _ := c.Find(ctx, "old", "song"); entry != nil {
		t.Fatal("stale entry should be gone")
	}
	if entry, _ := c.Find(ctx, "new", "song"); entry == nil {
		t.Fatal("fresh entry must survive eviction")
	}
}
