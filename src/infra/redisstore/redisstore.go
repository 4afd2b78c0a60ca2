// Package redisstore builds the shared Redis client and owns the key schema
// used by the queue, the progress mirror, and the lyrics cache.
package redisstore

import (
	"context"
	"fmt"

	"github.com/cruxtone/hymnsift/src/features/config"
	"github.com/redis/go-redis/v9"
)

// NewClient creates a Redis client from the application configuration.
func NewClient(cfg config.Redis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Ping checks that Redis is reachable.
func Ping(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis unreachable: %w", err)
	}
	return nil
}

// Keys holds the key schema. The queue, job-record, and active-slot keys
// carry the namespace; progress mirror and lyrics cache keys use fixed
// prefixes that are the same for every namespace.
type Keys struct {
	namespace string
}

// NewKeys creates a key schema for the given queue namespace.
func NewKeys(namespace string) Keys {
	return Keys{namespace: namespace}
}

// Queue is the sorted set holding pending job ids scored by priority.
func (k Keys) Queue() string { return k.namespace + "_queue" }

// Jobs is the hash mapping job id to the serialized job record.
func (k Keys) Jobs() string { return k.namespace + "_jobs" }

// Active is the single-valued slot holding the active job id.
func (k Keys) Active() string { return k.namespace + "_active" }

// Progress is the mirror key for a job's progress record.
func (k Keys) Progress(jobID string) string {
	return fmt.Sprintf("progress:%s", jobID)
}

// LyricsCache is the hash key for one cached lyrics entry.
func (k Keys) LyricsCache(artistLC, titleLC string) string {
	return fmt.Sprintf("lyrics_cache:%s:%s", artistLC, titleLC)
}

// LyricsCachePattern matches every lyrics cache entry, for scans.
func (k Keys) LyricsCachePattern() string { return "lyrics_cache:*" }
