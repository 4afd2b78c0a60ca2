package lyrics

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cruxtone/hymnsift/src/features/metrics"
	"github.com/cruxtone/hymnsift/src/infra/cache"
	"github.com/cruxtone/hymnsift/src/infra/ratelimit"
	"github.com/cruxtone/hymnsift/src/infra/retry"
)

// Service resolves lyrics through the cache and the provider chain without
// violating provider rate limits.
type Service struct {
	providers []Provider
	cache     *cache.LyricsCache
	guards    map[string]*ratelimit.Guard
	policy    retry.Policy
}

// NewService creates a fetcher over the given provider chain, in order.
// guards maps provider name to its rate-limit guard; providers without an
// entry run unguarded.
func NewService(providers []Provider, lyricsCache *cache.LyricsCache, guards map[string]*ratelimit.Guard, policy retry.Policy) *Service {
	return &Service{
		providers: providers,
		cache:     lyricsCache,
		guards:    guards,
		policy:    policy,
	}
}

// Fetch returns lyrics for (title, artist), or "" when no provider has them.
// A full miss is cached as a negative marker so repeated lookups stay cheap.
func (s *Service) Fetch(ctx context.Context, title, artist string) (string, error) {
	entry, err := s.cache.Find(ctx, artist, title)
	if err != nil {
		slog.Warn("Lyrics cache lookup failed", "artist", artist, "title", title, "error", err)
	}
	if entry != nil {
		if entry.Negative() {
			metrics.LyricsCacheHits.WithLabelValues("negative_hit").Inc()
			slog.Debug("Lyrics negative cache hit", "artist", artist, "title", title)
			return "", nil
		}
		metrics.LyricsCacheHits.WithLabelValues("hit").Inc()
		slog.Debug("Lyrics cache hit", "artist", artist, "title", title, "source", entry.Source)
		return entry.Lyrics, nil
	}
	metrics.LyricsCacheHits.WithLabelValues("miss").Inc()

	params := SearchParams{
		Title:  SearchTerm(title),
		Artist: SearchTerm(artist),
	}

	for _, provider := range s.providers {
		if !provider.IsEnabled() {
			continue
		}

		if guard := s.guards[provider.Name()]; guard != nil {
			if err := guard.Wait(ctx); err != nil {
				return "", fmt.Errorf("rate limit wait interrupted: %w", err)
			}
		}

		slog.Debug("Trying lyrics provider", "provider", provider.Name(), "title", params.Title, "artist", params.Artist)
		var text string
		err := s.policy.Do(ctx, func(ctx context.Context) error {
			var err error
			text, err = provider.SearchLyrics(ctx, params)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			metrics.LyricsProviderRequests.WithLabelValues(provider.Name(), "error").Inc()
			slog.Warn("Lyrics provider failed", "provider", provider.Name(), "title", params.Title, "artist", params.Artist, "error", err.Error())
			continue
		}
		if strings.TrimSpace(text) == "" {
			metrics.LyricsProviderRequests.WithLabelValues(provider.Name(), "miss").Inc()
			continue
		}

		metrics.LyricsProviderRequests.WithLabelValues(provider.Name(), "success").Inc()
		slog.Info("Found lyrics", "provider", provider.Name(), "title", params.Title, "artist", params.Artist, "lyricsLength", len(text))

		if err := s.cache.Upsert(ctx, artist, title, text, provider.Name()); err != nil {
			slog.Warn("Failed to cache lyrics", "artist", artist, "title", title, "error", err)
		}
		return text, nil
	}

	slog.Info("No lyrics found with any provider", "title", params.Title, "artist", params.Artist, "providers", len(s.providers))
	if err := s.cache.MarkMiss(ctx, artist, title); err != nil {
		slog.Warn("Failed to store negative cache marker", "artist", artist, "title", title, "error", err)
	}
	return "", nil
}
