package lyrics

import "context"

// SearchParams contains the terms handed to a provider. Title and Artist are
// already normalized for search (folded, stripped of feat./remaster noise).
type SearchParams struct {
	Title  string
	Artist string
}

// Provider defines the interface for fetching lyrics from external services.
type Provider interface {
	// SearchLyrics returns lyrics text for the given terms. A miss is an
	// error; retryable transport failures are marked via the retry package.
	SearchLyrics(ctx context.Context, params SearchParams) (string, error)

	// Name returns the provider name used as cache source tag.
	Name() string

	// IsEnabled returns whether the provider is enabled.
	IsEnabled() bool
}
