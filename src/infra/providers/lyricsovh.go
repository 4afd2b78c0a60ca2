package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cruxtone/hymnsift/src/features/lyrics"
	"github.com/cruxtone/hymnsift/src/infra/retry"
)

type lyricsOvhResponse struct {
	Lyrics string `json:"lyrics"`
	Error  string `json:"error"`
}

// LyricsOvhProvider implements lyrics.Provider for Lyrics.ovh. Free, no
// credentials, plain lyrics by URL path.
type LyricsOvhProvider struct {
	enabled bool
	baseURL string
	client  *http.Client
}

// NewLyricsOvhProvider creates a new Lyrics.ovh provider.
func NewLyricsOvhProvider(enabled bool, timeout time.Duration) *LyricsOvhProvider {
	return &LyricsOvhProvider{
		enabled: enabled,
		baseURL: "https://api.lyrics.ovh",
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *LyricsOvhProvider) SearchLyrics(ctx context.Context, params lyrics.SearchParams) (string, error) {
	if params.Artist == "" || params.Title == "" {
		return "", fmt.Errorf("insufficient search parameters")
	}

	fetchURL := fmt.Sprintf("%s/v1/%s/%s",
		p.baseURL, url.PathEscape(params.Artist), url.PathEscape(params.Title))

	req, err := http.NewRequestWithContext(ctx, "GET", fetchURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", retry.Retryable(fmt.Errorf("failed to make request: %w", err))
	}
	defer resp.Body.Close()

	if retry.IsRetryableStatus(resp.StatusCode) {
		return "", retry.RetryableStatus(resp)
	}
	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("no lyrics found")
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Lyrics.ovh API request failed with status %d", resp.StatusCode)
	}

	var body lyricsOvhResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	text := strings.TrimSpace(body.Lyrics)
	if text == "" {
		return "", fmt.Errorf("no lyrics content available")
	}
	return text, nil
}

func (p *LyricsOvhProvider) Name() string    { return "lyrics_ovh" }
func (p *LyricsOvhProvider) IsEnabled() bool { return p.enabled }
