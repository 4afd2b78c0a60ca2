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

const userAgent = "Christian Cleanup App/1.0"

// LRCLib API response structures
type lrclibSearchResponse []lrclibSong

type lrclibSong struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`
	Artist       string  `json:"artistName"`
	Album        string  `json:"albumName"`
	Duration     float64 `json:"duration"`
	PlainLyrics  string  `json:"plainLyrics"`
	SyncedLyrics string  `json:"syncedLyrics"`
}

// LRCLibProvider implements lyrics.Provider for LRCLib. Free, no
// credentials, preferred because it offers time-synced lyrics.
type LRCLibProvider struct {
	enabled bool
	baseURL string
	client  *http.Client
}

// NewLRCLibProvider creates a new LRCLib provider.
func NewLRCLibProvider(enabled bool, timeout time.Duration) *LRCLibProvider {
	return &LRCLibProvider{
		enabled: enabled,
		baseURL: "https://lrclib.net",
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *LRCLibProvider) SearchLyrics(ctx context.Context, params lyrics.SearchParams) (string, error) {
	query := url.Values{}
	if params.Title != "" {
		query.Set("track_name", params.Title)
	}
	if params.Artist != "" {
		query.Set("artist_name", params.Artist)
	}
	if len(query) == 0 {
		return "", fmt.Errorf("insufficient search parameters")
	}

	searchURL := fmt.Sprintf("%s/api/search?%s", p.baseURL, query.Encode())

	req, err := http.NewRequestWithContext(ctx, "GET", searchURL, nil)
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
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("LRCLib API request failed with status %d", resp.StatusCode)
	}

	var searchResp lrclibSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(searchResp) == 0 {
		return "", fmt.Errorf("no lyrics found")
	}

	// Synced lyrics first: strip the timestamps and keep the text.
	song := searchResp[0]
	if song.SyncedLyrics != "" {
		return extractPlainFromSynced(song.SyncedLyrics), nil
	}
	if song.PlainLyrics != "" {
		return song.PlainLyrics, nil
	}

	return "", fmt.Errorf("no lyrics content available")
}

// extractPlainFromSynced strips [mm:ss.xx] markers from LRC-format lyrics.
func extractPlainFromSynced(syncedLyrics string) string {
	lines := strings.Split(syncedLyrics, "\n")
	var plainLines []string

	for _, line := range lines {
		if strings.Contains(line, "]") {
			parts := strings.SplitN(line, "]", 2)
			if len(parts) == 2 {
				plainLines = append(plainLines, strings.TrimSpace(parts[1]))
			}
		}
	}

	return strings.Join(plainLines, "\n")
}

func (p *LRCLibProvider) Name() string    { return "lrclib" }
func (p *LRCLibProvider) IsEnabled() bool { return p.enabled }
