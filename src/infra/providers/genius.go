package providers

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cruxtone/hymnsift/src/features/lyrics"
	"github.com/cruxtone/hymnsift/src/infra/retry"
	"github.com/go-resty/resty/v2"
)

// Genius API response structures
type geniusSearchResponse struct {
	Response struct {
		Hits []geniusHit `json:"hits"`
	} `json:"response"`
}

type geniusHit struct {
	Result geniusSong `json:"result"`
}

type geniusSong struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	ArtistNames string `json:"artist_names"`
	URL         string `json:"url"`
}

// GeniusProvider implements lyrics.Provider for Genius. Requires an access
// token; skipped entirely when none is configured.
type GeniusProvider struct {
	enabled bool
	token   string
	api     *resty.Client
	pages   *resty.Client
}

// NewGeniusProvider creates a new Genius provider. retries is applied by
// resty on top of the fetcher's own policy, matching the smaller
// genius_retries knob.
func NewGeniusProvider(enabled bool, token string, timeout time.Duration, retries int) *GeniusProvider {
	api := resty.New().
		SetBaseURL("https://api.genius.com").
		SetAuthToken(token).
		SetHeader("User-Agent", userAgent).
		SetTimeout(timeout).
		SetRetryCount(retries)
	pages := resty.New().
		SetHeader("User-Agent", userAgent).
		SetTimeout(timeout)
	return &GeniusProvider{enabled: enabled && token != "", token: token, api: api, pages: pages}
}

func (p *GeniusProvider) SearchLyrics(ctx context.Context, params lyrics.SearchParams) (string, error) {
	if params.Title == "" {
		return "", fmt.Errorf("insufficient search parameters")
	}

	songURL, err := p.searchSong(ctx, strings.TrimSpace(params.Title+" "+params.Artist))
	if err != nil {
		return "", fmt.Errorf("failed to search song: %w", err)
	}

	raw, err := p.fetchLyrics(ctx, songURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch lyrics: %w", err)
	}

	cleaned := cleanGeniusLyrics(raw)
	if cleaned == "" {
		return "", fmt.Errorf("no lyrics content available")
	}
	return cleaned, nil
}

func (p *GeniusProvider) searchSong(ctx context.Context, query string) (string, error) {
	var searchResp geniusSearchResponse
	resp, err := p.api.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		SetResult(&searchResp).
		Get("/search")
	if err != nil {
		return "", retry.Retryable(fmt.Errorf("failed to make request: %w", err))
	}
	if retry.IsRetryableStatus(resp.StatusCode()) {
		return "", retry.RetryableStatus(resp.RawResponse)
	}
	if resp.IsError() {
		return "", fmt.Errorf("Genius API request failed with status %d", resp.StatusCode())
	}

	if len(searchResp.Response.Hits) == 0 {
		return "", fmt.Errorf("no songs found")
	}
	return searchResp.Response.Hits[0].Result.URL, nil
}

func (p *GeniusProvider) fetchLyrics(ctx context.Context, songURL string) (string, error) {
	resp, err := p.pages.R().SetContext(ctx).Get(songURL)
	if err != nil {
		return "", retry.Retryable(fmt.Errorf("failed to fetch lyrics page: %w", err))
	}
	if retry.IsRetryableStatus(resp.StatusCode()) {
		return "", retry.RetryableStatus(resp.RawResponse)
	}
	if resp.IsError() {
		return "", fmt.Errorf("lyrics page request failed with status %d", resp.StatusCode())
	}

	html := string(resp.Body())
	if len(html) < 1000 || strings.Contains(html, "Page not found") {
		return "", fmt.Errorf("page appears to be an error or empty page")
	}
	return extractLyricsFromHTML(html)
}

var (
	lyricsContainerRe = regexp.MustCompile(`(?s)<div[^>]*data-lyrics-container="true"[^>]*>(.*?)</div>`)
	lyricsLegacyRe    = regexp.MustCompile(`(?s)<div[^>]*class="Lyrics__Container[^"]*"[^>]*>(.*?)</div>`)
	brRe              = regexp.MustCompile(`<br\s*/?>`)
	tagRe             = regexp.MustCompile(`<[^>]+>`)
)

func extractLyricsFromHTML(html string) (string, error) {
	matches := lyricsContainerRe.FindAllStringSubmatch(html, -1)
	if len(matches) == 0 {
		matches = lyricsLegacyRe.FindAllStringSubmatch(html, -1)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("lyrics not found in page")
	}

	var parts []string
	for _, m := range matches {
		chunk := brRe.ReplaceAllString(m[1], "\n")
		chunk = tagRe.ReplaceAllString(chunk, "")
		parts = append(parts, chunk)
	}
	text := strings.Join(parts, "\n")
	text = strings.ReplaceAll(text, "&amp;", "&")
	text = strings.ReplaceAll(text, "&#x27;", "'")
	text = strings.ReplaceAll(text, "&quot;", `"`)
	return strings.TrimSpace(text), nil
}

var (
	sectionMarkerRe = regexp.MustCompile(`\[[^\]]*\]`)
	embedTrailerRe  = regexp.MustCompile(`\d*Embed\s*$`)
)

// cleanGeniusLyrics strips section markers ([Verse], [Chorus]), trailing
// NNEmbed artifacts, and the "You might also like" trailer Genius injects.
func cleanGeniusLyrics(text string) string {
	text = sectionMarkerRe.ReplaceAllString(text, "")
	text = embedTrailerRe.ReplaceAllString(strings.TrimSpace(text), "")
	text = strings.ReplaceAll(text, "You might also like", "")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func (p *GeniusProvider) Name() string    { return "genius" }
func (p *GeniusProvider) IsEnabled() bool { return p.enabled }
