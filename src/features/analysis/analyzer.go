package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/cruxtone/hymnsift/src/features/lyrics"
	"github.com/cruxtone/hymnsift/src/music"
)

const analysisVersion = "lexical-1.2"

// LyricsAnalyzer is the shipped analyzer: it resolves lyrics through the
// fetcher and scores them lexically. The host application can swap in a
// richer model behind the same interface; the field contract is what the
// quality gate validates.
type LyricsAnalyzer struct {
	lyrics *lyrics.Service
}

// NewLyricsAnalyzer creates the default analyzer over the lyrics fetcher.
func NewLyricsAnalyzer(lyricsService *lyrics.Service) *LyricsAnalyzer {
	return &LyricsAnalyzer{lyrics: lyricsService}
}

// themeLexicon maps a biblical theme to the phrases that signal it.
var themeLexicon = map[string][]string{
	"worship":    {"praise", "worship", "hallelujah", "glory", "holy"},
	"salvation":  {"saved", "salvation", "redeem", "mercy", "forgiven"},
	"faith":      {"faith", "believe", "trust in you", "hope in"},
	"grace":      {"grace", "amazing grace", "undeserved"},
	"scripture":  {"jesus", "christ", "lord", "god", "spirit"},
	"redemption": {"cross", "blood", "sacrifice", "risen"},
}

// scriptureAnchors are the references attached when a theme is detected.
var scriptureAnchors = map[string]string{
	"worship":    "Psalm 95:6",
	"salvation":  "Romans 10:9",
	"faith":      "Hebrews 11:1",
	"grace":      "Ephesians 2:8",
	"scripture":  "John 1:1",
	"redemption": "1 Peter 1:18-19",
}

var concernSignals = []string{"hate", "curse", "damn", "kill", "drunk", "high tonight"}

func (a *LyricsAnalyzer) Analyze(ctx context.Context, song music.Identity) (map[string]any, error) {
	text, err := a.lyrics.Fetch(ctx, song.Title, song.Artist)
	if err != nil {
		return nil, fmt.Errorf("lyrics fetch for song %d: %w", song.ID, err)
	}
	if text == "" {
		return nil, fmt.Errorf("no lyrics available for song %d (%s - %s)", song.ID, song.Artist, song.Title)
	}

	lower := strings.ToLower(text)

	var themes []any
	scripture := map[string]any{}
	for theme, phrases := range themeLexicon {
		for _, phrase := range phrases {
			if strings.Contains(lower, phrase) {
				themes = append(themes, theme)
				scripture[theme] = scriptureAnchors[theme]
				break
			}
		}
	}

	var flags []any
	for _, signal := range concernSignals {
		if strings.Contains(lower, signal) {
			flags = append(flags, signal)
		}
	}
	if song.Explicit {
		flags = append(flags, "explicit_content")
	}

	score := float64(len(themes)) * 18.0
	if score > 90 {
		score = 90
	}
	score -= float64(len(flags)) * 15.0
	if score < 0 {
		score = 0
	}
	bonus := float64(len(themes)) * 10.0

	result := map[string]any{
		"christian_score":      score,
		"concern_level":        concernLevelForScore(score),
		"biblical_themes":      themes,
		"supporting_scripture": scripture,
		"explanation": fmt.Sprintf(
			"Lexical analysis of %q by %s found %d biblical theme(s) and %d purity flag(s) across %d characters of lyrics.",
			song.Title, song.Artist, len(themes), len(flags), len(text)),
		"purity_flags":         flags,
		"positive_score_bonus": bonus,
		"analysis_version":     analysisVersion,
	}
	if themes == nil {
		result["biblical_themes"] = []any{}
	}
	if flags == nil {
		result["purity_flags"] = []any{}
	}
	return result, nil
}

func concernLevelForScore(score float64) string {
	switch {
	case score >= 85:
		return "Low"
	case score >= 70:
		return "Medium"
	case score >= 50:
		return "High"
	default:
		return "Very High"
	}
}
