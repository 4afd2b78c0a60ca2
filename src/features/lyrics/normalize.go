package lyrics

import (
	"regexp"
	"strings"

	"github.com/gosimple/unidecode"
)

var (
	parentheticalRe = regexp.MustCompile(`\s*[(\[][^)\]]*[)\]]`)
	featRe          = regexp.MustCompile(`(?i)\s*(feat\.|featuring|ft\.)\s.*$`)
	versionTailRe   = regexp.MustCompile(`(?i)\s*-\s*(remaster(ed)?|remix|live|acoustic|demo).*$`)
	spaceRe         = regexp.MustCompile(`\s+`)
)

// CacheKey normalizes a term for cache identity: lowercase and trimmed,
// nothing more aggressive, so distinct editions stay distinct entries.
func CacheKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// SearchTerm normalizes a term for provider queries: ASCII-folded, stripped
// of parenthetical and bracketed suffixes, feat. clauses, and
// remaster/remix/live/acoustic/demo tails.
func SearchTerm(s string) string {
	s = unidecode.Unidecode(s)
	s = featRe.ReplaceAllString(s, "")
	s = versionTailRe.ReplaceAllString(s, "")
	s = parentheticalRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.ToLower(strings.TrimSpace(s))
}
