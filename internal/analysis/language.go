package analysis

import (
	"errors"
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"
)

// ErrUnsupportedLanguage is returned by ParseLanguage for inputs outside the
// supported table.
var ErrUnsupportedLanguage = errors.New("analysis: unsupported language")

// suggestThreshold is the minimum Jaro-Winkler similarity for a "did you
// mean" hint.
const suggestThreshold = 0.80

// language pairs an ISO 639-1 code with its English name.
type language struct {
	code string
	name string
}

var languages = []language{
	{"ta", "Tamil"},
	{"en", "English"},
	{"hi", "Hindi"},
	{"ml", "Malayalam"},
	{"te", "Telugu"},
}

// SupportedLanguages returns the supported language names in table order.
func SupportedLanguages() []string {
	out := make([]string, len(languages))
	for i, l := range languages {
		out[i] = l.name
	}
	return out
}

func lookup(s string) (language, bool) {
	s = strings.TrimSpace(s)
	for _, l := range languages {
		if strings.EqualFold(s, l.code) || strings.EqualFold(s, l.name) {
			return l, true
		}
	}
	return language{}, false
}

// NormalizeLanguage maps a code or name to the canonical name, e.g. "TA" to
// "Tamil". Unknown inputs are returned unchanged.
func NormalizeLanguage(s string) string {
	if l, ok := lookup(s); ok {
		return l.name
	}
	return s
}

// IsSupported reports whether s is a supported code or name.
func IsSupported(s string) bool {
	_, ok := lookup(s)
	return ok
}

// Suggest returns the supported language name closest to s, if any is
// similar enough to be a plausible typo.
func Suggest(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", false
	}
	best, bestScore := "", 0.0
	for _, l := range languages {
		score := matchr.JaroWinkler(s, strings.ToLower(l.name), false)
		if score > bestScore {
			best, bestScore = l.name, score
		}
	}
	if bestScore < suggestThreshold {
		return "", false
	}
	return best, true
}

// ParseLanguage returns the canonical name for s or an error wrapping
// ErrUnsupportedLanguage. The error message carries a suggestion when one is
// close enough.
func ParseLanguage(s string) (string, error) {
	if l, ok := lookup(s); ok {
		return l.name, nil
	}
	if hint, ok := Suggest(s); ok {
		return "", fmt.Errorf("%w: %q (did you mean %q?)", ErrUnsupportedLanguage, s, hint)
	}
	return "", fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedLanguage, s, strings.Join(SupportedLanguages(), ", "))
}
