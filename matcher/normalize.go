package matcher

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeText applies NFKC, drops control characters other than tab and
// newline, and trims surrounding whitespace.
func NormalizeText(text string) string {
	// Chained transformers carry state, so each call builds its own.
	t := transform.Chain(norm.NFKC, runes.Remove(runes.Predicate(isStrayControl)))
	out, _, err := transform.String(t, text)
	if err != nil {
		out = norm.NFKC.String(text)
	}
	return strings.TrimSpace(out)
}

func isStrayControl(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\t'
}

// MatchKey is the exact stage comparison key: surrounding whitespace removed,
// then Unicode case folded.
func MatchKey(text string) string {
	return newKeyFunc()(text)
}

// newKeyFunc returns a MatchKey equivalent bound to its own caser, which is
// not safe for concurrent use.
func newKeyFunc() func(string) string {
	fold := cases.Fold()
	return func(s string) string {
		return fold.String(strings.TrimSpace(s))
	}
}
