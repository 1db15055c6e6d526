package parseutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// StripDiacritics decomposes s (NFKD) and removes combining marks, so
// "Gewässer" becomes "Gewasser".
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Fold strips diacritics and lowercases.
func Fold(s string) string {
	return strings.ToLower(StripDiacritics(s))
}
