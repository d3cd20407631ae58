package tutorsite

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldDiacritics strips combining marks so "café" slugs as "cafe".
var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify converts a title to a URL-safe slug: lower-cased, diacritics
// stripped, every run outside [a-z0-9] folded into a single hyphen.
func Slugify(s string) string {
	if folded, _, err := transform.String(foldDiacritics, s); err == nil {
		s = folded
	}
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	prev := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prev = false
		default:
			if !prev && b.Len() > 0 {
				b.WriteByte('-')
				prev = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// NextSlug decides the slug shown (and saved) after a title change. The
// slug tracks the title until the operator edits the slug field by hand;
// editing an existing post that already carries a slug also pins it.
func NextSlug(title, currentSlug string, slugEdited, editing bool) string {
	currentSlug = strings.TrimSpace(currentSlug)
	if slugEdited && currentSlug != "" {
		return Slugify(currentSlug)
	}
	if editing && currentSlug != "" {
		return currentSlug
	}
	return Slugify(title)
}
