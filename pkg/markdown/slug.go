package markdown

import (
	"strconv"
	"strings"
	"unicode"
)

// Slugify converts heading text into the anchor GitHub renders for it:
// lowercase, punctuation stripped, spaces to dashes. Unicode letters and
// digits survive; consecutive spaces become consecutive dashes, matching the
// rendered behaviour rather than a prettier variant.
func Slugify(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(text)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	return b.String()
}

// Slugger assigns anchors to a sequence of headings, suffixing duplicates
// with -1, -2, ... the way GitHub disambiguates repeated headings.
type Slugger struct {
	seen map[string]int
}

// NewSlugger returns a fresh slugger for one document.
func NewSlugger() *Slugger {
	return &Slugger{seen: make(map[string]int)}
}

// Anchor returns the unique anchor for the next occurrence of text.
func (s *Slugger) Anchor(text string) string {
	slug := Slugify(text)
	n, dup := s.seen[slug]
	s.seen[slug] = n + 1
	if !dup {
		return slug
	}
	return slug + "-" + strconv.Itoa(n)
}
