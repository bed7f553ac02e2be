package sources

import (
	"html"
	"strings"

	xhtml "golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// NormalizeTitle cleans a feed title for hashing and display: markup
// stripped, entities decoded, unicode NFC, whitespace collapsed. Dedup hashes
// depend on this being stable across sources that quote the same headline.
func NormalizeTitle(s string) string {
	s = StripTags(s)
	s = norm.NFC.String(s)
	return strings.Join(strings.Fields(s), " ")
}

// StripTags removes markup from a string, keeping its text content. Inputs
// without angle brackets only get entity decoding.
func StripTags(s string) string {
	if !strings.ContainsAny(s, "<>") {
		return html.UnescapeString(s)
	}

	tok := xhtml.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch tok.Next() {
		case xhtml.ErrorToken:
			return b.String()
		case xhtml.TextToken:
			b.Write(tok.Text())
		}
	}
}
