// Package slug turns product names into URL path segments.
package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Letters that do not decompose into an ASCII base plus marks.
var folds = strings.NewReplacer(
	"ı", "i",
	"ß", "ss",
	"æ", "ae",
	"ø", "o",
	"œ", "oe",
	"đ", "d",
	"ł", "l",
)

// Generate lowercases name, folds accented letters to ASCII and joins the
// remaining alphanumeric runs with single hyphens:
//
//	Generate("Kadın Giyim")    == "kadin-giyim"
//	Generate("Crème Brûlée!")  == "creme-brulee"
//	Generate("  --Hello--  ")  == "hello"
func Generate(name string) string {
	s := folds.Replace(strings.ToLower(name))

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, s); err == nil {
		s = folded
	}

	var b strings.Builder
	b.Grow(len(s))
	pendingHyphen := false
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
			continue
		}
		pendingHyphen = true
	}
	return b.String()
}
