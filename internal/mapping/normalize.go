package mapping

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var (
	decimalComma = regexp.MustCompile(`(\d),(\d)`)
	gluedUnit    = regexp.MustCompile(`^(\d+(?:\.\d+)?)(ml|l|kg|g|cm|pcs|pc|мл|л|кг|г|гр|см|шт)$`)
	lower        = cases.Lower(language.Und)
)

// NormalizeName folds a product name for comparison: NFKC, lower case,
// "0,5" becomes "0.5", units glued to a number are dropped ("0.5l" -> "0.5"),
// punctuation becomes space and runs of whitespace collapse.
func NormalizeName(name string) string {
	s := lower.String(norm.NFKC.String(name))
	s = decimalComma.ReplaceAllString(s, "$1.$2")

	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '.' && i > 0 && i+1 < len(runes) && unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	fields := strings.Fields(b.String())
	for i, field := range fields {
		if m := gluedUnit.FindStringSubmatch(field); m != nil {
			fields[i] = m[1]
		}
	}
	return strings.Join(fields, " ")
}
