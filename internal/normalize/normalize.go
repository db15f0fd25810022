package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var entitySuffixes = regexp.MustCompile(
	`(?i)\s*,?\s*(LLC|L\.?L\.?C\.?|INC\.?|INCORPORATED|CORP\.?|CORPORATION|` +
		`CO\.?|COMPANY|LTD\.?|LIMITED|L\.?P\.?|LLP|L\.?L\.?P\.?|` +
		`PLLC|P\.?L\.?L\.?C\.?|P\.?C\.?|DBA|D/B/A)\s*\.?\s*$`)

var punctuation = regexp.MustCompile(`[^\pL\pN ]+`)

var multiSpace = regexp.MustCompile(`\s{2,}`)

// stripMarks removes combining marks after NFD decomposition, so accented
// vendor names collapse to their ASCII-ish canonical form.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// CanonicalKey reduces a vendor display name to its canonical matching key:
// diacritics stripped, upper-cased, legal entity suffixes and punctuation
// removed, whitespace collapsed. "Acme Corp" and "ACME CORP." map to the
// same key.
func CanonicalKey(name string) string {
	n := strings.TrimSpace(name)
	if folded, _, err := transform.String(stripMarks, n); err == nil {
		n = folded
	}
	n = strings.ToUpper(n)
	n = entitySuffixes.ReplaceAllString(n, "")
	n = punctuation.ReplaceAllString(n, " ")
	n = multiSpace.ReplaceAllString(n, " ")
	return strings.TrimSpace(n)
}
