package entity

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeKey folds an entity value for case- and diacritic-insensitive matching:
// NFD decomposition, combining marks removed, NFC recomposition, Unicode case folding,
// whitespace collapsed. "São  Paulo" and "sao paulo" normalize identically.
func NormalizeKey(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.FieldsFunc(cases.Fold().String(stripped), isSeparator), " ")
}

// isSeparator treats the storage tag separator as whitespace so keys never contain it.
func isSeparator(r rune) bool {
	return unicode.IsSpace(r) || r == TagSeparator
}

// TagSeparator is the separator used by the storage tag index; it never appears in a key.
const TagSeparator = '|'
