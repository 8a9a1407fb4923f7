package guard

import (
	"fmt"
	"strings"
	"unicode"
)

// normalizeText prepares advisory text for phrase matching: invisible and
// control characters are dropped, Latin look-alikes and typographic
// punctuation are folded to ASCII, whitespace runs collapse to one space
// and the result is lower-cased. It also returns the code points it
// dropped so callers can log them.
func normalizeText(s string) (string, []string) {
	var b strings.Builder
	var hidden []string
	space := false
	for _, r := range s {
		if isInvisible(r) {
			hidden = append(hidden, fmt.Sprintf("U+%04X", r))
			continue
		}
		if unicode.IsSpace(r) {
			if !space {
				b.WriteByte(' ')
			}
			space = true
			continue
		}
		space = false
		if latin, ok := confusables[r]; ok {
			r = latin
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String(), hidden
}

func isInvisible(r rune) bool {
	switch r {
	case '\u200B', '\u200C', '\u200D', '\uFEFF', '\u2060', '\u180E', '\u200E', '\u200F', '\u00AD':
		return true
	case '\u202A', '\u202B', '\u202C', '\u202D', '\u202E', '\u2066', '\u2067', '\u2068', '\u2069':
		return true
	}
	if r >= 0xE0001 && r <= 0xE007F {
		return true
	}
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return r <= 0x1F || r == 0x7F || (r >= 0x80 && r <= 0x9F)
}

var confusables = map[rune]rune{
	// typographic punctuation
	'\u2018': '\'', '\u2019': '\'', '\u02BC': '\'',
	'\u2010': '-', '\u2011': '-', '\u2012': '-', '\u2013': '-', '\u2014': '-',
	// Cyrillic
	'а': 'a', 'А': 'A', 'В': 'B', 'с': 'c', 'С': 'C', 'е': 'e', 'Е': 'E',
	'Н': 'H', 'і': 'i', 'І': 'I', 'К': 'K', 'М': 'M', 'о': 'o', 'О': 'O',
	'р': 'p', 'Р': 'P', 'Т': 'T', 'х': 'x', 'Х': 'X', 'у': 'y', 'У': 'Y',
	// Greek
	'Α': 'A', 'Β': 'B', 'Ε': 'E', 'Η': 'H', 'Ι': 'I', 'Κ': 'K', 'Μ': 'M',
	'Ν': 'N', 'Ο': 'O', 'ο': 'o', 'Ρ': 'P', 'Τ': 'T', 'Χ': 'X', 'Υ': 'Y', 'Ζ': 'Z',
}
