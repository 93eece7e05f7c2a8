package builder

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxFieldLen caps free-text fields; the authority truncates longer values
// server-side with inconsistent behavior between document types.
const maxFieldLen = 500

// stripMarks decomposes to NFD, removes combining marks, and recomposes.
// "São João" → "Sao Joao". The authority's schema accepts accented input but
// its downstream tax systems do not round-trip it reliably.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// sanitizeText normalizes a free-text field for the authority: diacritics
// stripped, control characters removed, runs of whitespace collapsed, length
// capped. Pure; safe to call on already-sanitized input.
func sanitizeText(s string) string {
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		// Invalid UTF-8 sequences fall back to the raw input with the
		// offending bytes dropped below.
		out = s
	}

	var b strings.Builder
	b.Grow(len(out))
	space := false
	for _, r := range out {
		switch {
		case unicode.IsControl(r) || r == unicode.ReplacementChar:
			continue
		case unicode.IsSpace(r):
			space = true
		default:
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		}
	}

	res := b.String()
	if len(res) > maxFieldLen {
		// Back up to a rune boundary so the cap never splits a
		// multi-byte character into invalid UTF-8.
		cut := maxFieldLen
		for cut > 0 && !utf8.RuneStart(res[cut]) {
			cut--
		}
		res = res[:cut]
	}
	return res
}

// digitsOnly strips everything but ASCII digits. Used for tax IDs and postal
// codes, which arrive with human punctuation ("123.456.789-09").
func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
