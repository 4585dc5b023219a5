package extractor

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	quoteReplacer = strings.NewReplacer(
		"“", `"`, "”", `"`, "„", `"`, "«", `"`, "»", `"`,
		"‘", "'", "’", "'", "‚", "'", "′", "'",
		"\r\n", "\n", "\r", "\n",
	)
	repeatedBang    = regexp.MustCompile(`!{2,}`)
	repeatedQuery   = regexp.MustCompile(`\?{2,}`)
	manyDots        = regexp.MustCompile(`\.{4,}`)
	horizontalSpace = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	spaceAroundLine = regexp.MustCompile(` ?\n ?`)
	manyNewlines    = regexp.MustCompile(`\n{3,}`)
)

// Normalize cleans extracted text so every kind feeds the chunker the
// same shape of input.
func Normalize(text string) string {
	text = sanitizeUTF8(text)
	text = quoteReplacer.Replace(text)
	text = stripControl(text)
	text = repeatedBang.ReplaceAllString(text, "!")
	text = repeatedQuery.ReplaceAllString(text, "?")
	text = manyDots.ReplaceAllString(text, "...")
	text = horizontalSpace.ReplaceAllString(text, " ")
	text = spaceAroundLine.ReplaceAllString(text, "\n")
	text = manyNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// sanitizeUTF8 removes invalid UTF-8 sequences so the text can be stored
// in PostgreSQL.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}

	var result strings.Builder
	result.Grow(len(s))
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError && size == 1 {
			s = s[1:]
			continue
		}
		result.WriteRune(r)
		s = s[size:]
	}
	return result.String()
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == '\u200b' || r == '\ufeff':
			return -1
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, s)
}
