package chunker

import (
	"strings"
	"unicode"
)

// Quality scores how much a piece reads like prose, in [0, 1].
func Quality(content string) float64 {
	total, alpha, special := 0, 0, 0
	for _, r := range content {
		total++
		switch {
		case unicode.IsLetter(r):
			alpha++
		case unicode.IsDigit(r), unicode.IsSpace(r):
		default:
			special++
		}
	}
	if total == 0 {
		return 0
	}

	score := 1.0
	if float64(alpha)/float64(total) < 0.3 {
		score -= 0.4
	}
	if float64(special)/float64(total) > 0.1 {
		score -= 0.3
	}
	if len(strings.Fields(content)) < 10 {
		score -= 0.2
	}
	if score < 0 {
		return 0
	}
	return score
}
