package chunker

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// span is a half-open byte range into the chunked text.
type span struct {
	start int
	end   int
}

func (s span) runes(text string) int {
	return utf8.RuneCountInString(text[s.start:s.end])
}

// Separators in priority order: paragraph, line, sentence, clause, word.
// A character-level cut is the final fallback.
var defaultSeparators = []string{"\n\n", "\n", ". ", "? ", "! ", "; ", ", ", " "}

var paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)

func recursiveSpans(text string, s span, size int, seps []string) []span {
	if s.runes(text) <= size {
		return []span{s}
	}
	for i, sep := range seps {
		parts := splitKeep(text, s, sep)
		if len(parts) < 2 {
			continue
		}
		return mergeParts(text, parts, size, seps[i+1:])
	}
	return hardSplit(text, s, size)
}

// splitKeep splits s on sep, keeping each separator attached to the piece
// before it so the parts stay contiguous.
func splitKeep(text string, s span, sep string) []span {
	var parts []span
	start := s.start
	for start < s.end {
		idx := strings.Index(text[start:s.end], sep)
		if idx < 0 {
			break
		}
		end := start + idx + len(sep)
		parts = append(parts, span{start, end})
		start = end
	}
	if start < s.end {
		parts = append(parts, span{start, s.end})
	}
	return parts
}

// mergeParts greedily joins contiguous parts up to size, recursing with the
// remaining separators on any part that is too large on its own.
func mergeParts(text string, parts []span, size int, seps []string) []span {
	var out []span
	var cur span
	open := false
	for _, p := range parts {
		if p.runes(text) > size {
			if open {
				out = append(out, cur)
				open = false
			}
			out = append(out, recursiveSpans(text, p, size, seps)...)
			continue
		}
		if !open {
			cur, open = p, true
			continue
		}
		if (span{cur.start, p.end}).runes(text) <= size {
			cur.end = p.end
			continue
		}
		out = append(out, cur)
		cur = p
	}
	if open {
		out = append(out, cur)
	}
	return out
}

func hardSplit(text string, s span, size int) []span {
	var out []span
	start, count := s.start, 0
	for i := range text[s.start:s.end] {
		if count == size {
			out = append(out, span{start, s.start + i})
			start, count = s.start+i, 0
		}
		count++
	}
	if start < s.end {
		out = append(out, span{start, s.end})
	}
	return out
}

func semanticSpans(text string, size int) []span {
	var paragraphs []span
	start := 0
	for _, loc := range paragraphBreak.FindAllStringIndex(text, -1) {
		paragraphs = append(paragraphs, span{start, loc[1]})
		start = loc[1]
	}
	if start < len(text) {
		paragraphs = append(paragraphs, span{start, len(text)})
	}
	return mergeParts(text, paragraphs, size, defaultSeparators)
}

func slidingWindowSpans(text string, size, overlap int) []span {
	offsets := runeOffsets(text)
	n := len(offsets) - 1
	zone := size / 4
	if zone < 1 {
		zone = 1
	}

	var out []span
	pos := 0
	for pos < n {
		end := pos + size
		if end >= n {
			end = n
		} else {
			end = snapBoundary(text, offsets, pos, end, zone)
		}
		out = append(out, span{offsets[pos], offsets[end]})
		if end >= n {
			break
		}
		next := end - overlap
		if next <= pos {
			next = end
		}
		pos = next
	}
	return out
}

// snapBoundary moves a window end back to the last paragraph break, or else
// the last sentence end, inside the trailing zone. Indices are in runes.
func snapBoundary(text string, offsets []int, pos, end, zone int) int {
	zoneStart := end - zone
	if zoneStart <= pos {
		zoneStart = pos + 1
	}
	if zoneStart >= end {
		return end
	}
	window := text[offsets[zoneStart]:offsets[end]]

	if idx := strings.LastIndex(window, "\n\n"); idx >= 0 {
		return zoneStart + utf8.RuneCountInString(window[:idx+2])
	}
	best := -1
	for _, marker := range []string{". ", "! ", "? ", ".\n", "!\n", "?\n"} {
		if idx := strings.LastIndex(window, marker); idx > best {
			best = idx
		}
	}
	if best >= 0 {
		return zoneStart + utf8.RuneCountInString(window[:best+2])
	}
	return end
}

func runeOffsets(text string) []int {
	offsets := make([]int, 0, len(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	return append(offsets, len(text))
}

// tokenSpans accumulates whole sentences up to the token ceiling. The next
// piece restarts at the trailing sentences of the previous one that fit in
// the overlap budget.
func tokenSpans(text string, tok Tokenizer, ceiling, overlap int) []span {
	sentences := sentenceSpans(text)
	counts := make([]int, len(sentences))
	for i, s := range sentences {
		counts[i] = tok.Count(text[s.start:s.end])
	}

	var out []span
	i := 0
	for i < len(sentences) {
		j, total := i, 0
		for j < len(sentences) && total+counts[j] <= ceiling {
			total += counts[j]
			j++
		}
		if j == i {
			out = append(out, wordSpans(text, sentences[i], tok, ceiling)...)
			i++
			continue
		}
		out = append(out, span{sentences[i].start, sentences[j-1].end})
		if j == len(sentences) {
			break
		}

		next, carried := j, 0
		for k := j - 1; k > i; k-- {
			if carried+counts[k] > overlap {
				break
			}
			carried += counts[k]
			next = k
		}
		i = next
	}
	return out
}

func sentenceSpans(text string) []span {
	var out []span
	start := 0
	for i := 0; i < len(text); i++ {
		end := -1
		switch c := text[i]; {
		case c == '\n':
			end = i + 1
		case c == '.' || c == '!' || c == '?':
			if i+1 == len(text) || isASCIISpace(text[i+1]) {
				end = i + 1
			}
		}
		if end < 0 {
			continue
		}
		for end < len(text) && isASCIISpace(text[end]) {
			end++
		}
		out = append(out, span{start, end})
		start = end
		i = end - 1
	}
	if start < len(text) {
		out = append(out, span{start, len(text)})
	}
	return out
}

// wordSpans splits one oversized sentence on word boundaries.
func wordSpans(text string, s span, tok Tokenizer, ceiling int) []span {
	var words []span
	start := s.start
	inSpace := false
	for i, r := range text[s.start:s.end] {
		pos := s.start + i
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if inSpace && pos > start {
			words = append(words, span{start, pos})
			start = pos
		}
		inSpace = false
	}
	if start < s.end {
		words = append(words, span{start, s.end})
	}

	var out []span
	var cur span
	open, total := false, 0
	for _, w := range words {
		n := tok.Count(text[w.start:w.end])
		if open && total+n <= ceiling {
			cur.end = w.end
			total += n
			continue
		}
		if open {
			out = append(out, cur)
		}
		cur, open, total = w, true, n
	}
	if open {
		out = append(out, cur)
	}
	return out
}

func isASCIISpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func enforceMax(text string, spans []span, maxSize int) []span {
	if maxSize <= 0 {
		return spans
	}
	out := make([]span, 0, len(spans))
	for _, s := range spans {
		if s.runes(text) > maxSize {
			out = append(out, recursiveSpans(text, s, maxSize, defaultSeparators)...)
			continue
		}
		out = append(out, s)
	}
	return out
}

// mergeSmall folds pieces shorter than minSize into their predecessor when
// the merged piece still fits maxSize.
func mergeSmall(text string, spans []span, minSize, maxSize int) []span {
	if minSize <= 0 {
		return spans
	}
	out := make([]span, 0, len(spans))
	for _, s := range spans {
		if len(out) > 0 && trimSpan(text, s).runes(text) < minSize {
			last := out[len(out)-1]
			merged := span{last.start, s.end}
			if maxSize <= 0 || merged.runes(text) <= maxSize {
				out[len(out)-1] = merged
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

// applyOverlap extends each piece backwards into its predecessor by up to
// overlap runes, starting on a word boundary.
func applyOverlap(text string, spans []span, overlap, maxSize int) []span {
	out := make([]span, len(spans))
	copy(out, spans)
	for i := 1; i < len(out); i++ {
		prev, cur := out[i-1], out[i]
		b := cur.start
		for k := 0; k < overlap && b > prev.start; k++ {
			_, size := utf8.DecodeLastRuneInString(text[:b])
			b -= size
		}
		if b == cur.start {
			continue
		}
		if b > prev.start && !isASCIISpace(text[b-1]) {
			idx := strings.IndexFunc(text[b:cur.start], unicode.IsSpace)
			if idx < 0 {
				continue
			}
			b += idx
		}
		extended := span{b, cur.end}
		if maxSize > 0 && extended.runes(text) > maxSize {
			continue
		}
		out[i] = extended
	}
	return out
}
