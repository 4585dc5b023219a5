package service

import (
	"strings"

	"ragvault/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	phraseWords     = 3
	minPhraseLength = 10
)

// Verdict is the outcome of a privacy check. Leaked phrases are counted but
// never returned, so they cannot end up in logs.
type Verdict struct {
	Valid          bool
	LeakedPhrases  int
	LeakingSources []uuid.UUID
	ContextMarker  bool
}

// Validator checks generated text for verbatim reuse of private material.
type Validator struct {
	logger *zap.Logger
}

func NewValidator(logger *zap.Logger) *Validator {
	return &Validator{logger: logger}
}

func (v *Validator) Validate(output string, private []models.SourceExcerpt) Verdict {
	verdict := Verdict{Valid: true}
	if strings.Contains(output, contextMarker) {
		verdict.Valid = false
		verdict.ContextMarker = true
	}

	haystack := " " + normalizeWords(output) + " "
	for _, src := range private {
		leaked := 0
		for _, phrase := range privatePhrases(src.Content) {
			if strings.Contains(haystack, " "+phrase+" ") {
				leaked++
			}
		}
		if leaked > 0 {
			verdict.Valid = false
			verdict.LeakedPhrases += leaked
			verdict.LeakingSources = append(verdict.LeakingSources, src.ChunkID)
		}
	}

	if !verdict.Valid {
		v.logger.Warn("Privacy validation failed",
			zap.Int("leaked_phrases", verdict.LeakedPhrases),
			zap.Int("leaking_sources", len(verdict.LeakingSources)),
			zap.Bool("context_marker", verdict.ContextMarker),
		)
	}
	return verdict
}

// privatePhrases returns the distinct 3-word windows of content longer than
// minPhraseLength characters.
func privatePhrases(content string) []string {
	words := wordRe.FindAllString(strings.ToLower(content), -1)
	seen := make(map[string]struct{})
	var phrases []string
	for i := 0; i+phraseWords <= len(words); i++ {
		phrase := strings.Join(words[i:i+phraseWords], " ")
		if len(phrase) <= minPhraseLength {
			continue
		}
		if _, ok := seen[phrase]; ok {
			continue
		}
		seen[phrase] = struct{}{}
		phrases = append(phrases, phrase)
	}
	return phrases
}

func normalizeWords(s string) string {
	return strings.Join(wordRe.FindAllString(strings.ToLower(s), -1), " ")
}
