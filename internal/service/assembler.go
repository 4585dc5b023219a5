package service

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"ragvault/internal/models"
	"ragvault/internal/vectorstore"

	"go.uber.org/zap"
)

const (
	DefaultMaxContextTokens = 3000

	contextMarker = "[CONTEXT]"
)

// Assembler packs ranked search results into a prompt context under a token
// budget, keeping citable and private material apart.
type Assembler struct {
	logger *zap.Logger
}

func NewAssembler(logger *zap.Logger) *Assembler {
	return &Assembler{logger: logger}
}

func (a *Assembler) Assemble(results []vectorstore.SearchResult, mode models.PrivacyMode, maxTokens int) *models.RAGContext {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxContextTokens
	}

	var citable, private []vectorstore.SearchResult
	namespaces := make(map[string]struct{})
	for _, r := range results {
		namespaces[r.Namespace] = struct{}{}
		if r.Metadata.IsCitable || mode == models.PrivacyModeInternal {
			citable = append(citable, r)
			continue
		}
		if mode == models.PrivacyModeStrict {
			continue
		}
		private = append(private, r)
	}
	byScore(citable)
	byScore(private)

	rc := &models.RAGContext{}
	for ns := range namespaces {
		rc.Namespaces = append(rc.Namespaces, ns)
	}
	sort.Strings(rc.Namespaces)

	add := func(r vectorstore.SearchResult, label string) bool {
		tokens := EstimateContextTokens(r.Metadata.Content)
		if rc.TotalTokens+tokens > maxTokens {
			rc.Truncated = true
			return false
		}
		rc.TotalTokens += tokens
		excerpt := models.SourceExcerpt{
			Label:     label,
			ChunkID:   r.ID,
			SourceID:  r.Metadata.SourceID,
			Namespace: r.Namespace,
			Content:   r.Metadata.Content,
			Score:     r.Score,
			Tokens:    tokens,
			Citable:   r.Metadata.IsCitable,
		}
		if label == contextMarker {
			rc.PrivateSources = append(rc.PrivateSources, excerpt)
		} else {
			rc.CitableSources = append(rc.CitableSources, excerpt)
		}
		return true
	}

	packed := true
	for _, r := range citable {
		if packed = add(r, fmt.Sprintf("[CITE-%d]", len(rc.CitableSources)+1)); !packed {
			break
		}
	}
	if packed {
		for _, r := range private {
			if !add(r, contextMarker) {
				break
			}
		}
	}

	rc.Rendered = renderContext(rc)

	a.logger.Debug("Context assembled",
		zap.String("mode", string(mode)),
		zap.Int("citable", len(rc.CitableSources)),
		zap.Int("private", len(rc.PrivateSources)),
		zap.Int("tokens", rc.TotalTokens),
		zap.Bool("truncated", rc.Truncated),
	)
	return rc
}

// EstimateContextTokens is the assembler's len/4 token estimate.
func EstimateContextTokens(s string) int {
	n := utf8.RuneCountInString(s) / 4
	if n == 0 && s != "" {
		return 1
	}
	return n
}

func byScore(results []vectorstore.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
}

func renderContext(rc *models.RAGContext) string {
	var b strings.Builder
	if len(rc.CitableSources) > 0 {
		b.WriteString("CITABLE SOURCES (you may quote and cite these by their marker):\n\n")
		for _, s := range rc.CitableSources {
			b.WriteString(s.Label)
			b.WriteString("\n")
			b.WriteString(s.Content)
			b.WriteString("\n\n")
		}
	}
	if len(rc.PrivateSources) > 0 {
		b.WriteString("BACKGROUND CONTEXT (for reasoning only; never quote, paraphrase closely, or cite):\n\n")
		for _, s := range rc.PrivateSources {
			b.WriteString(contextMarker)
			b.WriteString("\n")
			b.WriteString(s.Content)
			b.WriteString("\n\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
