package service

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"ragvault/internal/models"
)

const excerptLength = 200

var (
	citeMarkerRe = regexp.MustCompile(`\[CITE-(\d+)\]`)
	wordRe       = regexp.MustCompile(`[\p{L}\p{N}]+`)
)

// Keyword lists are checked in this order; the first match wins.
var intentKeywords = []struct {
	intent   models.Intent
	keywords []string
}{
	{models.IntentComparison, []string{"compare", "comparison", "difference", "differences", "differ", "versus", "vs", "better than", "worse than", "pros and cons"}},
	{models.IntentSummary, []string{"summarize", "summarise", "summary", "overview", "tl dr", "tldr", "recap", "in short", "key points"}},
	{models.IntentResearch, []string{"research", "analyze", "analyse", "analysis", "investigate", "in depth", "evidence", "explain why", "deep dive"}},
	{models.IntentGeneration, []string{"write", "draft", "compose", "generate", "create", "rewrite"}},
}

var intentInstructions = map[models.Intent]string{
	models.IntentQuestion:   "Answer the user's question directly and concisely using the sources.",
	models.IntentComparison: "Compare the items the user asks about point by point, noting similarities and differences supported by the sources.",
	models.IntentSummary:    "Summarize the relevant material in a short, well-structured overview.",
	models.IntentResearch:   "Give a thorough, evidence-based analysis. Separate what the sources establish from your own reasoning.",
	models.IntentGeneration: "Produce the requested text, grounding any factual claims in the sources.",
}

var privacyInstructions = map[models.PrivacyMode]string{
	models.PrivacyModeStrict: "Use only the CITABLE SOURCES. Cite every fact you take from them with its marker, for example [CITE-1]. " +
		"If the sources do not answer the question, say so.",
	models.PrivacyModeContextual: "Cite facts from CITABLE SOURCES with their marker, for example [CITE-1]. " +
		"Material under BACKGROUND CONTEXT is confidential: use it only to understand the question. " +
		"Never quote it, never reproduce its wording, never cite it, and never mention the [CONTEXT] marker.",
	models.PrivacyModeInternal: "All sources are available for administrative review. Cite facts with their marker, for example [CITE-1].",
}

// ClassifyIntent picks an intent from keywords in the query. Anything without
// a match is a plain question.
func ClassifyIntent(query string) models.Intent {
	normalized := " " + strings.Join(wordRe.FindAllString(strings.ToLower(query), -1), " ") + " "
	for _, group := range intentKeywords {
		for _, kw := range group.keywords {
			if strings.Contains(normalized, " "+kw+" ") {
				return group.intent
			}
		}
	}
	return models.IntentQuestion
}

// BuildPrompt returns the system and user prompts for one query.
func BuildPrompt(query string, rc *models.RAGContext, mode models.PrivacyMode, intent models.Intent) (string, string) {
	var system strings.Builder
	system.WriteString("You are a knowledge assistant that answers from the provided sources.\n")
	system.WriteString(intentInstructions[intent])
	system.WriteString("\n")
	system.WriteString(privacyInstructions[mode])

	var prompt strings.Builder
	if rc != nil && rc.Rendered != "" {
		prompt.WriteString(rc.Rendered)
		prompt.WriteString("\n\n")
	} else {
		prompt.WriteString("No sources were found for this question.\n\n")
	}
	prompt.WriteString("QUESTION:\n")
	prompt.WriteString(query)

	return system.String(), prompt.String()
}

// ExtractCitations resolves [CITE-n] markers against the citable sources.
// Markers outside the citable list are returned as dropped. Sources whose
// stored flag is not citable are never cited, whatever the mode.
func ExtractCitations(text string, rc *models.RAGContext) ([]models.Citation, []int) {
	var (
		citations []models.Citation
		dropped   []int
		seen      = make(map[int]bool)
	)
	for _, m := range citeMarkerRe.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || seen[n] {
			continue
		}
		seen[n] = true
		if n < 1 || rc == nil || n > len(rc.CitableSources) {
			dropped = append(dropped, n)
			continue
		}
		src := rc.CitableSources[n-1]
		if !src.Citable {
			dropped = append(dropped, n)
			continue
		}
		citations = append(citations, models.Citation{
			Index:    n,
			ChunkID:  src.ChunkID,
			SourceID: src.SourceID,
			Score:    src.Score,
			Excerpt:  excerpt(src.Content),
		})
	}
	sort.Slice(citations, func(i, j int) bool { return citations[i].Index < citations[j].Index })
	return citations, dropped
}

// StripInvalidMarkers removes markers that did not resolve to a citation.
func StripInvalidMarkers(text string, dropped []int) string {
	for _, n := range dropped {
		text = strings.ReplaceAll(text, fmt.Sprintf("[CITE-%d]", n), "")
	}
	return text
}

func excerpt(content string) string {
	runes := []rune(strings.TrimSpace(content))
	if len(runes) <= excerptLength {
		return string(runes)
	}
	return strings.TrimSpace(string(runes[:excerptLength])) + "..."
}
