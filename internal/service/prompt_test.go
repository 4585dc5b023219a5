package service

import (
	"testing"

	"ragvault/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		query string
		want  models.Intent
	}{
		{"What are your opening hours?", models.IntentQuestion},
		{"Compare the basic and pro plans", models.IntentComparison},
		{"Plan A vs plan B", models.IntentComparison},
		{"Can you summarize the refund policy?", models.IntentSummary},
		{"TL;DR of the handbook", models.IntentSummary},
		{"Analyze why churn went up", models.IntentResearch},
		{"Write a welcome email for new customers", models.IntentGeneration},
		{"How do I recreate my account?", models.IntentQuestion},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyIntent(tt.query))
		})
	}
}

func TestBuildPromptIncludesModeInstruction(t *testing.T) {
	rc := &models.RAGContext{Rendered: "[CITE-1]\nfact"}

	system, prompt := BuildPrompt("what?", rc, models.PrivacyModeContextual, models.IntentQuestion)
	assert.Contains(t, system, "confidential")
	assert.Contains(t, system, "[CONTEXT]")
	assert.Contains(t, prompt, "[CITE-1]\nfact")
	assert.Contains(t, prompt, "QUESTION:\nwhat?")

	system, prompt = BuildPrompt("what?", &models.RAGContext{}, models.PrivacyModeStrict, models.IntentSummary)
	assert.Contains(t, system, "Use only the CITABLE SOURCES")
	assert.Contains(t, system, "Summarize")
	assert.Contains(t, prompt, "No sources were found")
}

func TestExtractCitations(t *testing.T) {
	rc := &models.RAGContext{CitableSources: []models.SourceExcerpt{
		{Label: "[CITE-1]", ChunkID: uuid.New(), Content: "first", Score: 0.9, Citable: true},
		{Label: "[CITE-2]", ChunkID: uuid.New(), Content: "second", Score: 0.8, Citable: false},
	}}

	text := "A [CITE-1] and B [CITE-2] and C [CITE-7] again [CITE-1] [CITE-0]"
	citations, dropped := ExtractCitations(text, rc)

	require.Len(t, citations, 1)
	assert.Equal(t, 1, citations[0].Index)
	assert.Equal(t, rc.CitableSources[0].ChunkID, citations[0].ChunkID)
	assert.Equal(t, "first", citations[0].Excerpt)
	assert.ElementsMatch(t, []int{2, 7, 0}, dropped)

	cleaned := StripInvalidMarkers(text, dropped)
	assert.NotContains(t, cleaned, "[CITE-2]")
	assert.NotContains(t, cleaned, "[CITE-7]")
	assert.Contains(t, cleaned, "[CITE-1]")
}

func TestExcerptTruncates(t *testing.T) {
	long := make([]rune, 300)
	for i := range long {
		long[i] = 'a'
	}
	got := excerpt(string(long))
	assert.Len(t, []rune(got), excerptLength+3)
}
