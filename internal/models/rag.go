package models

import (
	"fmt"

	"github.com/google/uuid"
)

type PrivacyMode string

const (
	// PrivacyModeStrict never lets private content into the prompt.
	PrivacyModeStrict PrivacyMode = "strict"
	// PrivacyModeContextual passes private content as context-only material.
	PrivacyModeContextual PrivacyMode = "contextual"
	// PrivacyModeInternal treats everything as citable. Administrative use only.
	PrivacyModeInternal PrivacyMode = "internal"
)

func ParsePrivacyMode(s string) (PrivacyMode, error) {
	switch PrivacyMode(s) {
	case PrivacyModeStrict, PrivacyModeContextual, PrivacyModeInternal:
		return PrivacyMode(s), nil
	case "":
		return PrivacyModeStrict, nil
	}
	return "", fmt.Errorf("unknown privacy mode %q", s)
}

type Intent string

const (
	IntentQuestion   Intent = "question"
	IntentComparison Intent = "comparison"
	IntentSummary    Intent = "summary"
	IntentResearch   Intent = "research"
	IntentGeneration Intent = "generation"
)

// Stage names the orchestrator step a query is in.
type Stage string

const (
	StageReceived         Stage = "received"
	StageAnalyzed         Stage = "analyzed"
	StageEmbedded         Stage = "embedded"
	StageSearched         Stage = "searched"
	StageContextAssembled Stage = "context-assembled"
	StageGenerated        Stage = "generated"
	StagePrivacyChecked   Stage = "privacy-checked"
	StageCached           Stage = "cached"
	StageReturned         Stage = "returned"
)

type RAGQuery struct {
	ID               string      `json:"id"`
	Text             string      `json:"text"`
	UserID           string      `json:"user_id"`
	BotID            string      `json:"bot_id"`
	PrivacyMode      PrivacyMode `json:"privacy_mode"`
	TopK             int         `json:"top_k"`
	MaxContextTokens int         `json:"max_context_tokens"`
	Temperature      float64     `json:"temperature"`
	ConversationID   string      `json:"conversation_id,omitempty"`
	MessageID        string      `json:"message_id,omitempty"`
}

// SourceExcerpt is one piece of evidence placed in the prompt context.
type SourceExcerpt struct {
	Label     string    `json:"label"`
	ChunkID   uuid.UUID `json:"chunk_id"`
	SourceID  uuid.UUID `json:"source_id"`
	Namespace string    `json:"namespace"`
	Content   string    `json:"-"`
	Score     float64   `json:"score"`
	Tokens    int       `json:"tokens"`
	// Citable is the flag stored with the chunk, independent of the mode.
	Citable bool `json:"citable"`
}

type RAGContext struct {
	CitableSources []SourceExcerpt `json:"citable_sources"`
	PrivateSources []SourceExcerpt `json:"private_sources"`
	Truncated      bool            `json:"truncated"`
	TotalTokens    int             `json:"total_tokens"`
	Namespaces     []string        `json:"namespaces"`
	Rendered       string          `json:"-"`
}

type Citation struct {
	Index    int       `json:"index"`
	ChunkID  uuid.UUID `json:"chunk_id"`
	SourceID uuid.UUID `json:"source_id"`
	Score    float64   `json:"score"`
	Excerpt  string    `json:"excerpt"`
}

type SourceCounts struct {
	Citable int `json:"citable"`
	Private int `json:"private"`
}

type RAGResponse struct {
	QueryID          string       `json:"query_id"`
	Text             string       `json:"text"`
	Citations        []Citation   `json:"citations"`
	Intent           Intent       `json:"intent"`
	CostEstimate     float64      `json:"cost_estimate"`
	EmbeddingCost    float64      `json:"embedding_cost"`
	GenerationCost   float64      `json:"generation_cost"`
	PromptTokens     int          `json:"prompt_tokens"`
	CompletionTokens int          `json:"completion_tokens"`
	LatencyMs        int64        `json:"latency_ms"`
	PrivacyValidated bool         `json:"privacy_validated"`
	SourceCounts     SourceCounts `json:"source_counts"`
	ContextTruncated bool         `json:"context_truncated"`
	CacheHit         bool         `json:"cache_hit"`
	Model            string       `json:"model"`
}
