package dto

import (
	"ragvault/internal/models"
)

type QueryRequest struct {
	Query            string  `json:"query" validate:"required"`
	PrivacyMode      string  `json:"privacy_mode,omitempty" validate:"omitempty,oneof=strict contextual internal"`
	TopK             int     `json:"top_k,omitempty"`
	MaxContextTokens int     `json:"max_context_tokens,omitempty"`
	Temperature      float64 `json:"temperature,omitempty"`
	ConversationID   string  `json:"conversation_id,omitempty"`
	MessageID        string  `json:"message_id,omitempty"`
}

type CitationResponse struct {
	Index    int     `json:"index"`
	ChunkID  string  `json:"chunk_id"`
	SourceID string  `json:"source_id"`
	Score    float64 `json:"score"`
	Excerpt  string  `json:"excerpt"`
}

type SourceCountsResponse struct {
	Citable int `json:"citable"`
	Private int `json:"private"`
}

type QueryResponse struct {
	QueryID          string               `json:"query_id"`
	Text             string               `json:"text"`
	Citations        []CitationResponse   `json:"citations"`
	Intent           string               `json:"intent"`
	CostEstimate     float64              `json:"cost_estimate"`
	PrivacyValidated bool                 `json:"privacy_validated"`
	SourceCounts     SourceCountsResponse `json:"source_counts"`
	ContextTruncated bool                 `json:"context_truncated"`
	LatencyMs        int64                `json:"latency_ms"`
	CacheHit         bool                 `json:"cache_hit"`
	Model            string               `json:"model"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func NewQueryResponse(resp *models.RAGResponse) QueryResponse {
	citations := make([]CitationResponse, 0, len(resp.Citations))
	for _, c := range resp.Citations {
		citations = append(citations, CitationResponse{
			Index:    c.Index,
			ChunkID:  c.ChunkID.String(),
			SourceID: c.SourceID.String(),
			Score:    c.Score,
			Excerpt:  c.Excerpt,
		})
	}
	return QueryResponse{
		QueryID:          resp.QueryID,
		Text:             resp.Text,
		Citations:        citations,
		Intent:           string(resp.Intent),
		CostEstimate:     resp.CostEstimate,
		PrivacyValidated: resp.PrivacyValidated,
		SourceCounts: SourceCountsResponse{
			Citable: resp.SourceCounts.Citable,
			Private: resp.SourceCounts.Private,
		},
		ContextTruncated: resp.ContextTruncated,
		LatencyMs:        resp.LatencyMs,
		CacheHit:         resp.CacheHit,
		Model:            resp.Model,
	}
}
