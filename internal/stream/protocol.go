package stream

import (
	"ragvault/internal/models"
)

// Client message types.
const (
	TypeQuery  = "query"
	TypePing   = "ping"
	TypeCancel = "cancel"
)

// Server message types.
const (
	TypeConnected        = "connected"
	TypePong             = "pong"
	TypeQueryStarted     = "query_started"
	TypeProcessingStatus = "processing_status"
	TypeResponseStart    = "response_start"
	TypeResponseChunk    = "response_chunk"
	TypeResponseEnd      = "response_end"
	TypeCitations        = "citations"
	TypeQueryCompleted   = "query_completed"
	TypeError            = "error"
)

// Error kinds produced by the session itself. Pipeline failures carry the
// kinds from models.
const (
	KindRateLimited    = "rate_limited"
	KindForbidden      = "forbidden"
	KindInvalidMessage = "invalid_message"
	KindDuplicateQuery = "duplicate_query"
)

// ClientMessage is sent by the client. User and bot come from the
// authenticated identity and cannot be set here.
type ClientMessage struct {
	Type             string  `json:"type"`
	QueryID          string  `json:"query_id,omitempty"`
	Query            string  `json:"query,omitempty"`
	PrivacyMode      string  `json:"privacy_mode,omitempty"`
	TopK             int     `json:"top_k,omitempty"`
	MaxContextTokens int     `json:"max_context_tokens,omitempty"`
	Temperature      float64 `json:"temperature,omitempty"`
	ConversationID   string  `json:"conversation_id,omitempty"`
	MessageID        string  `json:"message_id,omitempty"`
}

type ServerMessage struct {
	Type      string              `json:"type"`
	QueryID   string              `json:"query_id,omitempty"`
	Status    string              `json:"status,omitempty"`
	Content   string              `json:"content,omitempty"`
	Index     int                 `json:"index"`
	Citations []models.Citation   `json:"citations,omitempty"`
	Metadata  *CompletionMetadata `json:"metadata,omitempty"`
	Error     string              `json:"error,omitempty"`
	Message   string              `json:"message,omitempty"`
}

type CompletionMetadata struct {
	TotalChunks      int                 `json:"total_chunks,omitempty"`
	Intent           models.Intent       `json:"intent,omitempty"`
	CostEstimate     float64             `json:"cost_estimate"`
	LatencyMs        int64               `json:"latency_ms"`
	PrivacyValidated bool                `json:"privacy_validated"`
	SourceCounts     models.SourceCounts `json:"source_counts"`
	ContextTruncated bool                `json:"context_truncated"`
	CacheHit         bool                `json:"cache_hit"`
	Model            string              `json:"model,omitempty"`
}

// progressStatus maps the stage a query just reached to the work that
// follows it.
var progressStatus = map[models.Stage]string{
	models.StageReceived:         "analyzing",
	models.StageAnalyzed:         "embedding",
	models.StageEmbedded:         "searching",
	models.StageSearched:         "assembling",
	models.StageContextAssembled: "generating",
}
