package models

import (
	"time"

	"github.com/google/uuid"
)

// CitationUsage is the audit record linking a message to a cited chunk. It is
// only created for citable chunks.
type CitationUsage struct {
	ID             uuid.UUID `db:"id"`
	ConversationID string    `db:"conversation_id"`
	MessageID      string    `db:"message_id"`
	BotID          string    `db:"bot_id"`
	ChunkID        uuid.UUID `db:"chunk_id"`
	SourceID       uuid.UUID `db:"source_id"`
	RelevanceScore float64   `db:"relevance_score"`
	QueryText      string    `db:"query_text"`
	CreatedAt      time.Time `db:"created_at"`
}
