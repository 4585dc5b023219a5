package models

import (
	"time"

	"github.com/google/uuid"
)

// Chunk is a bounded span of a source's text. The citable flag is unexported so
// it can only be set from the owning Source (Source.NewChunk) or when a chunk is
// rehydrated from storage (RestoreChunk).
type Chunk struct {
	ID             uuid.UUID `db:"id"`
	SourceID       uuid.UUID `db:"source_id"`
	BotID          string    `db:"bot_id"`
	Index          int       `db:"chunk_index"`
	StartOffset    int       `db:"start_offset"`
	EndOffset      int       `db:"end_offset"`
	Content        string    `db:"content"`
	ContentHash    string    `db:"content_hash"`
	TokenCount     int       `db:"token_count"`
	Quality        float64   `db:"quality"`
	Embedding      []float32 `db:"-"`
	EmbeddingModel string    `db:"embedding_model"`
	CreatedAt      time.Time `db:"created_at"`

	citable bool
}

// Citable reports whether the chunk may be quoted in a user-visible answer.
func (c *Chunk) Citable() bool {
	return c.citable
}

// AttachEmbedding sets the vector once. A second call is ignored and reports false.
func (c *Chunk) AttachEmbedding(vector []float32, model string) bool {
	if c.Embedding != nil {
		return false
	}
	c.Embedding = vector
	c.EmbeddingModel = model
	return true
}

// RestoreChunk rebuilds a chunk loaded from storage. The citable flag must come
// from the owning source row.
func RestoreChunk(c Chunk, source *Source) *Chunk {
	c.citable = source.Citable
	c.BotID = source.BotID
	return &c
}
