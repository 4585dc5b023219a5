package models

import (
	"time"

	"github.com/google/uuid"
)

type SourceStatus string

const (
	SourceStatusPending    SourceStatus = "pending"
	SourceStatusProcessing SourceStatus = "processing"
	SourceStatusCompleted  SourceStatus = "completed"
	SourceStatusFailed     SourceStatus = "failed"
)

type ContentKind string

const (
	ContentKindPDF       ContentKind = "pdf"
	ContentKindDOCX      ContentKind = "docx"
	ContentKindPlainText ContentKind = "text"
	ContentKindHTML      ContentKind = "html"
	ContentKindURL       ContentKind = "url"
	ContentKindImage     ContentKind = "image"
)

// Source is an ingested unit of knowledge. Citable is fixed at creation and
// every chunk derived from the source inherits it.
type Source struct {
	ID          uuid.UUID    `db:"id"`
	BotID       string       `db:"bot_id"`
	Filename    string       `db:"filename"`
	URL         string       `db:"url"`
	MIMEType    string       `db:"mime_type"`
	Kind        ContentKind  `db:"kind"`
	ByteLength  int64        `db:"byte_length"`
	Citable     bool         `db:"citable"`
	Status      SourceStatus `db:"status"`
	ChunkCount  int          `db:"chunk_count"`
	TokenCount  int          `db:"token_count"`
	ErrorDetail string       `db:"error_detail"`
	CreatedAt   time.Time    `db:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at"`
}

// NewChunk derives a chunk from the source. It is the only constructor used by
// the ingestion pipeline so chunk.Citable always equals source.Citable.
func (s *Source) NewChunk(index, start, end int, content, contentHash string, tokens int, quality float64) *Chunk {
	return &Chunk{
		ID:          uuid.New(),
		SourceID:    s.ID,
		BotID:       s.BotID,
		Index:       index,
		StartOffset: start,
		EndOffset:   end,
		Content:     content,
		ContentHash: contentHash,
		TokenCount:  tokens,
		Quality:     quality,
		citable:     s.Citable,
		CreatedAt:   time.Now(),
	}
}
