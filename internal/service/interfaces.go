package service

import (
	"context"

	"ragvault/internal/chunker"
	"ragvault/internal/extractor"
	"ragvault/internal/models"

	"github.com/google/uuid"
)

type SourceRepository interface {
	Save(ctx context.Context, s *models.Source) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Source, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.SourceStatus, chunkCount, tokenCount int, errorDetail string) error
	ListByBot(ctx context.Context, botID string, limit, offset int) ([]*models.Source, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type ChunkRepository interface {
	CreateBatch(ctx context.Context, chunks []*models.Chunk) error
	ListBySource(ctx context.Context, source *models.Source) ([]*models.Chunk, error)
	DeleteBySource(ctx context.Context, sourceID uuid.UUID) (int64, error)
}

type CitationRepository interface {
	CreateBatch(ctx context.Context, usages []*models.CitationUsage) error
}

// Embedder is satisfied by *embedding.Service.
type Embedder interface {
	Embed(ctx context.Context, text string) (*models.EmbeddingResult, error)
	EmbedBatch(ctx context.Context, texts []string) (*models.BatchEmbeddingResult, error)
	ModelName() string
}

type Chunker interface {
	Chunk(text string, opts chunker.Options) ([]chunker.Piece, error)
}

type Extractor interface {
	Extract(ctx context.Context, doc extractor.Document) (*extractor.Result, error)
}
