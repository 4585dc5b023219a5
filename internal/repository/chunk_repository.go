package repository

import (
	"context"
	"fmt"

	"ragvault/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Chunks are written in slices of this many rows to stay under the
// PostgreSQL bind parameter limit.
const chunkInsertBatch = 500

var chunkColumns = []string{
	"id", "source_id", "chunk_index", "start_offset", "end_offset", "content",
	"content_hash", "token_count", "quality", "embedding_model", "created_at",
}

// ChunkRepository persists chunk text. The citable flag is not stored per
// chunk; it is always read back from the owning source.
type ChunkRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewChunkRepository(db *pgxpool.Pool, logger *zap.Logger) *ChunkRepository {
	return &ChunkRepository{
		db:     db,
		logger: logger,
	}
}

func (r *ChunkRepository) CreateBatch(ctx context.Context, chunks []*models.Chunk) error {
	for start := 0; start < len(chunks); start += chunkInsertBatch {
		end := min(start+chunkInsertBatch, len(chunks))
		sql, args, err := buildChunkInsert(chunks[start:end])
		if err != nil {
			return err
		}
		if _, err := r.db.Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("failed to insert chunks: %w", err)
		}
	}
	return nil
}

func buildChunkInsert(chunks []*models.Chunk) (string, []interface{}, error) {
	query := squirrel.Insert("chunks").
		Columns(chunkColumns...).
		PlaceholderFormat(squirrel.Dollar)
	for _, c := range chunks {
		query = query.Values(c.ID, c.SourceID, c.Index, c.StartOffset, c.EndOffset, c.Content,
			c.ContentHash, c.TokenCount, c.Quality, c.EmbeddingModel, c.CreatedAt)
	}
	return query.ToSql()
}

func (r *ChunkRepository) ListBySource(ctx context.Context, source *models.Source) ([]*models.Chunk, error) {
	query := squirrel.Select(chunkColumns...).
		From("chunks").
		Where(squirrel.Eq{"source_id": source.ID}).
		OrderBy("chunk_index ASC").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*models.Chunk
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(
			&c.ID, &c.SourceID, &c.Index, &c.StartOffset, &c.EndOffset, &c.Content,
			&c.ContentHash, &c.TokenCount, &c.Quality, &c.EmbeddingModel, &c.CreatedAt,
		); err != nil {
			return nil, err
		}
		chunks = append(chunks, models.RestoreChunk(c, source))
	}

	return chunks, rows.Err()
}

func (r *ChunkRepository) DeleteBySource(ctx context.Context, sourceID uuid.UUID) (int64, error) {
	query := squirrel.Delete("chunks").
		Where(squirrel.Eq{"source_id": sourceID}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return 0, err
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}
	return tag.RowsAffected(), nil
}
