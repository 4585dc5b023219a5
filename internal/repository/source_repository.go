package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ragvault/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var sourceColumns = []string{
	"id", "bot_id", "filename", "url", "mime_type", "kind", "byte_length", "citable",
	"status", "chunk_count", "token_count", "error_detail", "created_at", "updated_at",
}

type SourceRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewSourceRepository(db *pgxpool.Pool, logger *zap.Logger) *SourceRepository {
	return &SourceRepository{
		db:     db,
		logger: logger,
	}
}

// Save inserts the source or, for a reprocessed id, overwrites its mutable
// fields. The citable flag of an existing row is never changed.
func (r *SourceRepository) Save(ctx context.Context, s *models.Source) error {
	sql, args, err := buildSourceUpsert(s)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to save source: %w", err)
	}
	return nil
}

func buildSourceUpsert(s *models.Source) (string, []interface{}, error) {
	return squirrel.Insert("sources").
		Columns(sourceColumns...).
		Values(s.ID, s.BotID, s.Filename, s.URL, s.MIMEType, s.Kind, s.ByteLength, s.Citable,
			s.Status, s.ChunkCount, s.TokenCount, s.ErrorDetail, s.CreatedAt, s.UpdatedAt).
		Suffix(`ON CONFLICT (id) DO UPDATE SET filename = EXCLUDED.filename, url = EXCLUDED.url,
			mime_type = EXCLUDED.mime_type, kind = EXCLUDED.kind, byte_length = EXCLUDED.byte_length,
			status = EXCLUDED.status, chunk_count = EXCLUDED.chunk_count, token_count = EXCLUDED.token_count,
			error_detail = EXCLUDED.error_detail, updated_at = EXCLUDED.updated_at`).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
}

func (r *SourceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Source, error) {
	query := squirrel.Select(sourceColumns...).
		From("sources").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	var s models.Source
	err = r.db.QueryRow(ctx, sql, args...).Scan(
		&s.ID, &s.BotID, &s.Filename, &s.URL, &s.MIMEType, &s.Kind, &s.ByteLength, &s.Citable,
		&s.Status, &s.ChunkCount, &s.TokenCount, &s.ErrorDetail, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}

	return &s, nil
}

func (r *SourceRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.SourceStatus, chunkCount, tokenCount int, errorDetail string) error {
	query := squirrel.Update("sources").
		Set("status", status).
		Set("chunk_count", chunkCount).
		Set("token_count", tokenCount).
		Set("error_detail", errorDetail).
		Set("updated_at", time.Now()).
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to update source status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SourceRepository) ListByBot(ctx context.Context, botID string, limit, offset int) ([]*models.Source, error) {
	query := squirrel.Select(sourceColumns...).
		From("sources").
		Where(squirrel.Eq{"bot_id": botID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []*models.Source
	for rows.Next() {
		var s models.Source
		if err := rows.Scan(
			&s.ID, &s.BotID, &s.Filename, &s.URL, &s.MIMEType, &s.Kind, &s.ByteLength, &s.Citable,
			&s.Status, &s.ChunkCount, &s.TokenCount, &s.ErrorDetail, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		sources = append(sources, &s)
	}

	return sources, rows.Err()
}

func (r *SourceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := squirrel.Delete("sources").
		Where(squirrel.Eq{"id": id}).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
