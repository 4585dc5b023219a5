package repository

import (
	"context"
	"fmt"

	"ragvault/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var citationColumns = []string{
	"id", "conversation_id", "message_id", "bot_id", "chunk_id", "source_id",
	"relevance_score", "query_text", "created_at",
}

type CitationRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewCitationRepository(db *pgxpool.Pool, logger *zap.Logger) *CitationRepository {
	return &CitationRepository{
		db:     db,
		logger: logger,
	}
}

func (r *CitationRepository) CreateBatch(ctx context.Context, usages []*models.CitationUsage) error {
	if len(usages) == 0 {
		return nil
	}

	query := squirrel.Insert("citation_usages").
		Columns(citationColumns...).
		PlaceholderFormat(squirrel.Dollar)
	for _, u := range usages {
		query = query.Values(u.ID, u.ConversationID, u.MessageID, u.BotID, u.ChunkID, u.SourceID,
			u.RelevanceScore, u.QueryText, u.CreatedAt)
	}

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	if _, err := r.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("failed to insert citation usages: %w", err)
	}
	return nil
}

func (r *CitationRepository) ListByMessage(ctx context.Context, conversationID, messageID string) ([]*models.CitationUsage, error) {
	query := squirrel.Select(citationColumns...).
		From("citation_usages").
		Where(squirrel.Eq{"conversation_id": conversationID, "message_id": messageID}).
		OrderBy("relevance_score DESC").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list citation usages: %w", err)
	}
	defer rows.Close()

	var usages []*models.CitationUsage
	for rows.Next() {
		var u models.CitationUsage
		if err := rows.Scan(
			&u.ID, &u.ConversationID, &u.MessageID, &u.BotID, &u.ChunkID, &u.SourceID,
			&u.RelevanceScore, &u.QueryText, &u.CreatedAt,
		); err != nil {
			return nil, err
		}
		usages = append(usages, &u)
	}

	return usages, rows.Err()
}
