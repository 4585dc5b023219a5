package postgres

import (
	"context"
	"fmt"

	"ragvault/pkg/config"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func NewPool(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*pgxpool.Pool, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connection established",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.DBName),
	)

	return pool, nil
}

// EnsureVectorExtension enables pgvector. Vectors are bound as
// pgvector.Vector values, which encode through their text form.
func EnsureVectorExtension(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to enable pgvector extension: %w", err)
	}
	return nil
}

// Migrate creates the relational tables used by the repositories.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sources (
		id UUID PRIMARY KEY,
		bot_id TEXT NOT NULL,
		filename TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		mime_type TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL DEFAULT '',
		byte_length BIGINT NOT NULL DEFAULT 0,
		citable BOOLEAN NOT NULL,
		status TEXT NOT NULL,
		chunk_count INTEGER NOT NULL DEFAULT 0,
		token_count INTEGER NOT NULL DEFAULT 0,
		error_detail TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS sources_bot_idx ON sources (bot_id)`,
	`CREATE TABLE IF NOT EXISTS chunks (
		id UUID PRIMARY KEY,
		source_id UUID NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
		chunk_index INTEGER NOT NULL,
		start_offset INTEGER NOT NULL,
		end_offset INTEGER NOT NULL,
		content TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		token_count INTEGER NOT NULL,
		quality DOUBLE PRECISION NOT NULL,
		embedding_model TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS chunks_source_idx ON chunks (source_id, chunk_index)`,
	`CREATE TABLE IF NOT EXISTS citation_usages (
		id UUID PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		message_id TEXT NOT NULL,
		bot_id TEXT NOT NULL,
		chunk_id UUID NOT NULL,
		source_id UUID NOT NULL,
		relevance_score DOUBLE PRECISION NOT NULL,
		query_text TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS citation_usages_message_idx ON citation_usages (conversation_id, message_id)`,
}
