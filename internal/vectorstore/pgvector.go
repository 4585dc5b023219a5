package vectorstore

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
)

const pgTable = "rag_vectors"

var pgColumns = []string{"id", "namespace", "source_id", "bot_id", "chunk_index", "content", "is_citable", "token_count", "quality", "embedding"}

// PGVector stores vectors in PostgreSQL with the pgvector extension.
// Embeddings are bound as pgvector.Vector values through their text form
// and are never scanned back, so the pool needs no type registration.
type PGVector struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewPGVector(db *pgxpool.Pool, logger *zap.Logger) *PGVector {
	return &PGVector{db: db, logger: logger}
}

// EnsureSchema creates the vector table and its cosine HNSW index.
func (s *PGVector) EnsureSchema(ctx context.Context, dimensions int) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			namespace TEXT NOT NULL,
			source_id UUID NOT NULL,
			bot_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			is_citable BOOLEAN NOT NULL,
			token_count INTEGER NOT NULL DEFAULT 0,
			quality DOUBLE PRECISION NOT NULL DEFAULT 0,
			embedding vector(%d) NOT NULL
		)`, pgTable, dimensions),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_namespace_idx ON %s (namespace, is_citable)`, pgTable, pgTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_source_idx ON %s (namespace, source_id)`, pgTable, pgTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, pgTable, pgTable),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure vector schema: %w", err)
		}
	}
	return nil
}

func (s *PGVector) Store(ctx context.Context, namespace string, records []Record) (bool, error) {
	if namespace == "" {
		return false, ErrInvalidNamespace
	}
	if len(records) == 0 {
		return true, nil
	}
	if err := validateRecords(records); err != nil {
		return false, err
	}

	sql, args, err := buildPGUpsert(namespace, records)
	if err != nil {
		return false, fmt.Errorf("failed to build upsert: %w", err)
	}
	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		s.logger.Error("Failed to store vectors", zap.String("namespace", namespace), zap.Error(err))
		return false, storageError("store", namespace, err)
	}
	return tag.RowsAffected() == int64(len(records)), nil
}

func (s *PGVector) Search(ctx context.Context, namespace string, query []float32, topK int, citableOnly bool) ([]SearchResult, error) {
	if namespace == "" {
		return nil, ErrInvalidNamespace
	}
	sql, args, err := buildPGSearch(namespace, query, topKOrDefault(topK), citableOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to build search: %w", err)
	}

	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, storageError("search", namespace, err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		r := SearchResult{Namespace: namespace}
		if err := rows.Scan(
			&r.ID, &r.Metadata.SourceID, &r.Metadata.BotID, &r.Metadata.ChunkIndex, &r.Metadata.Content,
			&r.Metadata.IsCitable, &r.Metadata.TokenCount, &r.Metadata.Quality, &r.Score,
		); err != nil {
			return nil, storageError("search", namespace, err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("search", namespace, err)
	}
	return results, nil
}

func (s *PGVector) DeleteSource(ctx context.Context, namespace string, sourceID uuid.UUID) error {
	sql, args, err := squirrel.Delete(pgTable).
		Where(squirrel.Eq{"namespace": namespace, "source_id": sourceID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, sql, args...); err != nil {
		return storageError("delete", namespace, err)
	}
	return nil
}

func buildPGUpsert(namespace string, records []Record) (string, []interface{}, error) {
	q := squirrel.Insert(pgTable).
		Columns(pgColumns...).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			namespace = EXCLUDED.namespace,
			content = EXCLUDED.content,
			is_citable = EXCLUDED.is_citable,
			token_count = EXCLUDED.token_count,
			quality = EXCLUDED.quality,
			embedding = EXCLUDED.embedding`).
		PlaceholderFormat(squirrel.Dollar)
	for _, r := range records {
		m := r.Metadata
		q = q.Values(r.ID, namespace, m.SourceID, m.BotID, m.ChunkIndex, m.Content, m.IsCitable, m.TokenCount, m.Quality, pgvector.NewVector(r.Vector))
	}
	return q.ToSql()
}

// buildPGSearch filters by namespace and citability in WHERE so the ORDER BY
// only ever ranks eligible rows.
func buildPGSearch(namespace string, query []float32, topK int, citableOnly bool) (string, []interface{}, error) {
	vec := pgvector.NewVector(query)
	where := squirrel.Eq{"namespace": namespace}
	if citableOnly {
		where["is_citable"] = true
	}
	return squirrel.Select("id", "source_id", "bot_id", "chunk_index", "content", "is_citable", "token_count", "quality").
		Column(squirrel.Expr("1 - (embedding <=> ?) AS score", vec)).
		From(pgTable).
		Where(where).
		OrderByClause("embedding <=> ?", vec).
		Limit(uint64(topK)).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
}
