package vectorstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"ragvault/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS rag_vectors (
	id TEXT PRIMARY KEY,
	namespace TEXT NOT NULL,
	source_id TEXT NOT NULL,
	bot_id TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	content TEXT NOT NULL,
	is_citable INTEGER NOT NULL,
	token_count INTEGER NOT NULL DEFAULT 0,
	quality REAL NOT NULL DEFAULT 0,
	embedding BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS rag_vectors_namespace_idx ON rag_vectors (namespace, is_citable);
`

// SQLite is an embedded Store. Vectors are float32 blobs and similarity is
// computed in Go after the namespace and citability filter.
type SQLite struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewSQLite(db *sql.DB, logger *zap.Logger) (*SQLite, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("failed to ensure vector schema: %w", err)
	}
	return &SQLite{db: db, logger: logger}, nil
}

func (s *SQLite) Store(ctx context.Context, namespace string, records []Record) (bool, error) {
	if namespace == "" {
		return false, ErrInvalidNamespace
	}
	if len(records) == 0 {
		return true, nil
	}
	if err := validateRecords(records); err != nil {
		return false, err
	}

	q := squirrel.Insert("rag_vectors").
		Columns(pgColumns...).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			namespace = excluded.namespace,
			content = excluded.content,
			is_citable = excluded.is_citable,
			token_count = excluded.token_count,
			quality = excluded.quality,
			embedding = excluded.embedding`)
	for _, r := range records {
		m := r.Metadata
		q = q.Values(r.ID.String(), namespace, m.SourceID.String(), m.BotID, m.ChunkIndex, m.Content, m.IsCitable, m.TokenCount, m.Quality, models.EncodeVector(r.Vector))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build upsert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		s.logger.Error("Failed to store vectors", zap.String("namespace", namespace), zap.Error(err))
		return false, storageError("store", namespace, err)
	}
	return true, nil
}

func (s *SQLite) Search(ctx context.Context, namespace string, query []float32, topK int, citableOnly bool) ([]SearchResult, error) {
	if namespace == "" {
		return nil, ErrInvalidNamespace
	}
	where := squirrel.Eq{"namespace": namespace}
	if citableOnly {
		where["is_citable"] = true
	}
	stmt, args, err := squirrel.Select("id", "source_id", "bot_id", "chunk_index", "content", "is_citable", "token_count", "quality", "embedding").
		From("rag_vectors").
		Where(where).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build search: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, storageError("search", namespace, err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var (
			id, sourceID string
			blob         []byte
			r            = SearchResult{Namespace: namespace}
		)
		if err := rows.Scan(&id, &sourceID, &r.Metadata.BotID, &r.Metadata.ChunkIndex, &r.Metadata.Content,
			&r.Metadata.IsCitable, &r.Metadata.TokenCount, &r.Metadata.Quality, &blob); err != nil {
			return nil, storageError("search", namespace, err)
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid vector id %q: %w", id, err)
		}
		if r.Metadata.SourceID, err = uuid.Parse(sourceID); err != nil {
			return nil, fmt.Errorf("invalid source id %q: %w", sourceID, err)
		}
		vec, err := models.DecodeVector(blob)
		if err != nil {
			return nil, err
		}
		if r.Score, err = CosineSimilarity(query, vec); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("search", namespace, err)
	}
	return rankTop(results, topKOrDefault(topK)), nil
}

func (s *SQLite) DeleteSource(ctx context.Context, namespace string, sourceID uuid.UUID) error {
	stmt, args, err := squirrel.Delete("rag_vectors").
		Where(squirrel.Eq{"namespace": namespace, "source_id": sourceID.String()}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
		return storageError("delete", namespace, err)
	}
	return nil
}
