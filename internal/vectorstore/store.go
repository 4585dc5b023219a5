// Package vectorstore persists chunk vectors per bot namespace and ranks them
// by cosine similarity.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"ragvault/internal/models"
)

const DefaultTopK = 5

var (
	ErrUnavailable       = errors.New("vector store unavailable")
	ErrInvalidNamespace  = errors.New("namespace is required")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Metadata travels with every vector. IsCitable mirrors the chunk flag and is
// what citableOnly searches filter on.
type Metadata struct {
	SourceID   uuid.UUID `json:"source_id"`
	BotID      string    `json:"bot_id"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"content"`
	IsCitable  bool      `json:"is_citable"`
	TokenCount int       `json:"token_count"`
	Quality    float64   `json:"quality"`
}

// Record is one vector keyed by its chunk id.
type Record struct {
	ID       uuid.UUID
	Vector   []float32
	Metadata Metadata
}

type SearchResult struct {
	ID        uuid.UUID
	Namespace string
	Score     float64
	Metadata  Metadata
}

type Store interface {
	// Store upserts records into namespace and reports whether all were written.
	Store(ctx context.Context, namespace string, records []Record) (bool, error)
	// Search ranks the namespace by similarity to query. With citableOnly the
	// non-citable vectors are filtered out before ranking.
	Search(ctx context.Context, namespace string, query []float32, topK int, citableOnly bool) ([]SearchResult, error)
	DeleteSource(ctx context.Context, namespace string, sourceID uuid.UUID) error
}

// Namespace is the per-bot partition key shared by store and search.
func Namespace(prefix, botID string) string {
	return prefix + "_" + botID
}

// RecordFromChunk builds the vector record for an embedded chunk.
func RecordFromChunk(c *models.Chunk) Record {
	return Record{
		ID:     c.ID,
		Vector: c.Embedding,
		Metadata: Metadata{
			SourceID:   c.SourceID,
			BotID:      c.BotID,
			ChunkIndex: c.Index,
			Content:    c.Content,
			IsCitable:  c.Citable(),
			TokenCount: c.TokenCount,
			Quality:    c.Quality,
		},
	}
}

// CosineSimilarity fails on mismatched lengths and zero vectors.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return 0, errors.New("cosine similarity on empty vectors")
	}
	var dot, na2, nb2 float64
	for i := range a {
		va, vb := float64(a[i]), float64(b[i])
		dot += va * vb
		na2 += va * va
		nb2 += vb * vb
	}
	if na2 == 0 || nb2 == 0 {
		return 0, errors.New("cosine similarity with zero-magnitude vector")
	}
	return dot / (math.Sqrt(na2) * math.Sqrt(nb2)), nil
}

func storageError(op, namespace string, err error) error {
	return &models.VectorStorageError{Op: op, Namespace: namespace, Err: fmt.Errorf("%w: %w", ErrUnavailable, err)}
}

func validateRecords(records []Record) error {
	dims := -1
	for _, r := range records {
		if len(r.Vector) == 0 {
			return fmt.Errorf("record %s has no vector", r.ID)
		}
		if dims >= 0 && len(r.Vector) != dims {
			return fmt.Errorf("%w: record %s", ErrDimensionMismatch, r.ID)
		}
		dims = len(r.Vector)
	}
	return nil
}

func topKOrDefault(topK int) int {
	if topK <= 0 {
		return DefaultTopK
	}
	return topK
}

// rankTop sorts by descending score, ties by id, and keeps the first topK.
func rankTop(results []SearchResult, topK int) []SearchResult {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID.String() < results[j].ID.String()
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}
