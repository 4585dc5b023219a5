// Package memory holds in-process repositories for dev mode and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"ragvault/internal/models"
	"ragvault/internal/repository"

	"github.com/google/uuid"
)

type SourceRepository struct {
	mu      sync.RWMutex
	sources map[uuid.UUID]models.Source
}

func NewSourceRepository() *SourceRepository {
	return &SourceRepository{sources: make(map[uuid.UUID]models.Source)}
}

func (r *SourceRepository) Save(_ context.Context, s *models.Source) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *s
	if prev, ok := r.sources[s.ID]; ok {
		stored.Citable = prev.Citable
		stored.CreatedAt = prev.CreatedAt
	}
	r.sources[s.ID] = stored
	return nil
}

func (r *SourceRepository) GetByID(_ context.Context, id uuid.UUID) (*models.Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (r *SourceRepository) UpdateStatus(_ context.Context, id uuid.UUID, status models.SourceStatus, chunkCount, tokenCount int, errorDetail string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sources[id]
	if !ok {
		return repository.ErrNotFound
	}
	s.Status = status
	s.ChunkCount = chunkCount
	s.TokenCount = tokenCount
	s.ErrorDetail = errorDetail
	r.sources[id] = s
	return nil
}

func (r *SourceRepository) ListByBot(_ context.Context, botID string, limit, offset int) ([]*models.Source, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.Source
	for _, s := range r.sources {
		if s.BotID == botID {
			s := s
			out = append(out, &s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *SourceRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sources[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.sources, id)
	return nil
}

type ChunkRepository struct {
	mu     sync.RWMutex
	chunks map[uuid.UUID][]models.Chunk
}

func NewChunkRepository() *ChunkRepository {
	return &ChunkRepository{chunks: make(map[uuid.UUID][]models.Chunk)}
}

func (r *ChunkRepository) CreateBatch(_ context.Context, chunks []*models.Chunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range chunks {
		r.chunks[c.SourceID] = append(r.chunks[c.SourceID], *c)
	}
	return nil
}

func (r *ChunkRepository) ListBySource(_ context.Context, source *models.Source) ([]*models.Chunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored := r.chunks[source.ID]
	out := make([]*models.Chunk, 0, len(stored))
	for _, c := range stored {
		out = append(out, models.RestoreChunk(c, source))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (r *ChunkRepository) DeleteBySource(_ context.Context, sourceID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := int64(len(r.chunks[sourceID]))
	delete(r.chunks, sourceID)
	return n, nil
}

type CitationRepository struct {
	mu     sync.RWMutex
	usages []models.CitationUsage
}

func NewCitationRepository() *CitationRepository {
	return &CitationRepository{}
}

func (r *CitationRepository) CreateBatch(_ context.Context, usages []*models.CitationUsage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range usages {
		r.usages = append(r.usages, *u)
	}
	return nil
}

func (r *CitationRepository) ListByMessage(_ context.Context, conversationID, messageID string) ([]*models.CitationUsage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.CitationUsage
	for _, u := range r.usages {
		if u.ConversationID == conversationID && u.MessageID == messageID {
			u := u
			out = append(out, &u)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RelevanceScore > out[j].RelevanceScore })
	return out, nil
}
