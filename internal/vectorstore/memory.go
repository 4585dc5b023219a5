package vectorstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Memory keeps vectors in process and searches them by brute force.
type Memory struct {
	mu         sync.RWMutex
	namespaces map[string]map[uuid.UUID]Record
}

func NewMemory() *Memory {
	return &Memory{namespaces: make(map[string]map[uuid.UUID]Record)}
}

func (m *Memory) Store(ctx context.Context, namespace string, records []Record) (bool, error) {
	if namespace == "" {
		return false, ErrInvalidNamespace
	}
	if err := validateRecords(records); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.namespaces[namespace]
	if !ok {
		ns = make(map[uuid.UUID]Record)
		m.namespaces[namespace] = ns
	}
	for _, r := range records {
		vec := make([]float32, len(r.Vector))
		copy(vec, r.Vector)
		r.Vector = vec
		ns[r.ID] = r
	}
	return true, nil
}

func (m *Memory) Search(ctx context.Context, namespace string, query []float32, topK int, citableOnly bool) ([]SearchResult, error) {
	if namespace == "" {
		return nil, ErrInvalidNamespace
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	ns := m.namespaces[namespace]
	results := make([]SearchResult, 0, len(ns))
	for id, r := range ns {
		if citableOnly && !r.Metadata.IsCitable {
			continue
		}
		score, err := CosineSimilarity(query, r.Vector)
		if err != nil {
			return nil, err
		}
		results = append(results, SearchResult{ID: id, Namespace: namespace, Score: score, Metadata: r.Metadata})
	}
	return rankTop(results, topKOrDefault(topK)), nil
}

func (m *Memory) DeleteSource(_ context.Context, namespace string, sourceID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.namespaces[namespace] {
		if r.Metadata.SourceID == sourceID {
			delete(m.namespaces[namespace], id)
		}
	}
	return nil
}

func (m *Memory) Count(namespace string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.namespaces[namespace])
}
