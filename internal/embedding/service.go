// Package embedding turns text into vectors with caching, in-batch
// deduplication, sub-batching and a daily spend ceiling.
package embedding

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"

	"ragvault/internal/cache"
	"ragvault/internal/models"
)

var (
	ErrEmptyText   = errors.New("text is empty")
	ErrTextTooLong = errors.New("text exceeds maximum length")
)

const (
	DefaultMaxTextLength = 32000
	DefaultBatchSize     = 100
	DefaultCacheTTL      = 7 * 24 * time.Hour
)

type Config struct {
	PricePer1K    float64
	MaxTextLength int
	BatchSize     int
	CacheTTL      time.Duration
}

type Service struct {
	provider Provider
	cache    cache.Cache
	budget   Budget
	cfg      Config
	group    singleflight.Group
	logger   *zap.Logger
}

func NewService(provider Provider, c cache.Cache, budget Budget, cfg Config, logger *zap.Logger) *Service {
	if cfg.MaxTextLength <= 0 {
		cfg.MaxTextLength = DefaultMaxTextLength
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if budget == nil {
		budget = NewMemoryBudget(0)
	}
	return &Service{
		provider: provider,
		cache:    c,
		budget:   budget,
		cfg:      cfg,
		logger:   logger,
	}
}

func (s *Service) ModelName() string {
	return s.provider.ModelName()
}

// Cost returns the dollar price of tokens at the configured rate.
func (s *Service) Cost(tokens int) float64 {
	return float64(tokens) / 1000 * s.cfg.PricePer1K
}

// Embed returns the vector for one text. Concurrent misses for the same text
// share a single upstream call.
func (s *Service) Embed(ctx context.Context, text string) (*models.EmbeddingResult, error) {
	normalized, err := s.validate(text)
	if err != nil {
		return nil, err
	}
	key, hash := s.cacheKey(normalized)

	if vec, ok := s.lookup(ctx, key); ok {
		return &models.EmbeddingResult{
			Vector:   vec,
			Model:    s.provider.ModelName(),
			Cached:   true,
			TextHash: hash,
		}, nil
	}

	// The shared call is detached from the leader's context; each caller
	// stops waiting on its own cancellation.
	leader := false
	ch := s.group.DoChan(key, func() (interface{}, error) {
		leader = true
		callCtx := context.WithoutCancel(ctx)
		vectors, tokens, cost, err := s.call(callCtx, []string{normalized})
		if err != nil {
			return nil, err
		}
		s.store(callCtx, key, vectors[0])
		return &models.EmbeddingResult{
			Vector:   vectors[0],
			Model:    s.provider.ModelName(),
			Tokens:   tokens,
			CostUSD:  cost,
			TextHash: hash,
		}, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		res := *r.Val.(*models.EmbeddingResult)
		if !leader {
			// Peers are not billed for the leader's upstream call.
			res.Tokens = 0
			res.CostUSD = 0
		}
		return &res, nil
	}
}

type pending struct {
	text    string
	key     string
	indices []int
}

// EmbedBatch embeds texts index-aligned with the input. Identical texts are
// sent upstream once and every occurrence gets the same vector. Failures are
// reported per index in Errors; the remaining items still complete.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) (*models.BatchEmbeddingResult, error) {
	result := &models.BatchEmbeddingResult{
		Embeddings: make([][]float32, len(texts)),
		Errors:     make(map[int]error),
	}

	var order []*pending
	byKey := make(map[string]*pending)
	for i, text := range texts {
		normalized, err := s.validate(text)
		if err != nil {
			result.Errors[i] = err
			continue
		}
		key, _ := s.cacheKey(normalized)
		if p, ok := byKey[key]; ok {
			p.indices = append(p.indices, i)
			continue
		}
		p := &pending{text: normalized, key: key, indices: []int{i}}
		byKey[key] = p
		order = append(order, p)
	}

	var misses []*pending
	for _, p := range order {
		if vec, ok := s.lookup(ctx, p.key); ok {
			for _, i := range p.indices {
				result.Embeddings[i] = vec
			}
			result.CacheHits += len(p.indices)
			continue
		}
		misses = append(misses, p)
	}

	for start := 0; start < len(misses); start += s.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + s.cfg.BatchSize
		if end > len(misses) {
			end = len(misses)
		}
		group := misses[start:end]

		inputs := make([]string, len(group))
		for i, p := range group {
			inputs[i] = p.text
		}

		vectors, tokens, cost, err := s.call(ctx, inputs)
		result.APICalls++
		if err != nil {
			for _, p := range group {
				for _, i := range p.indices {
					result.Errors[i] = err
				}
			}
			continue
		}
		result.TotalTokens += tokens
		result.TotalCost += cost

		for j, p := range group {
			s.store(ctx, p.key, vectors[j])
			for _, i := range p.indices {
				result.Embeddings[i] = vectors[j]
			}
		}
	}

	s.logger.Debug("Batch embedded",
		zap.Int("inputs", len(texts)),
		zap.Int("unique", len(order)),
		zap.Int("cache_hits", result.CacheHits),
		zap.Int("api_calls", result.APICalls),
		zap.Int("errors", len(result.Errors)),
	)
	return result, nil
}

// call reserves the estimated cost, calls the provider and settles the
// reservation against the billed tokens.
func (s *Service) call(ctx context.Context, texts []string) ([][]float32, int, float64, error) {
	estimate := ToNanos(s.Cost(estimateTokens(texts)))
	if err := s.budget.Reserve(ctx, estimate); err != nil {
		if errors.Is(err, ErrBudgetExceeded) {
			s.logger.Warn("Embedding rejected by daily budget", zap.Int("texts", len(texts)))
			return nil, 0, 0, &models.EmbeddingError{Reason: "daily budget exceeded", Err: err, Budget: true}
		}
		s.logger.Error("Budget check failed, rejecting call", zap.Error(err))
		return nil, 0, 0, &models.EmbeddingError{Reason: "budget check failed", Err: err}
	}

	vectors, tokens, err := s.provider.Embed(ctx, texts)
	if err == nil && len(vectors) != len(texts) {
		err = fmt.Errorf("provider returned %d vectors for %d inputs", len(vectors), len(texts))
	}
	if err != nil {
		if relErr := s.budget.Release(ctx, estimate); relErr != nil {
			s.logger.Warn("Failed to release budget reservation", zap.Error(relErr))
		}
		return nil, 0, 0, &models.EmbeddingError{Reason: "provider call failed", Err: err}
	}

	cost := s.Cost(tokens)
	if delta := ToNanos(cost) - estimate; delta > 0 {
		err = s.budget.Charge(ctx, delta)
	} else if delta < 0 {
		err = s.budget.Release(ctx, -delta)
	}
	if err != nil {
		s.logger.Warn("Failed to settle budget", zap.Error(err))
	}
	return vectors, tokens, cost, nil
}

func (s *Service) validate(text string) (string, error) {
	normalized := normalizeText(text)
	if normalized == "" {
		return "", &models.EmbeddingError{Reason: "empty text", Err: ErrEmptyText}
	}
	if utf8.RuneCountInString(normalized) > s.cfg.MaxTextLength {
		return "", &models.EmbeddingError{Reason: fmt.Sprintf("text longer than %d characters", s.cfg.MaxTextLength), Err: ErrTextTooLong}
	}
	return normalized, nil
}

func (s *Service) cacheKey(normalized string) (string, string) {
	sum := blake2b.Sum256([]byte(normalized))
	hash := hex.EncodeToString(sum[:])
	return "emb:" + s.provider.ModelName() + ":" + hash, hash
}

func (s *Service) lookup(ctx context.Context, key string) ([]float32, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("Embedding cache read failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	vec, err := models.DecodeVector(raw)
	if err != nil || len(vec) == 0 {
		return nil, false
	}
	return vec, true
}

func (s *Service) store(ctx context.Context, key string, vec []float32) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, models.EncodeVector(vec), s.cfg.CacheTTL); err != nil {
		s.logger.Warn("Embedding cache write failed", zap.Error(err))
	}
}

func normalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func estimateTokens(texts []string) int {
	total := 0
	for _, t := range texts {
		n := utf8.RuneCountInString(t) / 4
		if n == 0 {
			n = 1
		}
		total += n
	}
	return total
}
