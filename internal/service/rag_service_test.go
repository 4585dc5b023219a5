package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"ragvault/internal/cache"
	"ragvault/internal/llm"
	"ragvault/internal/models"
	"ragvault/internal/repository/memory"
	"ragvault/internal/vectorstore"
	"ragvault/pkg/config"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	publicText  = "Refunds are issued within fourteen days of a return request."
	privateText = "Escalate angry refund callers to Maria on extension 4471 immediately."
)

type ragFixture struct {
	svc       *RAGService
	store     *vectorstore.Memory
	embedder  *hashEmbedder
	generator *scriptedGenerator
	citations *memory.CitationRepository
}

func newRAGFixture(t *testing.T, gen *scriptedGenerator) *ragFixture {
	t.Helper()
	f := &ragFixture{
		store:     vectorstore.NewMemory(),
		embedder:  &hashEmbedder{},
		generator: gen,
		citations: memory.NewCitationRepository(),
	}
	cfg := &config.RAGConfig{
		NamespacePrefix:  "bot",
		TopK:             5,
		MaxContextTokens: 1000,
		Temperature:      0.3,
		ResponseCacheTTL: time.Minute,
	}
	f.svc = NewRAGService(f.embedder, f.store, gen, cache.NewMemory(100), f.citations,
		llm.Pricing{PromptPer1K: 0.001, CompletionPer1K: 0.002}, cfg, zap.NewNop())

	ctx := context.Background()
	for _, src := range []*models.Source{
		{ID: uuid.New(), BotID: "b1", Citable: true},
		{ID: uuid.New(), BotID: "b1", Citable: false},
	} {
		text := publicText
		if !src.Citable {
			text = privateText
		}
		chunk := src.NewChunk(0, 0, len(text), text, "h", 10, 1)
		chunk.AttachEmbedding(f.embedder.vector(text), "hash")
		_, err := f.store.Store(ctx, vectorstore.Namespace("bot", "b1"), []vectorstore.Record{vectorstore.RecordFromChunk(chunk)})
		require.NoError(t, err)
	}
	return f
}

func TestProcessQueryStrictNeverSeesPrivateContent(t *testing.T) {
	f := newRAGFixture(t, &scriptedGenerator{answer: "Refunds take fourteen days [CITE-1].", echo: true})

	resp, err := f.svc.ProcessQuery(context.Background(), &models.RAGQuery{
		Text: "how fast are refunds for angry callers?", UserID: "u1", BotID: "b1", PrivacyMode: models.PrivacyModeStrict,
	})
	require.NoError(t, err)

	assert.NotContains(t, f.generator.lastPrompt(), "Maria")
	assert.NotContains(t, resp.Text, "Maria")
	assert.NotContains(t, resp.Text, "[CONTEXT]")
	assert.True(t, resp.PrivacyValidated)
	assert.Equal(t, models.SourceCounts{Citable: 1, Private: 0}, resp.SourceCounts)
	require.Len(t, resp.Citations, 1)
	assert.Equal(t, models.IntentQuestion, resp.Intent)
	assert.InDelta(t, 0.0001+0.0001+0.00004, resp.CostEstimate, 1e-9)
	assert.False(t, resp.CacheHit)
}

func TestProcessQueryContextualLeakIsFlagged(t *testing.T) {
	f := newRAGFixture(t, &scriptedGenerator{answer: "Refunds take fourteen days [CITE-1].", echo: true})

	resp, err := f.svc.ProcessQuery(context.Background(), &models.RAGQuery{
		Text: "refund callers", UserID: "u1", BotID: "b1", PrivacyMode: models.PrivacyModeContextual,
	})
	require.NoError(t, err)

	assert.Contains(t, f.generator.lastPrompt(), "[CONTEXT]")
	assert.False(t, resp.PrivacyValidated)
	assert.Equal(t, 1, resp.SourceCounts.Private)
}

func TestProcessQueryStrictViolationFails(t *testing.T) {
	f := newRAGFixture(t, &scriptedGenerator{answer: "According to [CONTEXT] refunds are fast."})

	_, err := f.svc.ProcessQuery(context.Background(), &models.RAGQuery{Text: "refunds?", BotID: "b1"})

	var ragErr *models.RAGError
	require.ErrorAs(t, err, &ragErr)
	assert.Equal(t, models.StagePrivacyChecked, ragErr.Stage)
	assert.Equal(t, models.KindPrivacyViolation, models.ErrorKind(err))
	assert.ErrorIs(t, err, models.ErrPrivacyViolation)
}

func TestProcessQueryCacheHit(t *testing.T) {
	f := newRAGFixture(t, &scriptedGenerator{answer: "Fourteen days [CITE-1]."})
	q := func() *models.RAGQuery {
		return &models.RAGQuery{Text: "refund time?", UserID: "u1", BotID: "b1"}
	}

	first, err := f.svc.ProcessQuery(context.Background(), q())
	require.NoError(t, err)

	start := time.Now()
	second, err := f.svc.ProcessQuery(context.Background(), q())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 10*time.Millisecond)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Text, second.Text)
	assert.NotEqual(t, first.QueryID, second.QueryID)
	assert.Equal(t, 1, f.generator.calls)
	assert.Equal(t, 1, f.embedder.calls)

	// A different user does not share the cached answer.
	other := q()
	other.UserID = "u2"
	third, err := f.svc.ProcessQuery(context.Background(), other)
	require.NoError(t, err)
	assert.False(t, third.CacheHit)
}

func TestProcessQueryReportsStages(t *testing.T) {
	f := newRAGFixture(t, &scriptedGenerator{answer: "ok [CITE-1]"})

	var stages []models.Stage
	_, err := f.svc.ProcessQuery(context.Background(), &models.RAGQuery{Text: "refunds", BotID: "b1"},
		WithProgress(func(s models.Stage) { stages = append(stages, s) }))
	require.NoError(t, err)

	assert.Equal(t, []models.Stage{
		models.StageReceived, models.StageAnalyzed, models.StageEmbedded, models.StageSearched,
		models.StageContextAssembled, models.StageGenerated, models.StagePrivacyChecked,
		models.StageCached, models.StageReturned,
	}, stages)
}

func TestProcessQueryRecordsCitations(t *testing.T) {
	f := newRAGFixture(t, &scriptedGenerator{answer: "Fourteen days [CITE-1] [CITE-9]."})

	resp, err := f.svc.ProcessQuery(context.Background(), &models.RAGQuery{
		Text: "refunds", BotID: "b1", ConversationID: "c1", MessageID: "m1",
	})
	require.NoError(t, err)
	assert.NotContains(t, resp.Text, "[CITE-9]")

	usages, err := f.citations.ListByMessage(context.Background(), "c1", "m1")
	require.NoError(t, err)
	require.Len(t, usages, 1)
	assert.Equal(t, resp.Citations[0].ChunkID, usages[0].ChunkID)
}

func TestProcessQueryCacheHitRecordsCitations(t *testing.T) {
	f := newRAGFixture(t, &scriptedGenerator{answer: "Fourteen days [CITE-1]."})
	ctx := context.Background()

	for _, msg := range []string{"m1", "m2"} {
		_, err := f.svc.ProcessQuery(ctx, &models.RAGQuery{
			Text: "refunds", BotID: "b1", ConversationID: "c1", MessageID: msg,
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.generator.calls)

	for _, msg := range []string{"m1", "m2"} {
		usages, err := f.citations.ListByMessage(ctx, "c1", msg)
		require.NoError(t, err)
		assert.Len(t, usages, 1, msg)
	}
}

func TestProcessQueryStageErrors(t *testing.T) {
	t.Run("invalid query", func(t *testing.T) {
		f := newRAGFixture(t, &scriptedGenerator{})
		for _, q := range []*models.RAGQuery{
			{Text: "  ", BotID: "b1"},
			{Text: "hi"},
			{Text: "hi", BotID: "b1", PrivacyMode: "open"},
			{Text: "hi", BotID: "b1", Temperature: 3},
		} {
			_, err := f.svc.ProcessQuery(context.Background(), q)
			var ragErr *models.RAGError
			require.ErrorAs(t, err, &ragErr)
			assert.Equal(t, models.StageReceived, ragErr.Stage)
			assert.Equal(t, models.KindInvalidQuery, ragErr.Kind())
		}
	})

	t.Run("embedding budget", func(t *testing.T) {
		f := newRAGFixture(t, &scriptedGenerator{})
		f.embedder.err = &models.EmbeddingError{Reason: "budget", Budget: true}
		_, err := f.svc.ProcessQuery(context.Background(), &models.RAGQuery{Text: "hi", BotID: "b1"})
		var ragErr *models.RAGError
		require.ErrorAs(t, err, &ragErr)
		assert.Equal(t, models.StageEmbedded, ragErr.Stage)
		assert.Equal(t, models.KindBudgetExceeded, models.ErrorKind(err))
	})

	t.Run("search failure", func(t *testing.T) {
		gen := &scriptedGenerator{}
		svc := NewRAGService(&hashEmbedder{}, failingStore{Memory: vectorstore.NewMemory()}, gen, nil, nil, llm.Pricing{},
			&config.RAGConfig{NamespacePrefix: "bot"}, zap.NewNop())
		_, err := svc.ProcessQuery(context.Background(), &models.RAGQuery{Text: "hi", BotID: "b1"})
		var ragErr *models.RAGError
		require.ErrorAs(t, err, &ragErr)
		assert.Equal(t, models.StageSearched, ragErr.Stage)
		assert.Equal(t, models.KindVectorStorage, models.ErrorKind(err))
		assert.Zero(t, gen.calls)
	})

	t.Run("generation failure", func(t *testing.T) {
		f := newRAGFixture(t, &scriptedGenerator{err: errors.New("upstream 500")})
		_, err := f.svc.ProcessQuery(context.Background(), &models.RAGQuery{Text: "hi", BotID: "b1"})
		var ragErr *models.RAGError
		require.ErrorAs(t, err, &ragErr)
		assert.Equal(t, models.StageGenerated, ragErr.Stage)
		assert.Equal(t, "The answer could not be generated", models.PublicMessage(err))
	})

	t.Run("cancelled", func(t *testing.T) {
		f := newRAGFixture(t, &scriptedGenerator{})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := f.svc.ProcessQuery(ctx, &models.RAGQuery{Text: "hi", BotID: "b1"})
		assert.Equal(t, models.KindCancelled, models.ErrorKind(err))
		assert.Zero(t, f.generator.calls)
	})
}

func TestResponseCacheKeyVariesByInputs(t *testing.T) {
	base := models.RAGQuery{Text: "q", UserID: "u", BotID: "b", PrivacyMode: models.PrivacyModeStrict, TopK: 5, Temperature: 0.3}
	key := responseCacheKey(&base, []string{"bot_b"})
	assert.Equal(t, key, responseCacheKey(&base, []string{"bot_b"}))

	for _, mutate := range []func(q *models.RAGQuery){
		func(q *models.RAGQuery) { q.Text = "other" },
		func(q *models.RAGQuery) { q.UserID = "x" },
		func(q *models.RAGQuery) { q.PrivacyMode = models.PrivacyModeContextual },
		func(q *models.RAGQuery) { q.TopK = 6 },
		func(q *models.RAGQuery) { q.Temperature = 0.4 },
	} {
		q := base
		mutate(&q)
		assert.NotEqual(t, key, responseCacheKey(&q, []string{"bot_b"}))
	}
	assert.NotEqual(t, key, responseCacheKey(&base, []string{"bot_c"}))
}
