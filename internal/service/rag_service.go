package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"ragvault/internal/cache"
	"ragvault/internal/llm"
	"ragvault/internal/models"
	"ragvault/internal/vectorstore"
	"ragvault/pkg/config"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

const DefaultResponseCacheTTL = 5 * time.Minute

// ProgressFunc is told about each stage a query reaches.
type ProgressFunc func(stage models.Stage)

type QueryOption func(*queryOptions)

type queryOptions struct {
	progress ProgressFunc
}

func WithProgress(fn ProgressFunc) QueryOption {
	return func(o *queryOptions) { o.progress = fn }
}

// ProgressFromOptions resolves the progress callback carried by opts. The
// result is never nil.
func ProgressFromOptions(opts ...QueryOption) ProgressFunc {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.progress == nil {
		return func(models.Stage) {}
	}
	return o.progress
}

// RAGService runs the query pipeline: analyze, embed, search, assemble,
// generate, validate, cache.
type RAGService struct {
	embedder  Embedder
	store     vectorstore.Store
	generator llm.Generator
	assembler *Assembler
	validator *Validator
	responses cache.Cache
	citations CitationRepository
	pricing   llm.Pricing
	config    *config.RAGConfig
	logger    *zap.Logger
}

func NewRAGService(
	embedder Embedder,
	store vectorstore.Store,
	generator llm.Generator,
	responses cache.Cache,
	citations CitationRepository,
	pricing llm.Pricing,
	cfg *config.RAGConfig,
	logger *zap.Logger,
) *RAGService {
	return &RAGService{
		embedder:  embedder,
		store:     store,
		generator: generator,
		assembler: NewAssembler(logger),
		validator: NewValidator(logger),
		responses: responses,
		citations: citations,
		pricing:   pricing,
		config:    cfg,
		logger:    logger,
	}
}

func (s *RAGService) ProcessQuery(ctx context.Context, q *models.RAGQuery, opts ...QueryOption) (*models.RAGResponse, error) {
	start := time.Now()
	progress := ProgressFromOptions(opts...)

	if err := s.normalize(q); err != nil {
		return nil, err
	}
	progress(models.StageReceived)

	logger := s.logger.With(zap.String("query_id", q.ID), zap.String("bot_id", q.BotID), zap.String("mode", string(q.PrivacyMode)))
	namespace := vectorstore.Namespace(s.config.NamespacePrefix, q.BotID)
	cacheKey := responseCacheKey(q, []string{namespace})

	if cached, ok := s.cachedResponse(ctx, cacheKey); ok {
		cached.QueryID = q.ID
		cached.CacheHit = true
		cached.LatencyMs = time.Since(start).Milliseconds()
		s.recordCitations(ctx, q, cached.Citations)
		logger.Info("Query served from response cache")
		progress(models.StageReturned)
		return cached, nil
	}

	if err := checkCancelled(ctx, models.StageAnalyzed); err != nil {
		return nil, err
	}
	intent := ClassifyIntent(q.Text)
	progress(models.StageAnalyzed)

	emb, err := s.embedder.Embed(ctx, q.Text)
	if err != nil {
		kind, msg := models.KindEmbedding, "The question could not be embedded"
		if models.ErrorKind(err) == models.KindBudgetExceeded {
			kind, msg = models.KindBudgetExceeded, "The daily embedding budget has been exhausted"
		}
		return nil, stageError(ctx, models.StageEmbedded, kind, msg, err)
	}
	progress(models.StageEmbedded)

	if err := checkCancelled(ctx, models.StageSearched); err != nil {
		return nil, err
	}
	results, err := s.store.Search(ctx, namespace, emb.Vector, q.TopK, q.PrivacyMode == models.PrivacyModeStrict)
	if err != nil {
		return nil, stageError(ctx, models.StageSearched, models.KindVectorStorage, "The knowledge base is unavailable", err)
	}
	progress(models.StageSearched)

	rc := s.assembler.Assemble(results, q.PrivacyMode, q.MaxContextTokens)
	progress(models.StageContextAssembled)

	if err := checkCancelled(ctx, models.StageGenerated); err != nil {
		return nil, err
	}
	system, prompt := BuildPrompt(q.Text, rc, q.PrivacyMode, intent)
	gen, err := s.generator.Generate(ctx, llm.Request{
		System:      system,
		Prompt:      prompt,
		Temperature: q.Temperature,
	})
	if err != nil {
		return nil, stageError(ctx, models.StageGenerated, models.KindGeneration, "The answer could not be generated", err)
	}
	progress(models.StageGenerated)

	citations, dropped := ExtractCitations(gen.Text, rc)
	text := strings.TrimSpace(StripInvalidMarkers(gen.Text, dropped))
	if len(dropped) > 0 {
		logger.Warn("Dropped unresolvable citation markers", zap.Ints("markers", dropped))
	}

	verdict := s.validator.Validate(text, rc.PrivateSources)
	if !verdict.Valid && q.PrivacyMode == models.PrivacyModeStrict {
		return nil, &models.RAGError{
			Stage:   models.StagePrivacyChecked,
			ErrKind: models.KindPrivacyViolation,
			Message: "The answer was withheld because it failed privacy validation",
			Err:     models.ErrPrivacyViolation,
		}
	}
	progress(models.StagePrivacyChecked)

	generationCost := s.pricing.Cost(gen.PromptTokens, gen.CompletionTokens)
	resp := &models.RAGResponse{
		QueryID:          q.ID,
		Text:             text,
		Citations:        citations,
		Intent:           intent,
		EmbeddingCost:    emb.CostUSD,
		GenerationCost:   generationCost,
		CostEstimate:     emb.CostUSD + generationCost,
		PromptTokens:     gen.PromptTokens,
		CompletionTokens: gen.CompletionTokens,
		PrivacyValidated: verdict.Valid,
		SourceCounts: models.SourceCounts{
			Citable: len(rc.CitableSources),
			Private: len(rc.PrivateSources),
		},
		ContextTruncated: rc.Truncated,
		Model:            gen.Model,
	}

	s.recordCitations(ctx, q, citations)

	if verdict.Valid {
		s.cacheResponse(ctx, cacheKey, resp)
		progress(models.StageCached)
	}

	resp.LatencyMs = time.Since(start).Milliseconds()
	logger.Info("Query processed",
		zap.String("intent", string(intent)),
		zap.Int("citations", len(citations)),
		zap.Int("citable_sources", resp.SourceCounts.Citable),
		zap.Int("private_sources", resp.SourceCounts.Private),
		zap.Bool("privacy_validated", verdict.Valid),
		zap.Float64("cost", resp.CostEstimate),
		zap.Int64("latency_ms", resp.LatencyMs),
	)
	progress(models.StageReturned)
	return resp, nil
}

func (s *RAGService) normalize(q *models.RAGQuery) error {
	invalid := func(msg string) error {
		return &models.RAGError{Stage: models.StageReceived, ErrKind: models.KindInvalidQuery, Message: msg}
	}

	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return invalid("Query text is required")
	}
	if q.BotID == "" {
		return invalid("Bot id is required")
	}
	mode, err := models.ParsePrivacyMode(string(q.PrivacyMode))
	if err != nil {
		return invalid("Unknown privacy mode")
	}
	q.PrivacyMode = mode
	if q.Temperature < 0 || q.Temperature > 2 {
		return invalid("Temperature must be between 0 and 2")
	}

	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.TopK <= 0 {
		q.TopK = s.config.TopK
	}
	if q.MaxContextTokens <= 0 {
		q.MaxContextTokens = s.config.MaxContextTokens
	}
	if q.Temperature == 0 {
		q.Temperature = s.config.Temperature
	}
	return nil
}

func (s *RAGService) cachedResponse(ctx context.Context, key string) (*models.RAGResponse, bool) {
	if s.responses == nil {
		return nil, false
	}
	raw, ok, err := s.responses.Get(ctx, key)
	if err != nil {
		s.logger.Warn("Response cache read failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var resp models.RAGResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		s.logger.Warn("Discarding corrupt cached response", zap.Error(err))
		return nil, false
	}
	return &resp, true
}

func (s *RAGService) cacheResponse(ctx context.Context, key string, resp *models.RAGResponse) {
	if s.responses == nil {
		return
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		s.logger.Warn("Failed to encode response for cache", zap.Error(err))
		return
	}
	ttl := s.config.ResponseCacheTTL
	if ttl <= 0 {
		ttl = DefaultResponseCacheTTL
	}
	if err := s.responses.Set(ctx, key, raw, ttl); err != nil {
		s.logger.Warn("Response cache write failed", zap.Error(err))
	}
}

// recordCitations writes the audit trail for a message. Failures are logged
// and do not fail the query.
func (s *RAGService) recordCitations(ctx context.Context, q *models.RAGQuery, citations []models.Citation) {
	if s.citations == nil || q.ConversationID == "" || q.MessageID == "" || len(citations) == 0 {
		return
	}
	now := time.Now()
	usages := make([]*models.CitationUsage, 0, len(citations))
	for _, c := range citations {
		usages = append(usages, &models.CitationUsage{
			ID:             uuid.New(),
			ConversationID: q.ConversationID,
			MessageID:      q.MessageID,
			BotID:          q.BotID,
			ChunkID:        c.ChunkID,
			SourceID:       c.SourceID,
			RelevanceScore: c.Score,
			QueryText:      q.Text,
			CreatedAt:      now,
		})
	}
	if err := s.citations.CreateBatch(ctx, usages); err != nil {
		s.logger.Warn("Failed to record citation usage", zap.String("query_id", q.ID), zap.Error(err))
	}
}

func responseCacheKey(q *models.RAGQuery, namespaces []string) string {
	parts := []string{
		q.Text,
		q.UserID,
		q.BotID,
		strings.Join(namespaces, ","),
		string(q.PrivacyMode),
		strconv.Itoa(q.TopK),
		strconv.FormatFloat(q.Temperature, 'f', -1, 64),
	}
	sum := blake2b.Sum256([]byte(strings.Join(parts, "\x00")))
	return "rag:resp:" + hex.EncodeToString(sum[:])
}

func checkCancelled(ctx context.Context, stage models.Stage) error {
	if err := ctx.Err(); err != nil {
		return &models.RAGError{Stage: stage, ErrKind: models.KindCancelled, Message: "The query was cancelled", Err: err}
	}
	return nil
}

// stageError reports a cancelled context as such instead of blaming the stage.
func stageError(ctx context.Context, stage models.Stage, kind, msg string, err error) error {
	if ctx.Err() != nil {
		return checkCancelled(ctx, stage)
	}
	return &models.RAGError{Stage: stage, ErrKind: kind, Message: msg, Err: fmt.Errorf("%s: %w", stage, err)}
}
