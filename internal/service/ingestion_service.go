package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ragvault/internal/chunker"
	"ragvault/internal/extractor"
	"ragvault/internal/models"
	"ragvault/internal/repository"
	"ragvault/internal/vectorstore"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrMissingContent = errors.New("either content or url is required")
	ErrMissingBot     = errors.New("bot id is required")
	ErrBotMismatch    = errors.New("source belongs to another bot")
)

// IngestRequest is what the upload or crawl layer hands over. A zero SourceID
// creates a new source; an existing one is reprocessed.
type IngestRequest struct {
	SourceID uuid.UUID
	BotID    string
	Citable  bool
	Content  []byte
	URL      string
	MIMEType string
	Filename string
}

type IngestResult struct {
	SourceID   uuid.UUID           `json:"source_id"`
	Status     models.SourceStatus `json:"status"`
	ChunkCount int                 `json:"chunk_count"`
	TokenCount int                 `json:"token_count"`
	Skipped    int                 `json:"skipped,omitempty"`
	ErrorKind  string              `json:"error,omitempty"`
	Message    string              `json:"message,omitempty"`
}

// IngestionService turns documents into stored chunks and vectors:
// extract, chunk, embed, persist, index.
type IngestionService struct {
	sources         SourceRepository
	chunks          ChunkRepository
	extractor       Extractor
	chunker         Chunker
	embedder        Embedder
	store           vectorstore.Store
	chunkOpts       chunker.Options
	namespacePrefix string
	logger          *zap.Logger
}

func NewIngestionService(
	sources SourceRepository,
	chunks ChunkRepository,
	ext Extractor,
	chk Chunker,
	embedder Embedder,
	store vectorstore.Store,
	chunkOpts chunker.Options,
	namespacePrefix string,
	logger *zap.Logger,
) *IngestionService {
	return &IngestionService{
		sources:         sources,
		chunks:          chunks,
		extractor:       ext,
		chunker:         chk,
		embedder:        embedder,
		store:           store,
		chunkOpts:       chunkOpts,
		namespacePrefix: namespacePrefix,
		logger:          logger,
	}
}

// IngestDocument runs the whole pipeline for one document. On failure the
// source is marked failed and the returned result carries the error kind.
func (s *IngestionService) IngestDocument(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if req.BotID == "" {
		return nil, ErrMissingBot
	}
	if len(req.Content) == 0 && req.URL == "" {
		return nil, ErrMissingContent
	}

	source, err := s.prepareSource(ctx, req)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With(zap.String("source_id", source.ID.String()), zap.String("bot_id", source.BotID))
	namespace := vectorstore.Namespace(s.namespacePrefix, source.BotID)

	extracted, err := s.extractor.Extract(ctx, extractor.Document{
		Bytes:    req.Content,
		URL:      req.URL,
		MIMEType: req.MIMEType,
		Filename: req.Filename,
	})
	if err != nil {
		return s.fail(ctx, source, err)
	}
	source.Kind = extracted.Kind

	pieces, err := s.chunker.Chunk(extracted.Text, s.chunkOpts)
	if err != nil {
		return s.fail(ctx, source, err)
	}
	if len(pieces) == 0 {
		return s.fail(ctx, source, &models.ChunkingError{Reason: "no chunk passed the quality threshold"})
	}

	chunks := make([]*models.Chunk, len(pieces))
	texts := make([]string, len(pieces))
	for i, p := range pieces {
		chunks[i] = source.NewChunk(p.Index, p.Start, p.End, p.Content, p.ContentHash, p.TokenCount, p.Quality)
		texts[i] = p.Content
	}

	batch, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return s.fail(ctx, source, err)
	}

	embedded := make([]*models.Chunk, 0, len(chunks))
	var firstErr error
	for i, c := range chunks {
		if embErr, failed := batch.Errors[i]; failed {
			if firstErr == nil {
				firstErr = embErr
			}
			continue
		}
		c.AttachEmbedding(batch.Embeddings[i], s.embedder.ModelName())
		embedded = append(embedded, c)
	}
	if len(embedded) == 0 {
		return s.fail(ctx, source, firstErr)
	}
	skipped := len(chunks) - len(embedded)
	if skipped > 0 {
		logger.Warn("Some chunks could not be embedded", zap.Int("skipped", skipped), zap.Error(firstErr))
	}

	if err := s.persist(ctx, namespace, embedded); err != nil {
		return s.fail(ctx, source, err)
	}

	tokens := 0
	for _, c := range embedded {
		tokens += c.TokenCount
	}
	detail := ""
	if skipped > 0 {
		detail = fmt.Sprintf("%d chunks skipped: %s", skipped, models.PublicMessage(firstErr))
	}
	if err := s.sources.UpdateStatus(ctx, source.ID, models.SourceStatusCompleted, len(embedded), tokens, detail); err != nil {
		return nil, fmt.Errorf("failed to mark source completed: %w", err)
	}

	logger.Info("Source ingested",
		zap.String("kind", string(source.Kind)),
		zap.Bool("citable", source.Citable),
		zap.Int("chunks", len(embedded)),
		zap.Int("tokens", tokens),
		zap.Int("embedding_cache_hits", batch.CacheHits),
		zap.Int("embedding_api_calls", batch.APICalls),
		zap.Float64("embedding_cost", batch.TotalCost),
	)

	return &IngestResult{
		SourceID:   source.ID,
		Status:     models.SourceStatusCompleted,
		ChunkCount: len(embedded),
		TokenCount: tokens,
		Skipped:    skipped,
	}, nil
}

// prepareSource creates the source row, or resets a reprocessed one by
// removing its previous chunks and vectors. The citable flag of an existing
// source is kept.
func (s *IngestionService) prepareSource(ctx context.Context, req IngestRequest) (*models.Source, error) {
	now := time.Now()
	if req.SourceID != uuid.Nil {
		existing, err := s.sources.GetByID(ctx, req.SourceID)
		switch {
		case err == nil:
			if existing.BotID != req.BotID {
				return nil, ErrBotMismatch
			}
			if err := s.removeContent(ctx, existing); err != nil {
				return nil, err
			}
			existing.Filename = req.Filename
			existing.URL = req.URL
			existing.MIMEType = req.MIMEType
			existing.ByteLength = int64(len(req.Content))
			existing.Status = models.SourceStatusProcessing
			existing.ChunkCount, existing.TokenCount, existing.ErrorDetail = 0, 0, ""
			existing.UpdatedAt = now
			if err := s.sources.Save(ctx, existing); err != nil {
				return nil, fmt.Errorf("failed to reset source: %w", err)
			}
			s.logger.Info("Reprocessing source", zap.String("source_id", existing.ID.String()))
			return existing, nil
		case !errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("failed to load source: %w", err)
		}
	}

	id := req.SourceID
	if id == uuid.Nil {
		id = uuid.New()
	}
	source := &models.Source{
		ID:         id,
		BotID:      req.BotID,
		Filename:   req.Filename,
		URL:        req.URL,
		MIMEType:   req.MIMEType,
		ByteLength: int64(len(req.Content)),
		Citable:    req.Citable,
		Status:     models.SourceStatusProcessing,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.sources.Save(ctx, source); err != nil {
		return nil, fmt.Errorf("failed to create source: %w", err)
	}
	return source, nil
}

// persist writes chunk rows and vectors concurrently. If either side fails,
// both are rolled back.
func (s *IngestionService) persist(ctx context.Context, namespace string, chunks []*models.Chunk) error {
	records := make([]vectorstore.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vectorstore.RecordFromChunk(c)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.chunks.CreateBatch(gctx, chunks)
	})
	g.Go(func() error {
		ok, err := s.store.Store(gctx, namespace, records)
		if err != nil {
			return err
		}
		if !ok {
			return &models.VectorStorageError{Op: "store", Namespace: namespace, Err: errors.New("partial write")}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		sourceID := chunks[0].SourceID
		cleanup := context.WithoutCancel(ctx)
		if _, delErr := s.chunks.DeleteBySource(cleanup, sourceID); delErr != nil {
			s.logger.Error("Failed to roll back chunks", zap.String("source_id", sourceID.String()), zap.Error(delErr))
		}
		if delErr := s.store.DeleteSource(cleanup, namespace, sourceID); delErr != nil {
			s.logger.Error("Failed to roll back vectors", zap.String("source_id", sourceID.String()), zap.Error(delErr))
		}
		return err
	}
	return nil
}

func (s *IngestionService) fail(ctx context.Context, source *models.Source, cause error) (*IngestResult, error) {
	s.logger.Error("Source ingestion failed",
		zap.String("source_id", source.ID.String()),
		zap.String("kind", models.ErrorKind(cause)),
		zap.Error(cause),
	)
	detail := models.ErrorKind(cause) + ": " + models.PublicMessage(cause)
	if err := s.sources.UpdateStatus(context.WithoutCancel(ctx), source.ID, models.SourceStatusFailed, 0, 0, detail); err != nil {
		s.logger.Error("Failed to mark source failed", zap.String("source_id", source.ID.String()), zap.Error(err))
	}
	return &IngestResult{
		SourceID:  source.ID,
		Status:    models.SourceStatusFailed,
		ErrorKind: models.ErrorKind(cause),
		Message:   models.PublicMessage(cause),
	}, cause
}

// DeleteSource removes a source with its chunks and vectors.
func (s *IngestionService) DeleteSource(ctx context.Context, botID string, id uuid.UUID) error {
	source, err := s.sources.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if source.BotID != botID {
		return repository.ErrNotFound
	}
	if err := s.removeContent(ctx, source); err != nil {
		return err
	}
	if err := s.sources.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}
	s.logger.Info("Source deleted", zap.String("source_id", id.String()), zap.String("bot_id", botID))
	return nil
}

func (s *IngestionService) ListSources(ctx context.Context, botID string, limit, offset int) ([]*models.Source, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.sources.ListByBot(ctx, botID, limit, offset)
}

func (s *IngestionService) removeContent(ctx context.Context, source *models.Source) error {
	namespace := vectorstore.Namespace(s.namespacePrefix, source.BotID)
	if err := s.store.DeleteSource(ctx, namespace, source.ID); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	removed, err := s.chunks.DeleteBySource(ctx, source.ID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	s.logger.Debug("Removed source content", zap.String("source_id", source.ID.String()), zap.Int64("chunks", removed))
	return nil
}
