package stream

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"ragvault/internal/models"
	"ragvault/internal/service"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultWordsPerChunk = 5
	DefaultChunkDelay    = 50 * time.Millisecond
)

// Conn is the JSON message transport. *websocket.Conn satisfies it.
type Conn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
}

type QueryProcessor interface {
	ProcessQuery(ctx context.Context, q *models.RAGQuery, opts ...service.QueryOption) (*models.RAGResponse, error)
}

// Identity is fixed at handshake time from the caller's token.
type Identity struct {
	UserID string
	BotID  string
	Admin  bool
}

type Config struct {
	WordsPerChunk      int
	ChunkDelay         time.Duration
	RateLimitPerMinute int
	Burst              int
}

// Session serves one streaming connection. Each query runs in its own
// goroutine; writes to the connection are serialised.
type Session struct {
	conn      Conn
	processor QueryProcessor
	identity  Identity
	cfg       Config
	limiter   *rate.Limiter
	logger    *zap.Logger

	writeMu sync.Mutex
	mu      sync.Mutex
	active  map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewSession(conn Conn, processor QueryProcessor, identity Identity, cfg Config, logger *zap.Logger) *Session {
	if cfg.WordsPerChunk <= 0 {
		cfg.WordsPerChunk = DefaultWordsPerChunk
	}
	if cfg.ChunkDelay < 0 {
		cfg.ChunkDelay = 0
	}
	limit := rate.Inf
	if cfg.RateLimitPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RateLimitPerMinute))
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Session{
		conn:      conn,
		processor: processor,
		identity:  identity,
		cfg:       cfg,
		limiter:   rate.NewLimiter(limit, burst),
		logger:    logger.With(zap.String("user_id", identity.UserID), zap.String("bot_id", identity.BotID)),
		active:    make(map[string]context.CancelFunc),
	}
}

// Run reads client messages until the connection fails or ctx ends. In-flight
// queries are cancelled and awaited before it returns.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer s.wg.Wait()
	defer cancel()

	s.send(ServerMessage{Type: TypeConnected, Message: "ready"})

	for {
		var msg ClientMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				s.sendError("", KindInvalidMessage, "Malformed message")
				continue
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch msg.Type {
		case TypePing:
			s.send(ServerMessage{Type: TypePong, QueryID: msg.QueryID})
		case TypeCancel:
			s.cancelQuery(msg.QueryID)
		case TypeQuery:
			s.startQuery(ctx, msg)
		default:
			s.sendError(msg.QueryID, KindInvalidMessage, "Unknown message type")
		}
	}
}

func (s *Session) startQuery(ctx context.Context, msg ClientMessage) {
	if !s.limiter.Allow() {
		s.sendError(msg.QueryID, KindRateLimited, "Too many queries, slow down")
		return
	}
	if strings.TrimSpace(msg.Query) == "" {
		s.sendError(msg.QueryID, models.KindInvalidQuery, "Query text is required")
		return
	}
	mode, err := models.ParsePrivacyMode(msg.PrivacyMode)
	if err != nil {
		s.sendError(msg.QueryID, models.KindInvalidQuery, "Unknown privacy mode")
		return
	}
	if mode == models.PrivacyModeInternal && !s.identity.Admin {
		s.sendError(msg.QueryID, KindForbidden, "Internal mode requires an admin token")
		return
	}

	id := msg.QueryID
	if id == "" {
		id = uuid.NewString()
	}

	qctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	if _, busy := s.active[id]; busy {
		s.mu.Unlock()
		cancel()
		s.sendError(id, KindDuplicateQuery, "A query with this id is already running")
		return
	}
	s.active[id] = cancel
	s.mu.Unlock()

	q := &models.RAGQuery{
		ID:               id,
		Text:             msg.Query,
		UserID:           s.identity.UserID,
		BotID:            s.identity.BotID,
		PrivacyMode:      mode,
		TopK:             msg.TopK,
		MaxContextTokens: msg.MaxContextTokens,
		Temperature:      msg.Temperature,
		ConversationID:   msg.ConversationID,
		MessageID:        msg.MessageID,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.finish(id)
		s.runQuery(qctx, q)
	}()
}

func (s *Session) runQuery(ctx context.Context, q *models.RAGQuery) {
	s.send(ServerMessage{Type: TypeQueryStarted, QueryID: q.ID})

	resp, err := s.processor.ProcessQuery(ctx, q, service.WithProgress(func(stage models.Stage) {
		if status, ok := progressStatus[stage]; ok && ctx.Err() == nil {
			s.send(ServerMessage{Type: TypeProcessingStatus, QueryID: q.ID, Status: status})
		}
	}))
	if err != nil {
		s.logger.Info("Streamed query failed", zap.String("query_id", q.ID), zap.String("kind", models.ErrorKind(err)), zap.Error(err))
		s.sendError(q.ID, models.ErrorKind(err), models.PublicMessage(err))
		return
	}

	chunks := splitWords(resp.Text, s.cfg.WordsPerChunk)
	s.send(ServerMessage{Type: TypeResponseStart, QueryID: q.ID, Metadata: &CompletionMetadata{TotalChunks: len(chunks)}})

	for i, chunk := range chunks {
		if ctx.Err() != nil {
			s.sendError(q.ID, models.KindCancelled, "The query was cancelled")
			return
		}
		s.send(ServerMessage{Type: TypeResponseChunk, QueryID: q.ID, Index: i, Content: chunk})
		if s.cfg.ChunkDelay > 0 && i < len(chunks)-1 {
			timer := time.NewTimer(s.cfg.ChunkDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}
	}
	if ctx.Err() != nil {
		s.sendError(q.ID, models.KindCancelled, "The query was cancelled")
		return
	}

	s.send(ServerMessage{Type: TypeResponseEnd, QueryID: q.ID})
	s.send(ServerMessage{Type: TypeCitations, QueryID: q.ID, Citations: resp.Citations})
	s.send(ServerMessage{Type: TypeQueryCompleted, QueryID: q.ID, Metadata: &CompletionMetadata{
		TotalChunks:      len(chunks),
		Intent:           resp.Intent,
		CostEstimate:     resp.CostEstimate,
		LatencyMs:        resp.LatencyMs,
		PrivacyValidated: resp.PrivacyValidated,
		SourceCounts:     resp.SourceCounts,
		ContextTruncated: resp.ContextTruncated,
		CacheHit:         resp.CacheHit,
		Model:            resp.Model,
	}})
}

func (s *Session) cancelQuery(id string) {
	s.mu.Lock()
	cancel, ok := s.active[id]
	s.mu.Unlock()
	if !ok {
		s.sendError(id, KindInvalidMessage, "No running query with this id")
		return
	}
	cancel()
	s.logger.Info("Query cancelled by client", zap.String("query_id", id))
}

func (s *Session) finish(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.active[id]; ok {
		cancel()
		delete(s.active, id)
	}
}

func (s *Session) send(msg ServerMessage) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(msg); err != nil {
		s.logger.Debug("Failed to write stream message", zap.String("type", msg.Type), zap.Error(err))
	}
}

func (s *Session) sendError(queryID, kind, message string) {
	s.send(ServerMessage{Type: TypeError, QueryID: queryID, Error: kind, Message: message})
}

// splitWords groups text into chunks of n words. Every chunk but the last
// keeps a trailing space so the concatenation reads naturally.
func splitWords(text string, n int) []string {
	words := strings.Fields(text)
	var chunks []string
	for i := 0; i < len(words); i += n {
		end := min(i+n, len(words))
		chunk := strings.Join(words[i:end], " ")
		if end < len(words) {
			chunk += " "
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}
