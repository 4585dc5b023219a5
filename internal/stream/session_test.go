package stream

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"ragvault/internal/models"
	"ragvault/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeConn struct {
	incoming chan []byte

	mu       sync.Mutex
	outgoing []ServerMessage
	notify   chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{incoming: make(chan []byte, 16), notify: make(chan struct{}, 256)}
}

func (c *fakeConn) ReadJSON(v interface{}) error {
	raw, ok := <-c.incoming
	if !ok {
		return io.EOF
	}
	return json.Unmarshal(raw, v)
}

func (c *fakeConn) WriteJSON(v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var msg ServerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return err
	}
	c.mu.Lock()
	c.outgoing = append(c.outgoing, msg)
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
	return nil
}

func (c *fakeConn) sendRaw(t *testing.T, raw string) {
	t.Helper()
	c.incoming <- []byte(raw)
}

func (c *fakeConn) send(t *testing.T, msg ClientMessage) {
	t.Helper()
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	c.incoming <- raw
}

func (c *fakeConn) messages() []ServerMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ServerMessage, len(c.outgoing))
	copy(out, c.outgoing)
	return out
}

// waitFor blocks until a message matching pred has been written.
func (c *fakeConn) waitFor(t *testing.T, pred func(ServerMessage) bool) ServerMessage {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		for _, m := range c.messages() {
			if pred(m) {
				return m
			}
		}
		select {
		case <-c.notify:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatalf("timed out, got %+v", c.messages())
		}
	}
}

func ofType(typ string) func(ServerMessage) bool {
	return func(m ServerMessage) bool { return m.Type == typ }
}

type processorFunc func(ctx context.Context, q *models.RAGQuery, opts ...service.QueryOption) (*models.RAGResponse, error)

func (f processorFunc) ProcessQuery(ctx context.Context, q *models.RAGQuery, opts ...service.QueryOption) (*models.RAGResponse, error) {
	return f(ctx, q, opts...)
}

func answering(text string) (processorFunc, *[]*models.RAGQuery) {
	var mu sync.Mutex
	var seen []*models.RAGQuery
	return func(ctx context.Context, q *models.RAGQuery, opts ...service.QueryOption) (*models.RAGResponse, error) {
		mu.Lock()
		seen = append(seen, q)
		mu.Unlock()
		progress := service.ProgressFromOptions(opts...)
		progress(models.StageReceived)
		progress(models.StageAnalyzed)
		return &models.RAGResponse{
			QueryID:          q.ID,
			Text:             text,
			Citations:        []models.Citation{{Index: 1, SourceID: sourceID, Excerpt: "Guide"}},
			Intent:           models.IntentQuestion,
			PrivacyValidated: true,
			Model:            "test-model",
		}, nil
	}, &seen
}

func runSession(t *testing.T, conn *fakeConn, p QueryProcessor, id Identity, cfg Config) (context.CancelFunc, chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSession(conn, p, id, cfg, zap.NewNop())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		close(conn.incoming)
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("session did not stop")
		}
	})
	return cancel, done
}

var (
	user     = Identity{UserID: "u1", BotID: "b1"}
	sourceID = uuid.MustParse("6f1c2a4e-3b7d-4c1a-9e2f-1a2b3c4d5e6f")
)

func TestSessionConnectedAndPing(t *testing.T) {
	conn := newFakeConn()
	p, _ := answering("hi")
	runSession(t, conn, p, user, Config{})

	conn.send(t, ClientMessage{Type: TypePing, QueryID: "p1"})
	pong := conn.waitFor(t, ofType(TypePong))

	assert.Equal(t, "p1", pong.QueryID)
	assert.Equal(t, TypeConnected, conn.messages()[0].Type)
}

func TestSessionStreamsQuery(t *testing.T) {
	conn := newFakeConn()
	text := "one two three four five six seven"
	p, seen := answering(text)
	runSession(t, conn, p, user, Config{WordsPerChunk: 3})

	conn.send(t, ClientMessage{Type: TypeQuery, QueryID: "q1", Query: "what is it?", TopK: 4})
	done := conn.waitFor(t, ofType(TypeQueryCompleted))

	var types []string
	var rebuilt strings.Builder
	for _, m := range conn.messages() {
		if m.QueryID != "q1" {
			continue
		}
		types = append(types, m.Type)
		if m.Type == TypeResponseChunk {
			rebuilt.WriteString(m.Content)
		}
	}
	assert.Equal(t, []string{
		TypeQueryStarted,
		TypeProcessingStatus, TypeProcessingStatus,
		TypeResponseStart,
		TypeResponseChunk, TypeResponseChunk, TypeResponseChunk,
		TypeResponseEnd, TypeCitations, TypeQueryCompleted,
	}, types)
	assert.Equal(t, text, rebuilt.String())

	require.NotNil(t, done.Metadata)
	assert.Equal(t, 3, done.Metadata.TotalChunks)
	assert.True(t, done.Metadata.PrivacyValidated)
	assert.Equal(t, "test-model", done.Metadata.Model)

	status := conn.waitFor(t, ofType(TypeProcessingStatus))
	assert.Equal(t, "analyzing", status.Status)
	cites := conn.waitFor(t, ofType(TypeCitations))
	require.Len(t, cites.Citations, 1)
	assert.Equal(t, sourceID, cites.Citations[0].SourceID)

	require.Len(t, *seen, 1)
	q := (*seen)[0]
	assert.Equal(t, "u1", q.UserID)
	assert.Equal(t, "b1", q.BotID)
	assert.Equal(t, models.PrivacyModeStrict, q.PrivacyMode)
	assert.Equal(t, 4, q.TopK)
}

func TestSessionAssignsQueryID(t *testing.T) {
	conn := newFakeConn()
	p, _ := answering("ok")
	runSession(t, conn, p, user, Config{})

	conn.send(t, ClientMessage{Type: TypeQuery, Query: "anything"})
	started := conn.waitFor(t, ofType(TypeQueryStarted))
	assert.NotEmpty(t, started.QueryID)
}

func TestSessionRejections(t *testing.T) {
	p, seen := answering("ok")

	t.Run("internal mode needs admin", func(t *testing.T) {
		conn := newFakeConn()
		runSession(t, conn, p, user, Config{})
		conn.send(t, ClientMessage{Type: TypeQuery, QueryID: "q", Query: "x", PrivacyMode: "internal"})
		msg := conn.waitFor(t, ofType(TypeError))
		assert.Equal(t, KindForbidden, msg.Error)
	})

	t.Run("empty query", func(t *testing.T) {
		conn := newFakeConn()
		runSession(t, conn, p, user, Config{})
		conn.send(t, ClientMessage{Type: TypeQuery, QueryID: "q", Query: "   "})
		msg := conn.waitFor(t, ofType(TypeError))
		assert.Equal(t, models.KindInvalidQuery, msg.Error)
	})

	t.Run("unknown type", func(t *testing.T) {
		conn := newFakeConn()
		runSession(t, conn, p, user, Config{})
		conn.send(t, ClientMessage{Type: "subscribe"})
		msg := conn.waitFor(t, ofType(TypeError))
		assert.Equal(t, KindInvalidMessage, msg.Error)
	})

	t.Run("malformed json keeps the session open", func(t *testing.T) {
		conn := newFakeConn()
		runSession(t, conn, p, user, Config{})
		conn.sendRaw(t, `{"type": 12}`)
		msg := conn.waitFor(t, ofType(TypeError))
		assert.Equal(t, KindInvalidMessage, msg.Error)

		conn.send(t, ClientMessage{Type: TypePing})
		conn.waitFor(t, ofType(TypePong))
	})

	assert.Empty(t, *seen)
}

func TestSessionAdminMayUseInternalMode(t *testing.T) {
	conn := newFakeConn()
	p, seen := answering("ok")
	runSession(t, conn, p, Identity{UserID: "u1", BotID: "b1", Admin: true}, Config{})

	conn.send(t, ClientMessage{Type: TypeQuery, QueryID: "q", Query: "x", PrivacyMode: "internal"})
	conn.waitFor(t, ofType(TypeQueryCompleted))

	require.Len(t, *seen, 1)
	assert.Equal(t, models.PrivacyModeInternal, (*seen)[0].PrivacyMode)
}

func TestSessionRateLimit(t *testing.T) {
	conn := newFakeConn()
	p, _ := answering("ok")
	runSession(t, conn, p, user, Config{RateLimitPerMinute: 1, Burst: 1})

	conn.send(t, ClientMessage{Type: TypeQuery, QueryID: "a", Query: "x"})
	conn.send(t, ClientMessage{Type: TypeQuery, QueryID: "b", Query: "y"})

	limited := conn.waitFor(t, func(m ServerMessage) bool { return m.Type == TypeError && m.QueryID == "b" })
	assert.Equal(t, KindRateLimited, limited.Error)
	conn.waitFor(t, func(m ServerMessage) bool { return m.Type == TypeQueryCompleted && m.QueryID == "a" })
}

func TestSessionPipelineError(t *testing.T) {
	conn := newFakeConn()
	failing := processorFunc(func(ctx context.Context, q *models.RAGQuery, opts ...service.QueryOption) (*models.RAGResponse, error) {
		return nil, &models.EmbeddingError{Reason: "over budget", Err: errors.New("limit"), Budget: true}
	})
	runSession(t, conn, failing, user, Config{})

	conn.send(t, ClientMessage{Type: TypeQuery, QueryID: "q", Query: "x"})
	msg := conn.waitFor(t, ofType(TypeError))

	assert.Equal(t, models.KindBudgetExceeded, msg.Error)
	assert.Equal(t, "The daily embedding budget has been exhausted", msg.Message)
	for _, m := range conn.messages() {
		assert.NotEqual(t, TypeResponseStart, m.Type)
	}
}

func TestSessionCancelStopsChunks(t *testing.T) {
	conn := newFakeConn()
	words := strings.Repeat("word ", 50)
	p, _ := answering(words)
	runSession(t, conn, p, user, Config{WordsPerChunk: 1, ChunkDelay: 20 * time.Millisecond})

	conn.send(t, ClientMessage{Type: TypeQuery, QueryID: "q", Query: "x"})
	conn.waitFor(t, ofType(TypeResponseChunk))
	conn.send(t, ClientMessage{Type: TypeCancel, QueryID: "q"})

	msg := conn.waitFor(t, ofType(TypeError))
	assert.Equal(t, models.KindCancelled, msg.Error)

	chunks := 0
	for _, m := range conn.messages() {
		assert.NotEqual(t, TypeQueryCompleted, m.Type)
		if m.Type == TypeResponseChunk {
			chunks++
		}
	}
	assert.Less(t, chunks, 50)
}

func TestSessionCancelUnknownQuery(t *testing.T) {
	conn := newFakeConn()
	p, _ := answering("ok")
	runSession(t, conn, p, user, Config{})

	conn.send(t, ClientMessage{Type: TypeCancel, QueryID: "nope"})
	msg := conn.waitFor(t, ofType(TypeError))
	assert.Equal(t, "nope", msg.QueryID)
}

func TestSplitWords(t *testing.T) {
	assert.Equal(t, []string{"a b ", "c d ", "e"}, splitWords("a  b\nc d e", 2))
	assert.Empty(t, splitWords("   ", 3))
}

func TestFirstResponseChunkCarriesIndex(t *testing.T) {
	raw, err := json.Marshal(ServerMessage{Type: TypeResponseChunk, QueryID: "q1", Content: "Refunds", Index: 0})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"index":0`)
}
