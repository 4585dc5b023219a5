package service

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"

	"ragvault/internal/llm"
	"ragvault/internal/models"
	"ragvault/internal/vectorstore"

	"github.com/google/uuid"
)

const testDims = 32

// hashEmbedder maps words into a small bag-of-words vector so similar texts
// score close together.
type hashEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *hashEmbedder) vector(text string) []float32 {
	v := make([]float32, testDims)
	v[0] = 1
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[1+int(h.Sum32()%(testDims-1))]++
	}
	return v
}

func (e *hashEmbedder) Embed(_ context.Context, text string) (*models.EmbeddingResult, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	return &models.EmbeddingResult{Vector: e.vector(text), Model: "hash", CostUSD: 0.0001}, nil
}

func (e *hashEmbedder) EmbedBatch(_ context.Context, texts []string) (*models.BatchEmbeddingResult, error) {
	res := &models.BatchEmbeddingResult{Embeddings: make([][]float32, len(texts)), Errors: map[int]error{}, APICalls: 1}
	for i, t := range texts {
		if e.err != nil {
			res.Errors[i] = e.err
			continue
		}
		res.Embeddings[i] = e.vector(t)
	}
	return res, nil
}

func (e *hashEmbedder) ModelName() string { return "hash" }

// scriptedGenerator answers with a fixed text, or with the whole prompt when
// echo is set, which is the worst possible leaker.
type scriptedGenerator struct {
	mu      sync.Mutex
	answer  string
	echo    bool
	err     error
	calls   int
	prompts []string
}

func (g *scriptedGenerator) Generate(_ context.Context, req llm.Request) (*llm.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.prompts = append(g.prompts, req.Prompt)
	if g.err != nil {
		return nil, g.err
	}
	text := g.answer
	if g.echo {
		text = g.answer + "\n" + req.Prompt
	}
	return &llm.Result{Text: text, PromptTokens: 100, CompletionTokens: 20, Model: "scripted"}, nil
}

func (g *scriptedGenerator) ModelName() string { return "scripted" }

func (g *scriptedGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

type failingStore struct {
	*vectorstore.Memory
}

func (failingStore) Search(context.Context, string, []float32, int, bool) ([]vectorstore.SearchResult, error) {
	return nil, &models.VectorStorageError{Op: "search", Namespace: "x", Err: errors.New("down")}
}

func result(content string, score float64, citable bool) vectorstore.SearchResult {
	return vectorstore.SearchResult{
		ID:        uuid.New(),
		Namespace: "bot_b1",
		Score:     score,
		Metadata: vectorstore.Metadata{
			SourceID:  uuid.New(),
			BotID:     "b1",
			Content:   content,
			IsCitable: citable,
		},
	}
}
