package embedding

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// Provider is an upstream embedding API. Embed returns one vector per input,
// index-aligned, plus the tokens billed for the whole call.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, int, error)
	ModelName() string
	Dimensions() int
}

type OpenAIProvider struct {
	client     *openai.Client
	model      string
	dimensions int
}

func NewOpenAIProvider(apiKey, baseURL, model string, dimensions int) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		dimensions: dimensions,
	}
}

func (p *OpenAIProvider) ModelName() string { return p.model }
func (p *OpenAIProvider) Dimensions() int   { return p.dimensions }

func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, int, error) {
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(p.model),
	}
	if p.dimensions > 0 {
		req.Dimensions = p.dimensions
	}

	resp, err := p.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create embeddings: %w", err)
	}

	vectors := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, 0, fmt.Errorf("embedding index %d out of range", data.Index)
		}
		vectors[data.Index] = data.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, 0, fmt.Errorf("missing embedding for input %d", i)
		}
	}

	tokens := resp.Usage.TotalTokens
	if tokens == 0 {
		tokens = resp.Usage.PromptTokens
	}
	return vectors, tokens, nil
}
