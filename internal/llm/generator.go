package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ragvault/pkg/config"

	"go.uber.org/zap"
)

var ErrEmptyResponse = errors.New("no response from LLM")

type Request struct {
	System      string
	Prompt      string
	Temperature float64
	MaxTokens   int
}

type Result struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	Model            string
}

// Generator is a text-generation backend.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
	ModelName() string
}

// Pricing converts token usage into an estimated USD cost.
type Pricing struct {
	PromptPer1K     float64
	CompletionPer1K float64
}

func (p Pricing) Cost(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)/1000*p.PromptPer1K + float64(completionTokens)/1000*p.CompletionPer1K
}

// New builds the generator selected by cfg.Provider.
func New(cfg *config.LLMConfig, giga *config.GigaChatConfig, logger *zap.Logger) (Generator, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		return NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Model, cfg.MaxTokens, logger), nil
	case "anthropic":
		return NewAnthropic(cfg.AnthropicAPIKey, "", cfg.Model, cfg.MaxTokens, logger), nil
	case "gigachat":
		return NewGigaChat(giga, logger)
	}
	return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
}

// estimateTokens is used when a backend does not report usage.
func estimateTokens(s string) int {
	n := len([]rune(s)) / 4
	if n == 0 && s != "" {
		return 1
	}
	return n
}
