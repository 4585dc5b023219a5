package llm

import (
	"context"
	"fmt"
	"strings"

	"ragvault/pkg/config"

	"github.com/Role1776/gigago"
	"go.uber.org/zap"
)

const gigaChatModel = "GigaChat"

// GigaChat generates with a fixed temperature of 0.3. The client exposes a
// single per-model system instruction, so the request's system prompt is
// sent inline ahead of the user prompt.
type GigaChat struct {
	client *gigago.Client
	model  *gigago.GenerativeModel
	logger *zap.Logger
}

func NewGigaChat(cfg *config.GigaChatConfig, logger *zap.Logger) (*GigaChat, error) {
	ctx := context.Background()

	opts := []gigago.Option{
		gigago.WithCustomScope(cfg.Scope),
	}
	if cfg.InsecureSkipVerify {
		opts = append(opts, gigago.WithCustomInsecureSkipVerify(true))
		logger.Warn("GigaChat TLS certificate verification is disabled")
	}

	client, err := gigago.NewClient(ctx, cfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GigaChat client: %w", err)
	}

	model := client.GenerativeModel(gigaChatModel)
	model.Temperature = 0.3

	logger.Info("Using GigaChat model")
	return &GigaChat{client: client, model: model, logger: logger}, nil
}

func (g *GigaChat) ModelName() string { return gigaChatModel }

func (g *GigaChat) Generate(ctx context.Context, req Request) (*Result, error) {
	prompt := inlineSystem(req.System, req.Prompt)
	messages := []gigago.Message{
		{Role: gigago.RoleUser, Content: prompt},
	}

	resp, err := g.model.Generate(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("failed to generate response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	return &Result{
		Text:             content,
		PromptTokens:     estimateTokens(prompt),
		CompletionTokens: estimateTokens(content),
		Model:            gigaChatModel,
	}, nil
}

func (g *GigaChat) Close() error {
	if g.client != nil {
		g.client.Close()
	}
	return nil
}

func inlineSystem(system, prompt string) string {
	if system == "" {
		return prompt
	}
	return system + "\n\n" + prompt
}
