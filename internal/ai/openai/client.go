package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"github.com/spigell/search-evaluator/internal/ai"
	"github.com/spigell/search-evaluator/internal/logger"
)

const DefaultModel = "gpt-4o-mini"

type chatCompletions interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Generator talks to any OpenAI-compatible chat completions endpoint.
type Generator struct {
	completions chatCompletions
	modelName   string
	logger      *zap.Logger
}

var _ ai.Generator = (*Generator)(nil)

// NewGenerator builds a Generator. baseURL may be empty for the public API.
func NewGenerator(apiKey, baseURL, model string, log *zap.Logger) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(opts...)

	if model = strings.TrimSpace(model); model == "" {
		model = DefaultModel
	}

	return &Generator{
		completions: &client.Chat.Completions,
		modelName:   model,
		logger:      logger.WithCommonFields(log, ai.ProviderOpenAI, model),
	}, nil
}

func (g *Generator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	if g == nil || g.completions == nil {
		return "", errors.New("openai generator is not initialized")
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	resp, err := g.completions.New(ctx, openai.ChatCompletionNewParams{
		Model: shared.ChatModel(g.modelName),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		g.logger.Debug("openai chat completion failed", zap.Error(err))
		return "", fmt.Errorf("create chat completion: %w", err)
	}

	for _, choice := range resp.Choices {
		if text := strings.TrimSpace(choice.Message.Content); text != "" {
			return text, nil
		}
	}

	return "", errors.New("openai api returned empty response")
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.modelName
}
