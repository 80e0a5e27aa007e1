// Package openai implements generation.Generator on top of the OpenAI chat
// completions API. It is selected with llm.provider=openai and produces text
// results only.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/phrazzld/genqueue/internal/config"
	"github.com/phrazzld/genqueue/internal/generation"
)

// chatCompletions is the subset of the chat completions service used here.
type chatCompletions interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Generator implements generation.Generator using OpenAI chat completions.
type Generator struct {
	logger *slog.Logger
	chat   chatCompletions
	model  string
	policy generation.RetryPolicy
}

var _ generation.Generator = (*Generator)(nil)

// NewGenerator creates a Generator for cfg. Retries are handled by
// generation.Retry, so the SDK's own retries are disabled.
func NewGenerator(logger *slog.Logger, cfg config.LLMConfig) (*Generator, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("%w: openai api key cannot be empty", generation.ErrInvalidConfig)
	}
	client := openai.NewClient(
		option.WithAPIKey(cfg.OpenAIAPIKey),
		option.WithMaxRetries(0),
	)
	return newGenerator(logger, cfg, &client.Chat.Completions)
}

func newGenerator(logger *slog.Logger, cfg config.LLMConfig, chat chatCompletions) (*Generator, error) {
	if logger == nil {
		return nil, fmt.Errorf("%w: logger cannot be nil", generation.ErrInvalidConfig)
	}
	if chat == nil {
		return nil, fmt.Errorf("%w: client cannot be nil", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}
	return &Generator{
		logger: logger.With(slog.String("component", "openai_generator"), slog.String("model", cfg.ModelName)),
		chat:   chat,
		model:  cfg.ModelName,
		policy: generation.RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.RetryDelay,
		},
	}, nil
}

// Generate sends prompt as a single user message.
func (g *Generator) Generate(ctx context.Context, prompt string) (generation.Result, error) {
	if strings.TrimSpace(prompt) == "" {
		return generation.Result{}, fmt.Errorf("%w: prompt cannot be empty", generation.ErrInvalidRequest)
	}
	return generation.Retry(ctx, g.logger, g.policy, func(ctx context.Context) (generation.Result, error) {
		return g.call(ctx, prompt)
	})
}

func (g *Generator) call(ctx context.Context, prompt string) (generation.Result, error) {
	resp, err := g.chat.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
	})
	if err != nil {
		return generation.Result{}, classifyError(err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return generation.Result{}, fmt.Errorf("%w: no choices returned", generation.ErrInvalidResponse)
	}

	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" || choice.Message.Refusal != "" {
		return generation.Result{}, fmt.Errorf("%w: %s", generation.ErrContentBlocked, choice.Message.Refusal)
	}
	if choice.Message.Content == "" {
		return generation.Result{}, fmt.Errorf("%w: empty message content", generation.ErrInvalidResponse)
	}

	model := resp.Model
	if model == "" {
		model = g.model
	}
	return generation.Result{Text: choice.Message.Content, Model: model}, nil
}

// classifyError maps a client error to a generation sentinel. Only the status
// and message of API errors are kept.
func classifyError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: openai api error %d: %s", generation.ErrTransientFailure, apiErr.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("%w: openai api error %d: %s", generation.ErrGenerationFailed, apiErr.StatusCode, apiErr.Message)
	}
	return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
}
