package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/phrazzld/genqueue/internal/config"
	"github.com/phrazzld/genqueue/internal/generation"
	"google.golang.org/genai"
)

// contentGenerator is the subset of the genai Models service used here.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Generator implements generation.Generator using the Gemini API.
type Generator struct {
	logger  *slog.Logger
	client  contentGenerator
	model   string
	request *genai.GenerateContentConfig
	policy  generation.RetryPolicy
}

var _ generation.Generator = (*Generator)(nil)

// NewGenerator creates a Generator with a new genai client for cfg.
func NewGenerator(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Generator, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini api key cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create genai client: %v", generation.ErrInvalidConfig, err)
	}

	return newGenerator(logger, cfg, client.Models)
}

func newGenerator(logger *slog.Logger, cfg config.LLMConfig, client contentGenerator) (*Generator, error) {
	if logger == nil {
		return nil, fmt.Errorf("%w: logger cannot be nil", generation.ErrInvalidConfig)
	}
	if client == nil {
		return nil, fmt.Errorf("%w: client cannot be nil", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	request := &genai.GenerateContentConfig{}
	if cfg.ImageOutput {
		request.ResponseModalities = []string{"TEXT", "IMAGE"}
	}

	return &Generator{
		logger:  logger.With(slog.String("component", "gemini_generator"), slog.String("model", cfg.ModelName)),
		client:  client,
		model:   cfg.ModelName,
		request: request,
		policy: generation.RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.RetryDelay,
		},
	}, nil
}

// Generate sends prompt to Gemini and returns the text and images of the
// first candidate.
func (g *Generator) Generate(ctx context.Context, prompt string) (generation.Result, error) {
	if strings.TrimSpace(prompt) == "" {
		return generation.Result{}, fmt.Errorf("%w: prompt cannot be empty", generation.ErrInvalidRequest)
	}
	return generation.Retry(ctx, g.logger, g.policy, func(ctx context.Context) (generation.Result, error) {
		return g.call(ctx, prompt)
	})
}

func (g *Generator) call(ctx context.Context, prompt string) (generation.Result, error) {
	g.logger.DebugContext(ctx, "Making Gemini API call", "prompt_length", len(prompt))

	resp, err := g.client.GenerateContent(ctx, g.model, genai.Text(prompt), g.request)
	if err != nil {
		return generation.Result{}, classifyError(err)
	}
	if resp == nil {
		return generation.Result{}, fmt.Errorf("%w: nil response", generation.ErrInvalidResponse)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return generation.Result{}, fmt.Errorf("%w: prompt blocked (%s)",
			generation.ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return generation.Result{}, fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	switch candidate.FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent:
		return generation.Result{}, fmt.Errorf("%w: finish reason %s",
			generation.ErrContentBlocked, candidate.FinishReason)
	}
	if candidate.Content == nil {
		return generation.Result{}, fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	result := generation.Result{Model: g.model}
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		text.WriteString(part.Text)
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			result.Images = append(result.Images, generation.Image{
				MIMEType: part.InlineData.MIMEType,
				Data:     part.InlineData.Data,
			})
		}
	}
	result.Text = text.String()

	if result.Text == "" && len(result.Images) == 0 {
		return generation.Result{}, fmt.Errorf("%w: response has no text or image parts", generation.ErrInvalidResponse)
	}
	return result, nil
}

// classifyError maps a client error to a generation sentinel. Rate limits,
// server errors and errors without an HTTP status are treated as transient.
func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests, apiErr.Code >= http.StatusInternalServerError:
			return fmt.Errorf("%w: gemini api error %d: %s", generation.ErrTransientFailure, apiErr.Code, apiErr.Message)
		default:
			return fmt.Errorf("%w: gemini api error %d: %s", generation.ErrGenerationFailed, apiErr.Code, apiErr.Message)
		}
	}
	return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
}
