package llmservice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"course-rag/internal/config"
	"course-rag/internal/models"
)

// answers must be reproducible for the same context
const temperature = 0.0

// Client wraps a chat model with a token cap, a request timeout and a
// client-side rate limit shared by all queries.
type Client struct {
	model     llms.Model
	limiter   *rate.Limiter
	maxTokens int
	timeout   time.Duration
}

// New builds the chat model named by the configuration.
func New(cfg *config.LLMConfig) (*Client, error) {
	log.Debug().Interface("llmConfig", map[string]any{
		"provider":   cfg.Provider,
		"base_url":   cfg.BaseURL,
		"model":      cfg.Model,
		"max_tokens": cfg.MaxTokens,
	}).Msg("Creating LLM client")

	var model llms.Model
	var err error
	switch cfg.Provider {
	case "deepseek", "openai":
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	case "ollama":
		model, err = ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
	default:
		return nil, fmt.Errorf("%w: unsupported llm provider: %s", models.ErrConfiguration, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s client: %w", cfg.Provider, err)
	}

	c := NewClient(model, cfg.MaxTokens, cfg.RequestsPerSecond)
	c.timeout = time.Duration(cfg.TimeoutSecs) * time.Second
	return c, nil
}

// NewClient wraps an existing model. A non-positive rps disables limiting.
func NewClient(model llms.Model, maxTokens int, rps float64) *Client {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &Client{
		model:     model,
		limiter:   rate.NewLimiter(limit, 1),
		maxTokens: maxTokens,
	}
}

// GenerateContent makes one model round-trip. Tools are offered with
// automatic tool choice only when non-empty. Every failure wraps
// models.ErrModelCall.
func (c *Client) GenerateContent(ctx context.Context, messages []llms.MessageContent, tools []llms.Tool) (*llms.ContentResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit wait: %w", models.ErrModelCall, err)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	opts := []llms.CallOption{
		llms.WithTemperature(temperature),
		llms.WithMaxTokens(c.maxTokens),
	}
	if len(tools) > 0 {
		opts = append(opts, llms.WithTools(tools), llms.WithToolChoice("auto"))
	}

	log.Debug().Int("messages", len(messages)).Int("tools", len(tools)).Msg("Generating content")
	resp, err := c.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrModelCall, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response", models.ErrModelCall)
	}
	return resp, nil
}

// ToolsFromDefinitions converts tool schemas into model tool declarations.
func ToolsFromDefinitions(defs []models.ToolDefinition) []llms.Tool {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]llms.Tool, 0, len(defs))
	for _, d := range defs {
		tools = append(tools, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}
	return tools
}
