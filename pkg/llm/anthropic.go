package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

// ClientConfig holds configuration shared by the provider clients.
type ClientConfig struct {
	APIKey      string
	Model       string
	BaseURL     string // Optional; provider default when empty
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

func (c *ClientConfig) validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api key is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

// AnthropicClient completes prompts through the Claude messages API.
type AnthropicClient struct {
	client *anthropic.Client
	cfg    ClientConfig
	logger *zap.Logger
}

// NewAnthropicClient creates a Claude messages client.
func NewAnthropicClient(cfg ClientConfig, logger *zap.Logger) (*AnthropicClient, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opts := []anthropic.ClientOption{
		anthropic.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")))
	}

	return &AnthropicClient{
		client: anthropic.NewClient(cfg.APIKey, opts...),
		cfg:    cfg,
		logger: logger.Named("llm.anthropic"),
	}, nil
}

// Model returns the configured model name.
func (c *AnthropicClient) Model() string {
	return c.cfg.Model
}

// Complete sends a single user message and returns the first text block.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}
	temperature := c.cfg.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	prompt := req.Prompt
	msgReq := anthropic.MessagesRequest{
		Model:       anthropic.Model(c.cfg.Model),
		MaxTokens:   maxTokens,
		Temperature: &temperature,
		System:      req.System,
		Messages: []anthropic.Message{
			{
				Role: anthropic.RoleUser,
				Content: []anthropic.MessageContent{
					{Type: "text", Text: &prompt},
				},
			},
		},
	}

	c.logger.Debug("Completion request",
		zap.String("model", c.cfg.Model),
		zap.Int("prompt_len", len(prompt)),
		zap.Int("max_tokens", maxTokens))

	start := time.Now()
	resp, err := c.client.CreateMessages(ctx, msgReq)
	if err != nil {
		classified := ClassifyError(err, c.cfg.Model)
		c.logger.Error("Completion request failed",
			zap.String("type", string(classified.Type)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, classified
	}

	var text string
	for _, block := range resp.Content {
		if block.Text != nil {
			text = *block.Text
			break
		}
	}
	if text == "" {
		return nil, NewError(ErrorTypeRejected, "response contained no text content", false, nil)
	}

	c.logger.Info("Completion request completed",
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &Completion{
		Text:         text,
		Model:        c.cfg.Model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}
