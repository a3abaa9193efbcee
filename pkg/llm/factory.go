package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dunelens/dunelens/pkg/config"
)

// NewCompleter builds the configured provider client wrapped in a circuit breaker.
func NewCompleter(cfg *config.CompletionConfig, logger *zap.Logger) (Completer, error) {
	clientCfg := ClientConfig{
		APIKey:      cfg.APIKey(),
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
	}

	var (
		inner Completer
		err   error
	)
	switch cfg.Provider {
	case config.ProviderAnthropic:
		inner, err = NewAnthropicClient(clientCfg, logger)
	case config.ProviderOpenAI:
		inner, err = NewOpenAIClient(clientCfg, logger)
	default:
		return nil, fmt.Errorf("unknown completion provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.Provider, err)
	}

	return NewGuardedCompleter(inner, NewCircuitBreaker(DefaultCircuitBreakerConfig()), logger), nil
}

// unconfiguredCompleter stands in when no provider client could be built.
// Every call fails with a non-retryable UpstreamUnavailable so callers take
// their degraded path.
type unconfiguredCompleter struct {
	model string
	cause error
}

// NewUnconfiguredCompleter returns a Completer that always fails with cause.
func NewUnconfiguredCompleter(model string, cause error) Completer {
	return &unconfiguredCompleter{model: model, cause: cause}
}

func (c *unconfiguredCompleter) Model() string { return c.model }

func (c *unconfiguredCompleter) Complete(ctx context.Context, req Request) (*Completion, error) {
	return nil, NewError(ErrorTypeUnavailable, "completion service not configured", false, c.cause)
}
