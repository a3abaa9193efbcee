// Package llm wraps the text-completion providers behind a single Completer
// interface and turns their free-form replies into typed results.
package llm

import (
	"context"
)

// Request is one completion call. Zero MaxTokens or Temperature fall back
// to the client's configured defaults.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature *float32
}

// Completion is the text returned by a provider.
type Completion struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Completer defines the interface for text completion.
// Use this interface for dependency injection to enable mocking in tests.
type Completer interface {
	// Complete sends req and returns the model's text. Errors are *Error values.
	Complete(ctx context.Context, req Request) (*Completion, error)

	// Model returns the configured model name.
	Model() string
}

var (
	_ Completer = (*AnthropicClient)(nil)
	_ Completer = (*OpenAIClient)(nil)
	_ Completer = (*GuardedCompleter)(nil)
	_ Completer = (*MockCompleter)(nil)
)
