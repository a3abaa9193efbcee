package llm

import (
	"context"
	"sync"
)

// MockCompleter is a configurable Completer for tests.
// Set CompleteFunc to control behavior; when nil, Response is returned as text.
type MockCompleter struct {
	CompleteFunc func(ctx context.Context, req Request) (*Completion, error)
	Response     string
	ModelName    string

	mu       sync.Mutex
	requests []Request
}

// NewMockCompleter returns a mock that answers every call with response.
func NewMockCompleter(response string) *MockCompleter {
	return &MockCompleter{Response: response, ModelName: "mock-model"}
}

// Complete implements Completer.
func (m *MockCompleter) Complete(ctx context.Context, req Request) (*Completion, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &Completion{Text: m.Response, Model: m.Model()}, nil
}

// Model implements Completer.
func (m *MockCompleter) Model() string {
	if m.ModelName == "" {
		return "mock-model"
	}
	return m.ModelName
}

// Requests returns a copy of every request received so far.
func (m *MockCompleter) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// Calls returns the number of Complete invocations.
func (m *MockCompleter) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
