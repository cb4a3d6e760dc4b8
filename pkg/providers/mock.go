package providers

import (
	"context"
	"sync"
)

// MockClient is a test double for the Client interface.
type MockClient struct {
	NameValue  string
	ModelValue string

	ExecuteFunc func(ctx context.Context, prompt string) (*Result, error)

	mu           sync.Mutex
	ExecuteCalls []string
}

// Execute records the prompt and delegates to ExecuteFunc.
func (m *MockClient) Execute(ctx context.Context, prompt string) (*Result, error) {
	m.mu.Lock()
	m.ExecuteCalls = append(m.ExecuteCalls, prompt)
	m.mu.Unlock()

	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, prompt)
	}
	return &Result{Text: "mock response"}, nil
}

// CallCount returns how many times Execute has been called.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ExecuteCalls)
}

// Name implements Client.
func (m *MockClient) Name() string {
	if m.NameValue == "" {
		return "mock"
	}
	return m.NameValue
}

// Model implements Client.
func (m *MockClient) Model() string {
	if m.ModelValue == "" {
		return "mock-model"
	}
	return m.ModelValue
}

var _ Client = (*MockClient)(nil)
