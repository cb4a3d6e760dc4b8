// Package providers wraps the external LLM answer engines a scan fans out
// to. Each client hides one vendor SDK behind the same Execute contract and
// reports failures through the shared error taxonomy in errors.go.
package providers

import (
	"context"
)

// Result is the raw outcome of one provider call: the response text and the
// token counts billed for it.
type Result struct {
	Text      string
	TokensIn  int
	TokensOut int
}

// Client executes a single prompt against one answer engine.
// Implementations are stateless across calls and safe for concurrent use.
// Use this interface for dependency injection to enable mocking in tests.
type Client interface {
	// Execute sends the prompt and returns the response text with usage.
	// Errors are always *Error so callers can apply the retry policy.
	Execute(ctx context.Context, prompt string) (*Result, error)

	// Name returns the provider name ("openai", "gemini", ...).
	Name() string

	// Model returns the configured model identifier.
	Model() string
}
