package providers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/aurascan-ai/aurascan-engine/pkg/logging"
)

const anthropicMaxTokens = 2048

// AnthropicClient executes prompts against the Anthropic messages API.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
	logger *zap.Logger
}

// NewAnthropicClient creates an Anthropic provider client.
func NewAnthropicClient(apiKey, model string, timeout time.Duration, logger *zap.Logger) *AnthropicClient {
	client := anthropic.NewClient(apiKey,
		anthropic.WithHTTPClient(&http.Client{Timeout: timeout}))

	return &AnthropicClient{
		client: client,
		model:  model,
		logger: logger.Named("anthropic"),
	}
}

// Execute implements Client.
func (c *AnthropicClient) Execute(ctx context.Context, prompt string) (*Result, error) {
	start := time.Now()

	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model: anthropic.Model(c.model),
		Messages: []anthropic.Message{
			anthropic.NewUserTextMessage(prompt),
		},
		MaxTokens: anthropicMaxTokens,
	})
	if err != nil {
		c.logger.Error("Provider request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, c.classify(err)
	}

	c.logger.Debug("Provider request completed",
		zap.Int("prompt_tokens", resp.Usage.InputTokens),
		zap.Int("completion_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &Result{
		Text:      resp.GetFirstContentText(),
		TokensIn:  resp.Usage.InputTokens,
		TokensOut: resp.Usage.OutputTokens,
	}, nil
}

// classify maps SDK error types onto the shared taxonomy. The SDK surfaces
// HTTP status codes through RequestError; everything else falls back to
// string classification.
func (c *AnthropicClient) classify(err error) *Error {
	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.StatusCode == http.StatusUnauthorized || reqErr.StatusCode == http.StatusForbidden:
			return &Error{Kind: ErrorKindAuth, Message: "authentication failed", Retryable: false, Cause: err, StatusCode: reqErr.StatusCode, Provider: "anthropic"}
		case reqErr.StatusCode == http.StatusBadRequest:
			return &Error{Kind: ErrorKindBadRequest, Message: "malformed request", Retryable: false, Cause: err, StatusCode: reqErr.StatusCode, Provider: "anthropic"}
		case reqErr.StatusCode == http.StatusTooManyRequests:
			return &Error{Kind: ErrorKindRateLimit, Message: "rate limited", Retryable: true, Cause: err, StatusCode: reqErr.StatusCode, Provider: "anthropic"}
		case reqErr.StatusCode >= 500:
			return &Error{Kind: ErrorKindServer, Message: "server error", Retryable: true, Cause: err, StatusCode: reqErr.StatusCode, Provider: "anthropic"}
		}
	}
	return ClassifyError("anthropic", err)
}

// Name implements Client.
func (c *AnthropicClient) Name() string { return "anthropic" }

// Model implements Client.
func (c *AnthropicClient) Model() string { return c.model }

var _ Client = (*AnthropicClient)(nil)
