package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/aurascan-ai/aurascan-engine/pkg/logging"
)

const perplexityDefaultBaseURL = "https://api.perplexity.ai"

// PerplexityClient executes prompts against the Perplexity chat completions
// API. There is no official Go SDK, so this speaks the HTTP API directly.
type PerplexityClient struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
	logger  *zap.Logger
}

// NewPerplexityClient creates a Perplexity provider client. An empty baseURL
// uses the public API endpoint.
func NewPerplexityClient(apiKey, model, baseURL string, timeout time.Duration, logger *zap.Logger) *PerplexityClient {
	if baseURL == "" {
		baseURL = perplexityDefaultBaseURL
	}
	return &PerplexityClient{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger.Named("perplexity"),
	}
}

type perplexityMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type perplexityRequest struct {
	Model    string              `json:"model"`
	Messages []perplexityMessage `json:"messages"`
}

type perplexityResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Index   int               `json:"index"`
		Message perplexityMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Execute implements Client.
func (c *PerplexityClient) Execute(ctx context.Context, prompt string) (*Result, error) {
	start := time.Now()

	body, err := json.Marshal(perplexityRequest{
		Model:    c.model,
		Messages: []perplexityMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, NewError(ErrorKindBadRequest, "marshal request", false, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, NewError(ErrorKindBadRequest, "create request", false, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Error("Provider request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, ClassifyError("perplexity", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ClassifyError("perplexity", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp.StatusCode, respBody)
	}

	var result perplexityResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, NewError(ErrorKindUnknown, "unmarshal response", false, err)
	}

	if len(result.Choices) == 0 {
		return nil, NewError(ErrorKindUnknown, "no choices in response", false, nil)
	}

	c.logger.Debug("Provider request completed",
		zap.Int("prompt_tokens", result.Usage.PromptTokens),
		zap.Int("completion_tokens", result.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &Result{
		Text:      result.Choices[0].Message.Content,
		TokensIn:  result.Usage.PromptTokens,
		TokensOut: result.Usage.CompletionTokens,
	}, nil
}

// statusError maps a non-200 response onto the shared taxonomy.
func (c *PerplexityClient) statusError(status int, body []byte) *Error {
	cause := fmt.Errorf("unexpected status %d: %s", status, logging.TruncateString(string(body), 200))

	e := &Error{Cause: cause, StatusCode: status, Provider: "perplexity"}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		e.Kind, e.Message, e.Retryable = ErrorKindAuth, "authentication failed", false
	case status == http.StatusBadRequest:
		e.Kind, e.Message, e.Retryable = ErrorKindBadRequest, "malformed request", false
	case status == http.StatusTooManyRequests:
		e.Kind, e.Message, e.Retryable = ErrorKindRateLimit, "rate limited", true
	case status >= 500:
		e.Kind, e.Message, e.Retryable = ErrorKindServer, "server error", true
	default:
		e.Kind, e.Message, e.Retryable = ErrorKindUnknown, "provider error", false
	}
	return e
}

// Name implements Client.
func (c *PerplexityClient) Name() string { return "perplexity" }

// Model implements Client.
func (c *PerplexityClient) Model() string { return c.model }

var _ Client = (*PerplexityClient)(nil)
