package providers

import (
	"context"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/aurascan-ai/aurascan-engine/pkg/logging"
)

// GeminiClient executes prompts against the Google Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

// NewGeminiClient creates a Gemini provider client. The underlying client
// holds a gRPC connection; Close releases it.
func NewGeminiClient(ctx context.Context, apiKey, model string, logger *zap.Logger) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, ClassifyError("gemini", err)
	}

	return &GeminiClient{
		client: client,
		model:  model,
		logger: logger.Named("gemini"),
	}, nil
}

// Execute implements Client.
func (c *GeminiClient) Execute(ctx context.Context, prompt string) (*Result, error) {
	start := time.Now()

	model := c.client.GenerativeModel(c.model)
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		c.logger.Error("Provider request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, ClassifyError("gemini", err)
	}

	text, err := geminiResponseText(resp)
	if err != nil {
		return nil, err
	}

	var tokensIn, tokensOut int
	if resp.UsageMetadata != nil {
		tokensIn = int(resp.UsageMetadata.PromptTokenCount)
		tokensOut = int(resp.UsageMetadata.CandidatesTokenCount)
	}

	c.logger.Debug("Provider request completed",
		zap.Int("prompt_tokens", tokensIn),
		zap.Int("completion_tokens", tokensOut),
		zap.Duration("elapsed", time.Since(start)))

	return &Result{
		Text:      text,
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
	}, nil
}

// geminiResponseText flattens the text parts of the first candidate.
func geminiResponseText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", NewError(ErrorKindUnknown, "no candidates in response", false, nil)
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", NewError(ErrorKindUnknown, "no content in response", false, nil)
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}
	if len(parts) == 0 {
		return "", NewError(ErrorKindUnknown, "no text parts in response", false, nil)
	}

	return strings.Join(parts, ""), nil
}

// Close releases the underlying connection.
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Name implements Client.
func (c *GeminiClient) Name() string { return "gemini" }

// Model implements Client.
func (c *GeminiClient) Model() string { return c.model }

var _ Client = (*GeminiClient)(nil)
