package providers

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aurascan-ai/aurascan-engine/pkg/config"
	"github.com/aurascan-ai/aurascan-engine/pkg/models"
)

// Default models used when the config leaves the model blank.
const (
	defaultOpenAIModel     = "gpt-4o"
	defaultAnthropicModel  = "claude-sonnet-4-20250514"
	defaultGeminiModel     = "gemini-2.0-flash"
	defaultPerplexityModel = "sonar-pro"
)

// Registry holds the configured provider clients keyed by provider name.
// Providers without credentials are simply absent; callers decide whether a
// missing provider is an error.
type Registry struct {
	clients map[string]Client
	logger  *zap.Logger
}

// NewRegistry builds clients for every provider with credentials in cfg.
// The context is only used for client construction (the Gemini SDK dials
// during setup), not for later calls.
func NewRegistry(ctx context.Context, cfg config.ProvidersConfig, timeout time.Duration, logger *zap.Logger) (*Registry, error) {
	r := &Registry{
		clients: make(map[string]Client),
		logger:  logger.Named("providers"),
	}

	if cfg.OpenAI.Configured() {
		model := cfg.OpenAI.Model
		if model == "" {
			model = defaultOpenAIModel
		}
		r.clients[models.ProviderOpenAI] = NewOpenAIClient(cfg.OpenAI.APIKey, model, cfg.OpenAI.BaseURL, timeout, logger)
	}

	if cfg.Anthropic.Configured() {
		model := cfg.Anthropic.Model
		if model == "" {
			model = defaultAnthropicModel
		}
		r.clients[models.ProviderAnthropic] = NewAnthropicClient(cfg.Anthropic.APIKey, model, timeout, logger)
	}

	if cfg.Gemini.Configured() {
		model := cfg.Gemini.Model
		if model == "" {
			model = defaultGeminiModel
		}
		client, err := NewGeminiClient(ctx, cfg.Gemini.APIKey, model, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini client: %w", err)
		}
		r.clients[models.ProviderGemini] = client
	}

	if cfg.Perplexity.Configured() {
		model := cfg.Perplexity.Model
		if model == "" {
			model = defaultPerplexityModel
		}
		r.clients[models.ProviderPerplexity] = NewPerplexityClient(cfg.Perplexity.APIKey, model, cfg.Perplexity.BaseURL, timeout, logger)
	}

	r.logger.Info("Provider registry initialized", zap.Int("configured", len(r.clients)))
	return r, nil
}

// Get returns the client for a provider name.
func (r *Registry) Get(name string) (Client, error) {
	client, ok := r.clients[name]
	if !ok {
		return nil, fmt.Errorf("provider %q is not configured", name)
	}
	return client, nil
}

// Has reports whether a provider has a configured client.
func (r *Registry) Has(name string) bool {
	_, ok := r.clients[name]
	return ok
}

// Names lists the configured provider names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	return names
}

// Close releases clients that hold connections. Currently only the Gemini
// SDK client needs an explicit close.
func (r *Registry) Close() {
	for name, client := range r.clients {
		if closer, ok := client.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				r.logger.Warn("Failed to close provider client",
					zap.String("provider", name), zap.Error(err))
			}
		}
	}
}
