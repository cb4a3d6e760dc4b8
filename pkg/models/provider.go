package models

import (
	"time"

	"github.com/google/uuid"
)

// Provider names. These are the answer engines a scan fans out to.
const (
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderGemini     = "gemini"
	ProviderPerplexity = "perplexity"
)

// Provider is reference data describing one answer engine: whether it is
// enabled server-wide and which subscription tiers may use it.
type Provider struct {
	ID           uuid.UUID          `json:"id"`
	Name         string             `json:"name"`
	Model        string             `json:"model"`
	Enabled      bool               `json:"enabled"`
	AllowedTiers []SubscriptionTier `json:"allowed_tiers"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// AllowsTier reports whether the given subscription tier may use this
// provider. An empty AllowedTiers list means no tier gating.
func (p *Provider) AllowsTier(tier SubscriptionTier) bool {
	if len(p.AllowedTiers) == 0 {
		return true
	}
	for _, t := range p.AllowedTiers {
		if t == tier {
			return true
		}
	}
	return false
}
