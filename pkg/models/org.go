package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// SubscriptionTier controls which providers an org may scan with.
type SubscriptionTier string

const (
	TierFree    SubscriptionTier = "free"
	TierStarter SubscriptionTier = "starter"
	TierPro     SubscriptionTier = "pro"
)

// ValidTiers contains all valid subscription tier values.
var ValidTiers = []SubscriptionTier{TierFree, TierStarter, TierPro}

// IsValidTier checks if the given tier is valid.
func IsValidTier(t SubscriptionTier) bool {
	for _, v := range ValidTiers {
		if v == t {
			return true
		}
	}
	return false
}

// Org is a tenant of the visibility dashboard. Its brand name and variants
// seed the gazetteer used to partition mentions into org-brand vs competitor.
type Org struct {
	ID            uuid.UUID        `json:"id"`
	Name          string           `json:"name"`
	Domain        string           `json:"domain"`
	BrandName     string           `json:"brand_name"`
	BrandVariants []string         `json:"brand_variants"`
	Tier          SubscriptionTier `json:"tier"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// BrandNameSet returns the normalized (lower-cased, trimmed) set of the org's
// brand name plus all variants. Gazetteer entries whose normalized form is in
// this set are classified as org-brand mentions.
func (o *Org) BrandNameSet() map[string]bool {
	set := make(map[string]bool, len(o.BrandVariants)+1)
	if n := strings.ToLower(strings.TrimSpace(o.BrandName)); n != "" {
		set[n] = true
	}
	for _, v := range o.BrandVariants {
		if n := strings.ToLower(strings.TrimSpace(v)); n != "" {
			set[n] = true
		}
	}
	return set
}
