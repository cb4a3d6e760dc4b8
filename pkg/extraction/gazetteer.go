// Package extraction mines structured signal out of raw answer engine
// responses: citations in document order and brand mentions partitioned into
// org brands and competitors. Everything here is pure and deterministic so
// the same response always yields the same extraction.
package extraction

import (
	"strings"

	"github.com/aurascan-ai/aurascan-engine/pkg/models"
)

// minEntryLength is the shortest gazetteer entry that is matched. Shorter
// strings produce too many false positives in prose.
const minEntryLength = 3

// industryBrands is the static list of common brands matched in every scan
// alongside the org's own names. Matches outside the org's brand-name set
// are classified as competitors.
var industryBrands = []string{
	"HubSpot",
	"Salesforce",
	"Zoho",
	"Pipedrive",
	"Freshworks",
	"Monday.com",
	"Zendesk",
	"Intercom",
	"Mailchimp",
	"Klaviyo",
	"Shopify",
	"BigCommerce",
	"WooCommerce",
	"Squarespace",
	"Wix",
	"Webflow",
	"Semrush",
	"Ahrefs",
	"Moz",
	"Hootsuite",
	"Buffer",
	"Sprout Social",
	"Canva",
	"Figma",
	"Notion",
	"Airtable",
	"Asana",
	"Trello",
	"ClickUp",
	"Slack",
	"Stripe",
	"Square",
	"QuickBooks",
	"Xero",
}

// Gazetteer is the set of brand strings matched against response text.
// Entries keep their display form for reporting; orgSet holds the
// normalized forms that classify a match as the org's own brand.
type Gazetteer struct {
	entries []string
	orgSet  map[string]bool
}

// NewGazetteer builds a gazetteer from explicit entries and the normalized
// org-brand set (see models.Org.BrandNameSet). Entries shorter than three
// characters after trimming are dropped, and duplicate normalized forms keep
// their first appearance.
func NewGazetteer(entries []string, orgSet map[string]bool) *Gazetteer {
	g := &Gazetteer{orgSet: orgSet}
	if g.orgSet == nil {
		g.orgSet = map[string]bool{}
	}

	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if len(e) < minEntryLength {
			continue
		}
		n := Normalize(e)
		if seen[n] {
			continue
		}
		seen[n] = true
		g.entries = append(g.entries, e)
	}
	return g
}

// ForOrg builds the scan gazetteer for an org: its brand name and variants
// first, then the static industry list. Order is stable so extraction output
// is deterministic.
func ForOrg(org *models.Org) *Gazetteer {
	entries := append([]string{org.BrandName}, org.BrandVariants...)
	entries = append(entries, industryBrands...)
	return NewGazetteer(entries, org.BrandNameSet())
}

// IsOrgBrand reports whether a normalized form belongs to the org.
func (g *Gazetteer) IsOrgBrand(normalized string) bool {
	return g.orgSet[normalized]
}

// Entries returns the matchable entries in stable order.
func (g *Gazetteer) Entries() []string {
	return g.entries
}

// Normalize lower-cases and trims a brand string. This is the key used for
// dedup and for org-brand classification.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
