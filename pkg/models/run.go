package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the outcome of one prompt×provider execution.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusError   RunStatus = "error"
)

// Run is one attempt to execute one prompt against one provider within one
// batch job. Unique per (batch_job_id, prompt_id, provider_id): re-running
// the same pair within a resumed job replaces the earlier row.
type Run struct {
	ID         uuid.UUID `json:"id"`
	BatchJobID uuid.UUID `json:"batch_job_id"`
	PromptID   uuid.UUID `json:"prompt_id"`
	ProviderID uuid.UUID `json:"provider_id"`
	Status     RunStatus `json:"status"`
	ErrorKind  *string   `json:"error_kind,omitempty"`
	TokensIn   int       `json:"tokens_in"`
	TokensOut  int       `json:"tokens_out"`
	RunAt      time.Time `json:"run_at"`
}

// CitationType distinguishes linkable URL citations from loose references.
type CitationType string

const (
	CitationTypeURL CitationType = "url"
	CitationTypeRef CitationType = "ref"
)

// Citation is one reference extracted from a provider response, in document
// order. Priority records which extraction rule captured it (lower wins on
// dedup: markdown, then numbered, then bare URL).
type Citation struct {
	Type     CitationType `json:"type"`
	Value    string       `json:"value"`
	Title    string       `json:"title,omitempty"`
	Domain   string       `json:"domain,omitempty"`
	Priority int          `json:"priority"`
}

// Mention is one gazetteer brand matched in a provider response.
// FirstPosRatio is the character offset of the first occurrence divided by
// the text length: 0 means mentioned first, values near 1 mean mentioned at
// the very end.
type Mention struct {
	Name          string  `json:"name"`
	Normalized    string  `json:"normalized"`
	Count         int     `json:"count"`
	FirstPosRatio float64 `json:"first_pos_ratio"`
}

// ExtractionResult is the structured signal mined from one raw response:
// ordered citations plus brand mentions partitioned by gazetteer membership.
type ExtractionResult struct {
	Citations   []Citation `json:"citations"`
	OrgBrands   []Mention  `json:"org_brands"`
	Competitors []Mention  `json:"competitors"`
}

// ScoreRecord is the deterministic visibility score for one run, derived
// from its ExtractionResult. Never hand-edited: the manual correction path
// recomputes it from corrected extraction inputs.
type ScoreRecord struct {
	Score              float64 `json:"score"`
	OrgBrandPresent    bool    `json:"org_brand_present"`
	OrgBrandProminence *int    `json:"org_brand_prominence,omitempty"`
	CompetitorCount    int     `json:"competitor_count"`
}

// OrgUsage accumulates per-org counters used by the billing collaborator.
// Counters are incremented, never overwritten.
type OrgUsage struct {
	OrgID     uuid.UUID `json:"org_id"`
	TokensIn  int64     `json:"tokens_in"`
	TokensOut int64     `json:"tokens_out"`
	RunCount  int64     `json:"run_count"`
	UpdatedAt time.Time `json:"updated_at"`
}
