package models

import (
	"time"

	"github.com/google/uuid"
)

// Prompt is a tracked question executed against each enabled provider on
// every scan. Prompts are soft-deactivated, never hard-deleted, because
// historical runs reference them.
type Prompt struct {
	ID        uuid.UUID `json:"id"`
	OrgID     uuid.UUID `json:"org_id"`
	Text      string    `json:"text"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
