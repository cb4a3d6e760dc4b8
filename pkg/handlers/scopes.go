package handlers

import (
	"context"

	"github.com/google/uuid"
)

// ScopeProvider yields scoped contexts for database access.
// *database.OrgScopeProvider satisfies it; tests substitute a no-op fake.
type ScopeProvider interface {
	WithOrgScope(ctx context.Context, orgID uuid.UUID) (context.Context, func(), error)
	WithGlobalScope(ctx context.Context) (context.Context, func(), error)
}
