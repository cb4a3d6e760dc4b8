package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aurascan-ai/aurascan-engine/pkg/database"
	"github.com/aurascan-ai/aurascan-engine/pkg/models"
)

// UsageRepository reads the per-org usage counters the billing collaborator
// consumes. Writes happen inside RunRepository.Upsert.
type UsageRepository interface {
	Get(ctx context.Context, orgID uuid.UUID) (*models.OrgUsage, error)
}

type usageRepository struct{}

// NewUsageRepository creates a new UsageRepository.
func NewUsageRepository() UsageRepository {
	return &usageRepository{}
}

var _ UsageRepository = (*usageRepository)(nil)

func (r *usageRepository) Get(ctx context.Context, orgID uuid.UUID) (*models.OrgUsage, error) {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no org scope in context")
	}

	query := `
		SELECT org_id, tokens_in, tokens_out, run_count, updated_at
		FROM org_usage
		WHERE org_id = $1`

	var usage models.OrgUsage
	err := scope.Conn.QueryRow(ctx, query, orgID).Scan(
		&usage.OrgID, &usage.TokensIn, &usage.TokensOut, &usage.RunCount, &usage.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get org usage: %w", err)
	}

	return &usage, nil
}
