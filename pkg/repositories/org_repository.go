package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aurascan-ai/aurascan-engine/pkg/database"
	"github.com/aurascan-ai/aurascan-engine/pkg/models"
)

// OrgRepository provides data access for orgs. Org lifecycle (signup,
// settings) lives outside this service; scans only read.
type OrgRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Org, error)
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}

type orgRepository struct{}

// NewOrgRepository creates a new OrgRepository.
func NewOrgRepository() OrgRepository {
	return &orgRepository{}
}

var _ OrgRepository = (*orgRepository)(nil)

func (r *orgRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Org, error) {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no org scope in context")
	}

	query := `
		SELECT id, name, domain, brand_name, brand_variants, tier, created_at, updated_at
		FROM orgs
		WHERE id = $1`

	var org models.Org
	var variantsJSON []byte
	err := scope.Conn.QueryRow(ctx, query, id).Scan(
		&org.ID, &org.Name, &org.Domain, &org.BrandName,
		&variantsJSON, &org.Tier, &org.CreatedAt, &org.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get org: %w", err)
	}

	if err := json.Unmarshal(variantsJSON, &org.BrandVariants); err != nil {
		return nil, fmt.Errorf("failed to unmarshal brand variants: %w", err)
	}

	return &org, nil
}

// ListIDs returns all org ids. The auto-trigger loop iterates these with a
// per-org scope.
func (r *orgRepository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no org scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `SELECT id FROM orgs ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list orgs: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan org id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
