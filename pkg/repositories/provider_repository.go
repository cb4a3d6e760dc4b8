package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/aurascan-ai/aurascan-engine/pkg/database"
	"github.com/aurascan-ai/aurascan-engine/pkg/models"
)

// ProviderRepository provides data access for the provider reference table.
type ProviderRepository interface {
	ListEnabled(ctx context.Context) ([]*models.Provider, error)
}

type providerRepository struct{}

// NewProviderRepository creates a new ProviderRepository.
func NewProviderRepository() ProviderRepository {
	return &providerRepository{}
}

var _ ProviderRepository = (*providerRepository)(nil)

const providerColumns = `id, name, model, enabled, allowed_tiers, created_at, updated_at`

func (r *providerRepository) ListEnabled(ctx context.Context) ([]*models.Provider, error) {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no org scope in context")
	}

	query := `SELECT ` + providerColumns + ` FROM providers WHERE enabled ORDER BY name`

	rows, err := scope.Conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled providers: %w", err)
	}
	defer rows.Close()

	var providers []*models.Provider
	for rows.Next() {
		provider, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		providers = append(providers, provider)
	}
	return providers, rows.Err()
}

func scanProvider(row pgx.Row) (*models.Provider, error) {
	var p models.Provider
	var tiersJSON []byte
	err := row.Scan(&p.ID, &p.Name, &p.Model, &p.Enabled, &tiersJSON, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tiersJSON, &p.AllowedTiers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal allowed tiers: %w", err)
	}
	return &p, nil
}
