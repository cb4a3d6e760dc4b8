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

// PromptRepository provides data access for prompts.
type PromptRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Prompt, error)
	ListActive(ctx context.Context, orgID uuid.UUID) ([]*models.Prompt, error)
}

type promptRepository struct{}

// NewPromptRepository creates a new PromptRepository.
func NewPromptRepository() PromptRepository {
	return &promptRepository{}
}

var _ PromptRepository = (*promptRepository)(nil)

func (r *promptRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Prompt, error) {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no org scope in context")
	}

	query := `
		SELECT id, org_id, text, active, created_at, updated_at
		FROM prompts
		WHERE id = $1`

	var p models.Prompt
	err := scope.Conn.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.OrgID, &p.Text, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get prompt: %w", err)
	}

	return &p, nil
}

// ListActive returns the org's active prompts in creation order. Deactivated
// prompts are excluded from new scans but keep their historical runs.
func (r *promptRepository) ListActive(ctx context.Context, orgID uuid.UUID) ([]*models.Prompt, error) {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no org scope in context")
	}

	query := `
		SELECT id, org_id, text, active, created_at, updated_at
		FROM prompts
		WHERE org_id = $1 AND active
		ORDER BY created_at`

	rows, err := scope.Conn.Query(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active prompts: %w", err)
	}
	defer rows.Close()

	var prompts []*models.Prompt
	for rows.Next() {
		var p models.Prompt
		if err := rows.Scan(&p.ID, &p.OrgID, &p.Text, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan prompt: %w", err)
		}
		prompts = append(prompts, &p)
	}
	return prompts, rows.Err()
}
