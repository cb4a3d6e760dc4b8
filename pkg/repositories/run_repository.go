package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/aurascan-ai/aurascan-engine/pkg/database"
	"github.com/aurascan-ai/aurascan-engine/pkg/models"
)

// CitationStats summarizes citation quality over a sample of recent runs.
type CitationStats struct {
	Total            int `json:"total"`
	WithCitations    int `json:"with_citations"`
	WithURLCitations int `json:"with_url_citations"`
}

// RunRepository provides data access for runs and their extraction and score
// artifacts. Writes are idempotent: the same (batch_job, prompt, provider)
// key replaces the prior row, which is what makes resume safe.
type RunRepository interface {
	// Upsert writes the run and its artifacts in one transaction and
	// increments the org's usage counters. score is nil for error runs.
	Upsert(ctx context.Context, orgID uuid.UUID, run *models.Run, extraction models.ExtractionResult, score *models.ScoreRecord) error

	// ListSuccessfulPairs returns the pairs that already have a successful
	// run for the job. A resume subtracts these from the work-set.
	ListSuccessfulPairs(ctx context.Context, jobID uuid.UUID) ([]models.PairKey, error)

	// GetByPair returns the run for one (job, prompt, provider) key.
	GetByPair(ctx context.Context, jobID, promptID, providerID uuid.UUID) (*models.Run, error)

	// UpdateArtifacts replaces a run's extraction and score columns without
	// touching tokens or usage counters. This is the manual correction
	// write path.
	UpdateArtifacts(ctx context.Context, runID uuid.UUID, extraction models.ExtractionResult, score models.ScoreRecord) error

	// CitationStatsRecent computes citation rates over the most recent runs.
	CitationStatsRecent(ctx context.Context, sampleSize int) (*CitationStats, error)
}

type runRepository struct{}

// NewRunRepository creates a new RunRepository.
func NewRunRepository() RunRepository {
	return &runRepository{}
}

var _ RunRepository = (*runRepository)(nil)

func (r *runRepository) Upsert(ctx context.Context, orgID uuid.UUID, run *models.Run, extraction models.ExtractionResult, score *models.ScoreRecord) error {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return fmt.Errorf("no org scope in context")
	}

	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.RunAt.IsZero() {
		run.RunAt = time.Now()
	}

	brandsJSON, err := marshalJSONArray(extraction.OrgBrands)
	if err != nil {
		return fmt.Errorf("failed to marshal brand mentions: %w", err)
	}
	competitorsJSON, err := marshalJSONArray(extraction.Competitors)
	if err != nil {
		return fmt.Errorf("failed to marshal competitor mentions: %w", err)
	}
	citationsJSON, err := marshalJSONArray(extraction.Citations)
	if err != nil {
		return fmt.Errorf("failed to marshal citations: %w", err)
	}

	var scoreVal *float64
	var prominence *int
	orgBrandPresent := false
	competitorCount := len(extraction.Competitors)
	if score != nil {
		scoreVal = &score.Score
		prominence = score.OrgBrandProminence
		orgBrandPresent = score.OrgBrandPresent
		competitorCount = score.CompetitorCount
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	runQuery := `
		INSERT INTO runs (
			id, batch_job_id, prompt_id, provider_id, status, error_kind,
			score, org_brand_present, org_brand_prominence, competitors_count,
			brands_json, competitors_json, citations_json,
			token_in, token_out, run_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT ON CONSTRAINT runs_pair_unique DO UPDATE SET
			status = EXCLUDED.status,
			error_kind = EXCLUDED.error_kind,
			score = EXCLUDED.score,
			org_brand_present = EXCLUDED.org_brand_present,
			org_brand_prominence = EXCLUDED.org_brand_prominence,
			competitors_count = EXCLUDED.competitors_count,
			brands_json = EXCLUDED.brands_json,
			competitors_json = EXCLUDED.competitors_json,
			citations_json = EXCLUDED.citations_json,
			token_in = EXCLUDED.token_in,
			token_out = EXCLUDED.token_out,
			run_at = EXCLUDED.run_at`

	_, err = tx.Exec(ctx, runQuery,
		run.ID, run.BatchJobID, run.PromptID, run.ProviderID, run.Status, run.ErrorKind,
		scoreVal, orgBrandPresent, prominence, competitorCount,
		brandsJSON, competitorsJSON, citationsJSON,
		run.TokensIn, run.TokensOut, run.RunAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert run: %w", err)
	}

	usageQuery := `
		INSERT INTO org_usage (org_id, tokens_in, tokens_out, run_count, updated_at)
		VALUES ($1, $2, $3, 1, NOW())
		ON CONFLICT (org_id) DO UPDATE SET
			tokens_in = org_usage.tokens_in + EXCLUDED.tokens_in,
			tokens_out = org_usage.tokens_out + EXCLUDED.tokens_out,
			run_count = org_usage.run_count + 1,
			updated_at = NOW()`

	if _, err := tx.Exec(ctx, usageQuery, orgID, run.TokensIn, run.TokensOut); err != nil {
		return fmt.Errorf("failed to increment org usage: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit run upsert: %w", err)
	}
	return nil
}

func (r *runRepository) ListSuccessfulPairs(ctx context.Context, jobID uuid.UUID) ([]models.PairKey, error) {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no org scope in context")
	}

	query := `
		SELECT prompt_id, provider_id
		FROM runs
		WHERE batch_job_id = $1 AND status = 'success'`

	rows, err := scope.Conn.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list successful pairs: %w", err)
	}
	defer rows.Close()

	var pairs []models.PairKey
	for rows.Next() {
		var pair models.PairKey
		if err := rows.Scan(&pair.PromptID, &pair.ProviderID); err != nil {
			return nil, fmt.Errorf("failed to scan pair: %w", err)
		}
		pairs = append(pairs, pair)
	}
	return pairs, rows.Err()
}

func (r *runRepository) GetByPair(ctx context.Context, jobID, promptID, providerID uuid.UUID) (*models.Run, error) {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no org scope in context")
	}

	query := `
		SELECT id, batch_job_id, prompt_id, provider_id, status, error_kind,
		       token_in, token_out, run_at
		FROM runs
		WHERE batch_job_id = $1 AND prompt_id = $2 AND provider_id = $3`

	var run models.Run
	err := scope.Conn.QueryRow(ctx, query, jobID, promptID, providerID).Scan(
		&run.ID, &run.BatchJobID, &run.PromptID, &run.ProviderID,
		&run.Status, &run.ErrorKind, &run.TokensIn, &run.TokensOut, &run.RunAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

func (r *runRepository) UpdateArtifacts(ctx context.Context, runID uuid.UUID, extraction models.ExtractionResult, score models.ScoreRecord) error {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return fmt.Errorf("no org scope in context")
	}

	brandsJSON, err := marshalJSONArray(extraction.OrgBrands)
	if err != nil {
		return fmt.Errorf("failed to marshal brand mentions: %w", err)
	}
	competitorsJSON, err := marshalJSONArray(extraction.Competitors)
	if err != nil {
		return fmt.Errorf("failed to marshal competitor mentions: %w", err)
	}
	citationsJSON, err := marshalJSONArray(extraction.Citations)
	if err != nil {
		return fmt.Errorf("failed to marshal citations: %w", err)
	}

	query := `
		UPDATE runs
		SET score = $2,
		    org_brand_present = $3,
		    org_brand_prominence = $4,
		    competitors_count = $5,
		    brands_json = $6,
		    competitors_json = $7,
		    citations_json = $8
		WHERE id = $1`

	tag, err := scope.Conn.Exec(ctx, query,
		runID, score.Score, score.OrgBrandPresent, score.OrgBrandProminence,
		score.CompetitorCount, brandsJSON, competitorsJSON, citationsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to update run artifacts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

func (r *runRepository) CitationStatsRecent(ctx context.Context, sampleSize int) (*CitationStats, error) {
	scope, ok := database.GetOrgScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no org scope in context")
	}

	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE jsonb_array_length(citations_json) > 0),
			COUNT(*) FILTER (WHERE EXISTS (
				SELECT 1 FROM jsonb_array_elements(citations_json) c
				WHERE c->>'type' = 'url'
			))
		FROM (
			SELECT citations_json
			FROM runs
			WHERE status = 'success'
			ORDER BY run_at DESC
			LIMIT $1
		) sample`

	var stats CitationStats
	err := scope.Conn.QueryRow(ctx, query, sampleSize).Scan(
		&stats.Total, &stats.WithCitations, &stats.WithURLCitations,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to compute citation stats: %w", err)
	}
	return &stats, nil
}

func marshalJSONArray[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}
