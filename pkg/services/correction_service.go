package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aurascan-ai/aurascan-engine/pkg/apperrors"
	"github.com/aurascan-ai/aurascan-engine/pkg/models"
	"github.com/aurascan-ai/aurascan-engine/pkg/repositories"
	"github.com/aurascan-ai/aurascan-engine/pkg/scoring"
)

// CorrectionService is the audited manual correction path. Operators submit
// corrected extraction inputs; the score is always recomputed from them,
// never hand-entered.
type CorrectionService interface {
	Correct(ctx context.Context, jobID, promptID, providerID uuid.UUID, corrected models.ExtractionResult) (*models.ScoreRecord, error)
}

type correctionService struct {
	runs   repositories.RunRepository
	logger *zap.Logger
}

// NewCorrectionService creates a CorrectionService.
func NewCorrectionService(runs repositories.RunRepository, logger *zap.Logger) CorrectionService {
	return &correctionService{
		runs:   runs,
		logger: logger.Named("correction"),
	}
}

var _ CorrectionService = (*correctionService)(nil)

func (s *correctionService) Correct(ctx context.Context, jobID, promptID, providerID uuid.UUID, corrected models.ExtractionResult) (*models.ScoreRecord, error) {
	run, err := s.runs.GetByPair(ctx, jobID, promptID, providerID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("run for job %s: %w", jobID, apperrors.ErrNotFound)
	}
	if run.Status != models.RunStatusSuccess {
		return nil, fmt.Errorf("cannot correct a %s run: %w", run.Status, apperrors.ErrInvalidState)
	}

	score := scoring.Score(corrected)
	if err := s.runs.UpdateArtifacts(ctx, run.ID, corrected, score); err != nil {
		return nil, err
	}

	// Audit trail for every manual correction.
	s.logger.Info("Run artifacts corrected",
		zap.String("run_id", run.ID.String()),
		zap.String("job_id", jobID.String()),
		zap.String("prompt_id", promptID.String()),
		zap.String("provider_id", providerID.String()),
		zap.Float64("recomputed_score", score.Score))

	return &score, nil
}
