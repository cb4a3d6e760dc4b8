package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aurascan-ai/aurascan-engine/pkg/apperrors"
	"github.com/aurascan-ai/aurascan-engine/pkg/extraction"
	"github.com/aurascan-ai/aurascan-engine/pkg/logging"
	"github.com/aurascan-ai/aurascan-engine/pkg/models"
	"github.com/aurascan-ai/aurascan-engine/pkg/providers"
	"github.com/aurascan-ai/aurascan-engine/pkg/repositories"
	"github.com/aurascan-ai/aurascan-engine/pkg/retry"
	"github.com/aurascan-ai/aurascan-engine/pkg/scoring"
)

// ClientRegistry is the provider client lookup the scan service fans out
// through. *providers.Registry satisfies it.
type ClientRegistry interface {
	Get(name string) (providers.Client, error)
	Has(name string) bool
}

// ScanSummary aggregates one scan execution for the trigger response.
type ScanSummary struct {
	JobID          uuid.UUID `json:"jobId"`
	TotalRuns      int       `json:"totalRuns"`
	SuccessfulRuns int       `json:"successfulRuns"`
}

// ScanService owns the batch job lifecycle: claiming a queued job, fanning
// the work-set out across providers, heartbeating after every unit, and
// completing the job. The only caller-visible states are the stored job
// statuses; stuck is derived by the health monitor.
type ScanService interface {
	// Start claims a queued job and executes its full work-set.
	Start(ctx context.Context, jobID uuid.UUID) (*ScanSummary, error)

	// Resume re-enters an interrupted job, replaying only pairs without a
	// successful run. Fails with ErrNotFound for unknown jobs,
	// ErrInvalidState for completed ones, and ErrConcurrencyConflict for
	// in_progress jobs whose heartbeat is still fresh.
	Resume(ctx context.Context, jobID uuid.UUID) (*ScanSummary, error)
}

// ScanConfig tunes the fan-out.
type ScanConfig struct {
	MaxConcurrent   int
	ProviderTimeout time.Duration

	// StaleAfter is how old an in_progress job's heartbeat must be before
	// a resume may take the job over from its current worker.
	StaleAfter time.Duration
}

type scanService struct {
	jobs      repositories.JobRepository
	runs      repositories.RunRepository
	orgs      repositories.OrgRepository
	prompts   repositories.PromptRepository
	providers repositories.ProviderRepository
	registry  ClientRegistry
	pool      *providers.WorkerPool
	cfg       ScanConfig
	logger    *zap.Logger
}

// NewScanService creates a ScanService.
func NewScanService(
	jobs repositories.JobRepository,
	runs repositories.RunRepository,
	orgs repositories.OrgRepository,
	prompts repositories.PromptRepository,
	providerRepo repositories.ProviderRepository,
	registry ClientRegistry,
	cfg ScanConfig,
	logger *zap.Logger,
) ScanService {
	return &scanService{
		jobs:      jobs,
		runs:      runs,
		orgs:      orgs,
		prompts:   prompts,
		providers: providerRepo,
		registry:  registry,
		pool:      providers.NewWorkerPool(providers.WorkerPoolConfig{MaxConcurrent: cfg.MaxConcurrent}, logger),
		cfg:       cfg,
		logger:    logger.Named("scan-service"),
	}
}

var _ ScanService = (*scanService)(nil)

func (s *scanService) Start(ctx context.Context, jobID uuid.UUID) (*ScanSummary, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %s: %w", jobID, apperrors.ErrNotFound)
	}

	// Optimistic claim: exactly one concurrent caller wins this transition.
	if err := s.jobs.TransitionIf(ctx, job.ID, models.JobStatusQueued, models.JobStatusInProgress); err != nil {
		return nil, err
	}

	return s.execute(ctx, job, false)
}

func (s *scanService) Resume(ctx context.Context, jobID uuid.UUID) (*ScanSummary, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %s: %w", jobID, apperrors.ErrNotFound)
	}
	if job.Status == models.JobStatusCompleted {
		return nil, fmt.Errorf("job %s already completed: %w", jobID, apperrors.ErrInvalidState)
	}

	// The claim only succeeds for failed jobs and for in_progress jobs
	// whose heartbeat has gone stale. A live job keeps its worker, and the
	// fresh heartbeat stamped by the claim means concurrent resumes cannot
	// both win and double-run the same pairs.
	if err := s.jobs.ClaimForResume(ctx, job.ID, s.cfg.StaleAfter); err != nil {
		return nil, err
	}

	return s.execute(ctx, job, true)
}

// unitOutcome is the per-pair result collected from the worker pool.
type unitOutcome struct {
	pair    models.PairKey
	success bool
}

func (s *scanService) execute(ctx context.Context, job *models.BatchJob, resume bool) (*ScanSummary, error) {
	org, err := s.orgs.GetByID(ctx, job.OrgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, fmt.Errorf("org %s: %w", job.OrgID, apperrors.ErrNotFound)
	}

	workSet, total, err := s.buildWorkSet(ctx, job, org, resume)
	if err != nil {
		return nil, err
	}

	// priorSuccesses is how many pairs a resume already has successful
	// runs for; zero on a fresh start.
	priorSuccesses := total - len(workSet)

	// Empty work-set completes trivially: everything already succeeded, or
	// there was nothing to do.
	if len(workSet) == 0 {
		if err := s.jobs.TransitionIf(ctx, job.ID, models.JobStatusInProgress, models.JobStatusCompleted); err != nil {
			return nil, err
		}
		return &ScanSummary{JobID: job.ID, TotalRuns: total, SuccessfulRuns: priorSuccesses}, nil
	}

	gz := extraction.ForOrg(org)

	// dispatchCtx only gates dispatch of queued units. Provider calls run
	// on their own timeout context so an external cancellation lets
	// in-flight calls finish.
	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	defer stopDispatch()

	items := make([]providers.WorkItem[unitOutcome], 0, len(workSet))
	for _, unit := range workSet {
		unit := unit
		items = append(items, providers.WorkItem[unitOutcome]{
			ID: unit.pair.String(),
			Execute: func(poolCtx context.Context) (unitOutcome, error) {
				return s.executeUnit(context.WithoutCancel(poolCtx), job, org, gz, unit)
			},
		})
	}

	progress := &models.JobProgress{TotalPairs: total, SuccessCount: priorSuccesses}
	if resume && job.Progress != nil {
		progress.CompletedPairs = job.Progress.CompletedPairs
		progress.ErrorCount = job.Progress.ErrorCount
	}

	externallyFailed := false
	results := providers.ProcessWithCollector(dispatchCtx, s.pool, items, func(result providers.WorkResult[unitOutcome]) {
		if result.Err != nil {
			// Dispatch was cancelled before the unit started. The pair
			// stays in the work-set for a future resume.
			return
		}

		progress.CompletedPairs = append(progress.CompletedPairs, result.Result.pair)
		if result.Result.success {
			progress.SuccessCount++
		} else {
			progress.ErrorCount++
		}

		// Heartbeat after every unit. This is what distinguishes slow
		// from dead for the health monitor and resume.
		if err := s.jobs.UpdateHeartbeat(ctx, job.ID, progress); err != nil {
			s.logger.Warn("Failed to update heartbeat",
				zap.String("job_id", job.ID.String()), zap.Error(err))
		}

		// An operator can fail the job externally; stop dispatching new
		// units but let in-flight calls finish.
		if !externallyFailed {
			current, err := s.jobs.GetByID(ctx, job.ID)
			if err == nil && current != nil && current.Status == models.JobStatusFailed {
				externallyFailed = true
				stopDispatch()
				s.logger.Warn("Job failed externally, stopping dispatch",
					zap.String("job_id", job.ID.String()))
			}
		}
	})

	summary := &ScanSummary{JobID: job.ID, TotalRuns: total}
	attempted := 0
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		attempted++
		if r.Result.success {
			summary.SuccessfulRuns++
		}
	}
	summary.SuccessfulRuns += priorSuccesses

	if externallyFailed {
		return summary, fmt.Errorf("job %s: %w", job.ID, apperrors.ErrInvalidState)
	}

	// Completed if anything succeeded (including prior successes on a
	// resume); failed only when a non-empty work-set produced zero
	// successes.
	final := models.JobStatusCompleted
	if summary.SuccessfulRuns == 0 && attempted > 0 {
		final = models.JobStatusFailed
	}
	if err := s.jobs.TransitionIf(ctx, job.ID, models.JobStatusInProgress, final); err != nil {
		return summary, err
	}

	s.logger.Info("Scan finished",
		zap.String("job_id", job.ID.String()),
		zap.String("status", string(final)),
		zap.Int("total_runs", summary.TotalRuns),
		zap.Int("successful_runs", summary.SuccessfulRuns))

	return summary, nil
}

// workUnit is one prompt×provider pair with everything needed to execute it.
type workUnit struct {
	pair     models.PairKey
	prompt   *models.Prompt
	provider *models.Provider
}

// buildWorkSet crosses active prompts with enabled, tier-allowed, configured
// providers. On resume, pairs that already have a successful run are
// subtracted; total is always the size of the full cross product.
func (s *scanService) buildWorkSet(ctx context.Context, job *models.BatchJob, org *models.Org, resume bool) ([]workUnit, int, error) {
	prompts, err := s.prompts.ListActive(ctx, org.ID)
	if err != nil {
		return nil, 0, err
	}

	allProviders, err := s.providers.ListEnabled(ctx)
	if err != nil {
		return nil, 0, err
	}

	var eligible []*models.Provider
	for _, p := range allProviders {
		if !p.AllowsTier(org.Tier) {
			continue
		}
		if !s.registry.Has(p.Name) {
			s.logger.Warn("Provider enabled but has no credentials",
				zap.String("provider", p.Name))
			continue
		}
		eligible = append(eligible, p)
	}

	done := make(map[models.PairKey]bool)
	if resume {
		pairs, err := s.runs.ListSuccessfulPairs(ctx, job.ID)
		if err != nil {
			return nil, 0, err
		}
		for _, pair := range pairs {
			done[pair] = true
		}
	}

	total := len(prompts) * len(eligible)
	var workSet []workUnit
	for _, prompt := range prompts {
		for _, provider := range eligible {
			pair := models.PairKey{PromptID: prompt.ID, ProviderID: provider.ID}
			if done[pair] {
				continue
			}
			workSet = append(workSet, workUnit{pair: pair, prompt: prompt, provider: provider})
		}
	}
	return workSet, total, nil
}

// executeUnit runs one prompt against one provider: call, extract, score,
// persist. A provider failure is persisted as an error run so the pair is
// marked attempted; it never aborts sibling units.
func (s *scanService) executeUnit(ctx context.Context, job *models.BatchJob, org *models.Org, gz *extraction.Gazetteer, unit workUnit) (unitOutcome, error) {
	client, err := s.registry.Get(unit.provider.Name)
	if err != nil {
		return s.persistError(ctx, job, org, unit, providers.NewError(providers.ErrorKindAuth, "provider not configured", false, err))
	}

	// The timeout applies per attempt so a timed-out call still gets its
	// remaining retries; only the unit context bounds the whole loop.
	result, err := retry.DoWithResult(ctx, retry.ProviderConfig(), func() (*providers.Result, error) {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
		defer cancel()
		return client.Execute(callCtx, unit.prompt.Text)
	})
	if err != nil {
		s.logger.Warn("Provider call failed",
			zap.String("job_id", job.ID.String()),
			zap.String("provider", unit.provider.Name),
			zap.String("prompt", logging.SanitizePrompt(unit.prompt.Text)),
			zap.String("error", logging.SanitizeError(err)))
		return s.persistError(ctx, job, org, unit, err)
	}

	extracted := extraction.Extract(result.Text, gz)
	score := scoring.Score(extracted)

	run := &models.Run{
		BatchJobID: job.ID,
		PromptID:   unit.pair.PromptID,
		ProviderID: unit.pair.ProviderID,
		Status:     models.RunStatusSuccess,
		TokensIn:   result.TokensIn,
		TokensOut:  result.TokensOut,
	}
	if err := s.persistRun(ctx, org.ID, run, extracted, &score); err != nil {
		s.logger.Error("Failed to persist run",
			zap.String("job_id", job.ID.String()),
			zap.String("pair", unit.pair.String()),
			zap.Error(err))
		return unitOutcome{pair: unit.pair, success: false}, nil
	}

	return unitOutcome{pair: unit.pair, success: true}, nil
}

// persistError records a failed unit. The error run marks the pair as
// attempted, which prevents infinite resume loops on permanently fatal
// providers.
func (s *scanService) persistError(ctx context.Context, job *models.BatchJob, org *models.Org, unit workUnit, cause error) (unitOutcome, error) {
	kind := string(providers.KindOf(cause))
	run := &models.Run{
		BatchJobID: job.ID,
		PromptID:   unit.pair.PromptID,
		ProviderID: unit.pair.ProviderID,
		Status:     models.RunStatusError,
		ErrorKind:  &kind,
	}
	if err := s.persistRun(ctx, org.ID, run, models.ExtractionResult{}, nil); err != nil {
		s.logger.Error("Failed to persist error run",
			zap.String("job_id", job.ID.String()),
			zap.String("pair", unit.pair.String()),
			zap.Error(err))
	}
	return unitOutcome{pair: unit.pair, success: false}, nil
}

// persistRun writes through the run repository, retrying once on transient
// persistence failures.
func (s *scanService) persistRun(ctx context.Context, orgID uuid.UUID, run *models.Run, extracted models.ExtractionResult, score *models.ScoreRecord) error {
	return retry.Do(ctx, &retry.Config{
		MaxRetries:   1,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}, func() error {
		return s.runs.Upsert(ctx, orgID, run, extracted, score)
	})
}
