package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aurascan-ai/aurascan-engine/pkg/apperrors"
	"github.com/aurascan-ai/aurascan-engine/pkg/models"
	"github.com/aurascan-ai/aurascan-engine/pkg/repositories"
)

// TriggerRequest asks for a daily scan. Test triggers bypass the window
// check but still respect the idempotency key unless Replace is set.
type TriggerRequest struct {
	OrgID       uuid.UUID
	Test        bool
	Replace     bool
	ResumeJobID *uuid.UUID
}

// TriggerResult is the synchronous outcome of a trigger.
type TriggerResult struct {
	JobID    uuid.UUID
	Accepted bool
	Reason   string
	Summary  *ScanSummary
}

// SchedulerService gates when an org's daily scan may start: one job per org
// per daily window, enforced by the idempotency key.
type SchedulerService interface {
	Trigger(ctx context.Context, req TriggerRequest) (*TriggerResult, error)
}

// SchedulerConfig tunes window gating.
type SchedulerConfig struct {
	// WindowHourUTC is the reference hour of the daily window. Triggers
	// before it belong to the previous day's window.
	WindowHourUTC int
}

type schedulerService struct {
	jobs      repositories.JobRepository
	orgs      repositories.OrgRepository
	prompts   repositories.PromptRepository
	providers repositories.ProviderRepository
	registry  ClientRegistry
	scans     ScanService
	cfg       SchedulerConfig
	now       func() time.Time
	logger    *zap.Logger
}

// NewSchedulerService creates a SchedulerService.
func NewSchedulerService(
	jobs repositories.JobRepository,
	orgs repositories.OrgRepository,
	prompts repositories.PromptRepository,
	providerRepo repositories.ProviderRepository,
	registry ClientRegistry,
	scans ScanService,
	cfg SchedulerConfig,
	logger *zap.Logger,
) SchedulerService {
	return &schedulerService{
		jobs:      jobs,
		orgs:      orgs,
		prompts:   prompts,
		providers: providerRepo,
		registry:  registry,
		scans:     scans,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger.Named("scheduler"),
	}
}

var _ SchedulerService = (*schedulerService)(nil)

func (s *schedulerService) Trigger(ctx context.Context, req TriggerRequest) (*TriggerResult, error) {
	org, err := s.orgs.GetByID(ctx, req.OrgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, fmt.Errorf("org %s: %w", req.OrgID, apperrors.ErrNotFound)
	}

	// Trigger-time failures are reported synchronously and never create a
	// job.
	if err := s.checkRunnable(ctx, org); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if !req.Test && now.Hour() < s.cfg.WindowHourUTC {
		return nil, fmt.Errorf("window opens at %02d:00 UTC: %w",
			s.cfg.WindowHourUTC, apperrors.ErrOutsideScanWindow)
	}

	key := models.IdempotencyKeyFor(org.ID, windowDate(now, s.cfg.WindowHourUTC))

	existing, err := s.jobs.GetByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.handleExisting(ctx, req, existing)
	}

	return s.createAndRun(ctx, org.ID, key)
}

// handleExisting resolves a trigger whose idempotency key is already held.
func (s *schedulerService) handleExisting(ctx context.Context, req TriggerRequest, existing *models.BatchJob) (*TriggerResult, error) {
	// An explicit resume of the key-holding job delegates to the
	// controller regardless of replace.
	if req.ResumeJobID != nil && *req.ResumeJobID == existing.ID {
		summary, err := s.scans.Resume(ctx, existing.ID)
		if err != nil {
			return nil, err
		}
		return &TriggerResult{JobID: existing.ID, Accepted: true, Summary: summary}, nil
	}

	if !req.Replace {
		reason := "already run today"
		if existing.Status.IsActive() {
			reason = "scan already in progress today"
		}
		return &TriggerResult{JobID: existing.ID, Accepted: false, Reason: reason}, nil
	}

	// Replace: release the prior job's key and start over. Active jobs are
	// not torn down; the replacement simply takes over the daily slot.
	if err := s.jobs.ReleaseKey(ctx, existing.ID); err != nil {
		return nil, err
	}
	s.logger.Info("Replaced prior daily scan",
		zap.String("prior_job_id", existing.ID.String()),
		zap.String("org_id", existing.OrgID.String()))

	return s.createAndRun(ctx, existing.OrgID, existing.IdempotencyKey)
}

func (s *schedulerService) createAndRun(ctx context.Context, orgID uuid.UUID, key string) (*TriggerResult, error) {
	job := &models.BatchJob{
		OrgID:          orgID,
		Status:         models.JobStatusQueued,
		IdempotencyKey: key,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		// A concurrent trigger won the key race.
		if errors.Is(err, apperrors.ErrConflict) {
			return &TriggerResult{Accepted: false, Reason: "concurrent trigger won"}, nil
		}
		return nil, err
	}

	summary, err := s.scans.Start(ctx, job.ID)
	if err != nil {
		if errors.Is(err, apperrors.ErrConcurrencyConflict) {
			return &TriggerResult{JobID: job.ID, Accepted: false, Reason: "concurrent trigger won"}, nil
		}
		return nil, err
	}

	return &TriggerResult{JobID: job.ID, Accepted: true, Summary: summary}, nil
}

// checkRunnable verifies the org has something to scan with.
func (s *schedulerService) checkRunnable(ctx context.Context, org *models.Org) error {
	prompts, err := s.prompts.ListActive(ctx, org.ID)
	if err != nil {
		return err
	}
	if len(prompts) == 0 {
		return fmt.Errorf("org %s: %w", org.ID, apperrors.ErrNoActivePrompts)
	}

	enabled, err := s.providers.ListEnabled(ctx)
	if err != nil {
		return err
	}
	for _, p := range enabled {
		if p.AllowsTier(org.Tier) && s.registry.Has(p.Name) {
			return nil
		}
	}
	return fmt.Errorf("org %s: %w", org.ID, apperrors.ErrNoEnabledProviders)
}

// windowDate maps a moment to its daily window date: times before the
// window hour belong to the previous day.
func windowDate(now time.Time, windowHourUTC int) time.Time {
	now = now.UTC()
	if now.Hour() < windowHourUTC {
		now = now.AddDate(0, 0, -1)
	}
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
