package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aurascan-ai/aurascan-engine/pkg/apperrors"
	"github.com/aurascan-ai/aurascan-engine/pkg/models"
	"github.com/aurascan-ai/aurascan-engine/pkg/providers"
)

// scanFixture wires a scan service over in-memory mocks: one org, two
// prompts, two providers.
type scanFixture struct {
	org       *models.Org
	prompts   []*models.Prompt
	providers []*models.Provider
	jobs      *mockJobRepo
	runs      *mockRunRepo
	registry  *mockRegistry
	service   ScanService
}

func newScanFixture(t *testing.T) *scanFixture {
	t.Helper()

	org := &models.Org{
		ID:        uuid.New(),
		Name:      "Acme Inc",
		BrandName: "Acme",
		Tier:      models.TierPro,
	}
	prompts := []*models.Prompt{
		{ID: uuid.New(), OrgID: org.ID, Text: "best crm for startups", Active: true},
		{ID: uuid.New(), OrgID: org.ID, Text: "top marketing automation tools", Active: true},
	}
	provs := []*models.Provider{
		{ID: uuid.New(), Name: "openai", Enabled: true},
		{ID: uuid.New(), Name: "anthropic", Enabled: true},
	}

	f := &scanFixture{
		org:       org,
		prompts:   prompts,
		providers: provs,
		jobs:      newMockJobRepo(),
		runs:      newMockRunRepo(),
		registry: &mockRegistry{clients: map[string]providers.Client{
			"openai":    &providers.MockClient{NameValue: "openai"},
			"anthropic": &providers.MockClient{NameValue: "anthropic"},
		}},
	}
	f.service = NewScanService(
		f.jobs, f.runs, newMockOrgRepo(org),
		&mockPromptRepo{prompts: prompts},
		&mockProviderRepo{providers: provs},
		f.registry,
		ScanConfig{MaxConcurrent: 2, ProviderTimeout: 5 * time.Second, StaleAfter: 10 * time.Minute},
		zap.NewNop(),
	)
	return f
}

func (f *scanFixture) queuedJob() *models.BatchJob {
	return f.jobs.add(&models.BatchJob{
		OrgID:          f.org.ID,
		Status:         models.JobStatusQueued,
		IdempotencyKey: uuid.NewString(),
	})
}

// interruptedJob is an in_progress job whose worker died: its heartbeat is
// well past the staleness threshold, so a resume may claim it.
func (f *scanFixture) interruptedJob() *models.BatchJob {
	stale := time.Now().Add(-time.Hour)
	return f.jobs.add(&models.BatchJob{
		OrgID:          f.org.ID,
		Status:         models.JobStatusInProgress,
		IdempotencyKey: uuid.NewString(),
		LastHeartbeat:  &stale,
	})
}

func (f *scanFixture) client(name string) *providers.MockClient {
	return f.registry.clients[name].(*providers.MockClient)
}

func TestScanService_StartAllSucceed(t *testing.T) {
	f := newScanFixture(t)
	job := f.queuedJob()

	summary, err := f.service.Start(context.Background(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.TotalRuns)
	assert.Equal(t, 4, summary.SuccessfulRuns)
	assert.Equal(t, 4, f.runs.UpsertCalls)
	assert.Equal(t, 4, f.jobs.HeartbeatCalls, "heartbeat after every unit")

	final, _ := f.jobs.GetByID(context.Background(), job.ID)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
	require.NotNil(t, final.Progress)
	assert.Equal(t, 4, final.Progress.SuccessCount)
}

func TestScanService_PartialFailureIsolation(t *testing.T) {
	f := newScanFixture(t)
	job := f.queuedJob()

	// openai fails permanently; anthropic keeps working.
	f.client("openai").ExecuteFunc = func(ctx context.Context, prompt string) (*providers.Result, error) {
		return nil, providers.NewError(providers.ErrorKindAuth, "authentication failed", false, nil)
	}

	summary, err := f.service.Start(context.Background(), job.ID)
	require.NoError(t, err, "one provider failing never fails the batch")

	assert.Equal(t, 4, summary.TotalRuns)
	assert.Equal(t, 2, summary.SuccessfulRuns)

	final, _ := f.jobs.GetByID(context.Background(), job.ID)
	assert.Equal(t, models.JobStatusCompleted, final.Status)

	// Failed pairs are persisted as error runs so resume never replays
	// them blindly.
	openaiID := f.providers[0].ID
	for _, p := range f.prompts {
		pair := models.PairKey{PromptID: p.ID, ProviderID: openaiID}
		assert.Equal(t, models.RunStatusError, f.runs.statusOf(pair))
	}
}

func TestScanService_AllUnitsFailMarksJobFailed(t *testing.T) {
	f := newScanFixture(t)
	job := f.queuedJob()

	for _, name := range []string{"openai", "anthropic"} {
		f.client(name).ExecuteFunc = func(ctx context.Context, prompt string) (*providers.Result, error) {
			return nil, providers.NewError(providers.ErrorKindAuth, "authentication failed", false, nil)
		}
	}

	summary, err := f.service.Start(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.SuccessfulRuns)

	final, _ := f.jobs.GetByID(context.Background(), job.ID)
	assert.Equal(t, models.JobStatusFailed, final.Status)
}

func TestScanService_EmptyWorkSetCompletesTrivially(t *testing.T) {
	f := newScanFixture(t)
	for _, p := range f.prompts {
		p.Active = false
	}
	job := f.queuedJob()

	summary, err := f.service.Start(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalRuns)

	final, _ := f.jobs.GetByID(context.Background(), job.ID)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
}

func TestScanService_StartUnknownJob(t *testing.T) {
	f := newScanFixture(t)

	_, err := f.service.Start(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestScanService_StartLosesClaimRace(t *testing.T) {
	f := newScanFixture(t)
	job := f.jobs.add(&models.BatchJob{
		OrgID:          f.org.ID,
		Status:         models.JobStatusInProgress,
		IdempotencyKey: uuid.NewString(),
	})

	_, err := f.service.Start(context.Background(), job.ID)
	assert.ErrorIs(t, err, apperrors.ErrConcurrencyConflict)
}

func TestScanService_TierGatingExcludesProviders(t *testing.T) {
	f := newScanFixture(t)
	f.org.Tier = models.TierFree
	f.providers[1].AllowedTiers = []models.SubscriptionTier{models.TierPro}
	job := f.queuedJob()

	summary, err := f.service.Start(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalRuns, "only the ungated provider runs")
	assert.Zero(t, f.client("anthropic").CallCount())
}

func TestScanService_UnconfiguredProviderExcluded(t *testing.T) {
	f := newScanFixture(t)
	delete(f.registry.clients, "anthropic")
	job := f.queuedJob()

	summary, err := f.service.Start(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalRuns)
	assert.Equal(t, 2, summary.SuccessfulRuns)
}

func TestScanService_ResumeRunsOnlyRemainder(t *testing.T) {
	f := newScanFixture(t)
	job := f.interruptedJob()

	// Two of four pairs already succeeded before the interruption.
	donePairs := []models.PairKey{
		{PromptID: f.prompts[0].ID, ProviderID: f.providers[0].ID},
		{PromptID: f.prompts[0].ID, ProviderID: f.providers[1].ID},
	}
	f.runs.ListSuccessfulPairsFunc = func(ctx context.Context, jobID uuid.UUID) ([]models.PairKey, error) {
		return donePairs, nil
	}

	summary, err := f.service.Resume(context.Background(), job.ID)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.TotalRuns)
	assert.Equal(t, 4, summary.SuccessfulRuns, "prior successes count toward the total")
	assert.Equal(t, 2, f.runs.UpsertCalls, "only the remainder is replayed")

	final, _ := f.jobs.GetByID(context.Background(), job.ID)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
}

func TestScanService_ResumeCompletedJobRejected(t *testing.T) {
	f := newScanFixture(t)
	job := f.jobs.add(&models.BatchJob{
		OrgID:          f.org.ID,
		Status:         models.JobStatusCompleted,
		IdempotencyKey: uuid.NewString(),
	})

	_, err := f.service.Resume(context.Background(), job.ID)
	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
}

func TestScanService_ResumeUnknownJob(t *testing.T) {
	f := newScanFixture(t)

	_, err := f.service.Resume(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestScanService_ResumeFailedJob(t *testing.T) {
	f := newScanFixture(t)
	job := f.jobs.add(&models.BatchJob{
		OrgID:          f.org.ID,
		Status:         models.JobStatusFailed,
		IdempotencyKey: uuid.NewString(),
	})

	summary, err := f.service.Resume(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.SuccessfulRuns)

	final, _ := f.jobs.GetByID(context.Background(), job.ID)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
}

func TestScanService_ResumeLiveJobRejected(t *testing.T) {
	f := newScanFixture(t)
	fresh := time.Now()
	job := f.jobs.add(&models.BatchJob{
		OrgID:          f.org.ID,
		Status:         models.JobStatusInProgress,
		IdempotencyKey: uuid.NewString(),
		LastHeartbeat:  &fresh,
	})

	_, err := f.service.Resume(context.Background(), job.ID)
	assert.ErrorIs(t, err, apperrors.ErrConcurrencyConflict,
		"a job with a fresh heartbeat still has a live worker")
	assert.Zero(t, f.runs.UpsertCalls)
}

func TestScanService_ConcurrentResumeSingleWinner(t *testing.T) {
	f := newScanFixture(t)
	job := f.interruptedJob()

	release := make(chan struct{})
	started := make(chan struct{}, 4)
	for _, name := range []string{"openai", "anthropic"} {
		f.client(name).ExecuteFunc = func(ctx context.Context, prompt string) (*providers.Result, error) {
			started <- struct{}{}
			<-release
			return &providers.Result{Text: "mock response"}, nil
		}
	}

	firstDone := make(chan error, 1)
	go func() {
		_, err := f.service.Resume(context.Background(), job.ID)
		firstDone <- err
	}()
	<-started

	// The first resume holds the claim and is mid-flight; a second resume
	// must not take the job over and re-run the same pairs.
	_, err := f.service.Resume(context.Background(), job.ID)
	assert.ErrorIs(t, err, apperrors.ErrConcurrencyConflict)

	close(release)
	require.NoError(t, <-firstDone)
	assert.Equal(t, 4, f.runs.UpsertCalls, "each pair executed exactly once")
}

func TestScanService_TimedOutCallGetsRemainingAttempts(t *testing.T) {
	f := newScanFixture(t)
	f.prompts[1].Active = false
	delete(f.registry.clients, "anthropic")
	job := f.queuedJob()

	// Every attempt burns its whole per-call budget, then reports a
	// retryable network failure.
	f.client("openai").ExecuteFunc = func(ctx context.Context, prompt string) (*providers.Result, error) {
		<-ctx.Done()
		return nil, providers.NewError(providers.ErrorKindNetwork, "request timed out", true, ctx.Err())
	}

	svc := NewScanService(
		f.jobs, f.runs, newMockOrgRepo(f.org),
		&mockPromptRepo{prompts: f.prompts},
		&mockProviderRepo{providers: f.providers},
		f.registry,
		ScanConfig{MaxConcurrent: 1, ProviderTimeout: 50 * time.Millisecond, StaleAfter: 10 * time.Minute},
		zap.NewNop(),
	)

	_, err := svc.Start(context.Background(), job.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, f.client("openai").CallCount(), 2,
		"a timed-out attempt leaves budget for the next one")
}

func TestScanService_PersistenceFailureDoesNotAbortBatch(t *testing.T) {
	f := newScanFixture(t)
	job := f.queuedJob()

	failPair := models.PairKey{PromptID: f.prompts[0].ID, ProviderID: f.providers[0].ID}
	f.runs.UpsertFunc = func(ctx context.Context, orgID uuid.UUID, run *models.Run, extraction models.ExtractionResult, score *models.ScoreRecord) error {
		if run.PromptID == failPair.PromptID && run.ProviderID == failPair.ProviderID {
			return assert.AnError
		}
		return nil
	}

	summary, err := f.service.Start(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.SuccessfulRuns, "one persistence failure costs one unit, not the batch")

	final, _ := f.jobs.GetByID(context.Background(), job.ID)
	assert.Equal(t, models.JobStatusCompleted, final.Status)
}
