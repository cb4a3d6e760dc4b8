package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aurascan-ai/aurascan-engine/pkg/apperrors"
	"github.com/aurascan-ai/aurascan-engine/pkg/models"
	"github.com/aurascan-ai/aurascan-engine/pkg/providers"
	"github.com/aurascan-ai/aurascan-engine/pkg/repositories"
)

func apperrConflict(key string) error {
	return fmt.Errorf("idempotency key %q already taken: %w", key, apperrors.ErrConflict)
}

func apperrConcurrency(id uuid.UUID) error {
	return fmt.Errorf("job %s: %w", id, apperrors.ErrConcurrencyConflict)
}

func apperrNotFound(id uuid.UUID) error {
	return fmt.Errorf("job %s: %w", id, apperrors.ErrNotFound)
}

func apperrNotConfigured(name string) error {
	return fmt.Errorf("provider %q is not configured", name)
}

// mockJobRepo is a stateful in-memory JobRepository. Individual methods can
// be overridden with func fields.
type mockJobRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*models.BatchJob

	CreateFunc         func(ctx context.Context, job *models.BatchJob) error
	TransitionIfFunc   func(ctx context.Context, id uuid.UUID, expected, next models.JobStatus) error
	ClaimForResumeFunc func(ctx context.Context, id uuid.UUID, staleAfter time.Duration) error
	ListStaleFunc      func(ctx context.Context, staleAfter time.Duration) ([]*models.BatchJob, error)

	HeartbeatCalls  int
	TransitionCalls int
	ReleasedKeys    []uuid.UUID
}

func newMockJobRepo() *mockJobRepo {
	return &mockJobRepo{jobs: make(map[uuid.UUID]*models.BatchJob)}
}

func (m *mockJobRepo) add(job *models.BatchJob) *models.BatchJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	m.jobs[job.ID] = job
	return job
}

// list returns all stored jobs.
func (m *mockJobRepo) list() []*models.BatchJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	jobs := make([]*models.BatchJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	return jobs
}

func (m *mockJobRepo) Create(ctx context.Context, job *models.BatchJob) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, job)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	for _, existing := range m.jobs {
		if existing.IdempotencyKey == job.IdempotencyKey {
			return apperrConflict(job.IdempotencyKey)
		}
	}
	if job.Status == "" {
		job.Status = models.JobStatusQueued
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *mockJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.BatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, nil
	}
	copied := *job
	return &copied, nil
}

func (m *mockJobRepo) GetByKey(ctx context.Context, key string) (*models.BatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, job := range m.jobs {
		if job.IdempotencyKey == key {
			copied := *job
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *mockJobRepo) TransitionIf(ctx context.Context, id uuid.UUID, expected, next models.JobStatus) error {
	if m.TransitionIfFunc != nil {
		return m.TransitionIfFunc(ctx, id, expected, next)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TransitionCalls++
	job, ok := m.jobs[id]
	if !ok || job.Status != expected {
		return apperrConcurrency(id)
	}
	job.Status = next
	now := time.Now()
	if next == models.JobStatusInProgress {
		if job.StartedAt == nil {
			job.StartedAt = &now
		}
		job.LastHeartbeat = &now
	}
	if next.IsTerminal() {
		job.CompletedAt = &now
	}
	return nil
}

func (m *mockJobRepo) ClaimForResume(ctx context.Context, id uuid.UUID, staleAfter time.Duration) error {
	if m.ClaimForResumeFunc != nil {
		return m.ClaimForResumeFunc(ctx, id, staleAfter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return apperrConcurrency(id)
	}
	now := time.Now()
	claimable := job.Status == models.JobStatusQueued || job.Status == models.JobStatusFailed
	if job.Status == models.JobStatusInProgress {
		hb := job.CreatedAt
		if job.LastHeartbeat != nil {
			hb = *job.LastHeartbeat
		}
		claimable = now.Sub(hb) >= staleAfter
	}
	if !claimable {
		return apperrConcurrency(id)
	}
	job.Status = models.JobStatusInProgress
	if job.StartedAt == nil {
		job.StartedAt = &now
	}
	job.LastHeartbeat = &now
	return nil
}

func (m *mockJobRepo) UpdateHeartbeat(ctx context.Context, id uuid.UUID, progress *models.JobProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.HeartbeatCalls++
	job, ok := m.jobs[id]
	if !ok {
		return apperrNotFound(id)
	}
	now := time.Now()
	job.LastHeartbeat = &now
	job.Progress = progress
	return nil
}

func (m *mockJobRepo) ReleaseKey(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReleasedKeys = append(m.ReleasedKeys, id)
	job, ok := m.jobs[id]
	if !ok {
		return apperrNotFound(id)
	}
	job.IdempotencyKey = job.IdempotencyKey + "-replaced-" + id.String()
	return nil
}

func (m *mockJobRepo) ListStale(ctx context.Context, staleAfter time.Duration) ([]*models.BatchJob, error) {
	if m.ListStaleFunc != nil {
		return m.ListStaleFunc(ctx, staleAfter)
	}
	return nil, nil
}

var _ repositories.JobRepository = (*mockJobRepo)(nil)

// mockRunRepo records upserts in memory.
type mockRunRepo struct {
	mu   sync.Mutex
	runs map[models.PairKey]*models.Run

	UpsertFunc              func(ctx context.Context, orgID uuid.UUID, run *models.Run, extraction models.ExtractionResult, score *models.ScoreRecord) error
	ListSuccessfulPairsFunc func(ctx context.Context, jobID uuid.UUID) ([]models.PairKey, error)
	GetByPairFunc           func(ctx context.Context, jobID, promptID, providerID uuid.UUID) (*models.Run, error)
	UpdateArtifactsFunc     func(ctx context.Context, runID uuid.UUID, extraction models.ExtractionResult, score models.ScoreRecord) error
	CitationStatsFunc       func(ctx context.Context, sampleSize int) (*repositories.CitationStats, error)

	UpsertCalls          int
	UpdateArtifactsCalls int
}

func newMockRunRepo() *mockRunRepo {
	return &mockRunRepo{runs: make(map[models.PairKey]*models.Run)}
}

func (m *mockRunRepo) Upsert(ctx context.Context, orgID uuid.UUID, run *models.Run, extraction models.ExtractionResult, score *models.ScoreRecord) error {
	m.mu.Lock()
	m.UpsertCalls++
	m.mu.Unlock()
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, orgID, run, extraction, score)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[models.PairKey{PromptID: run.PromptID, ProviderID: run.ProviderID}] = run
	return nil
}

func (m *mockRunRepo) ListSuccessfulPairs(ctx context.Context, jobID uuid.UUID) ([]models.PairKey, error) {
	if m.ListSuccessfulPairsFunc != nil {
		return m.ListSuccessfulPairsFunc(ctx, jobID)
	}
	return nil, nil
}

func (m *mockRunRepo) GetByPair(ctx context.Context, jobID, promptID, providerID uuid.UUID) (*models.Run, error) {
	if m.GetByPairFunc != nil {
		return m.GetByPairFunc(ctx, jobID, promptID, providerID)
	}
	return nil, nil
}

func (m *mockRunRepo) UpdateArtifacts(ctx context.Context, runID uuid.UUID, extraction models.ExtractionResult, score models.ScoreRecord) error {
	m.mu.Lock()
	m.UpdateArtifactsCalls++
	m.mu.Unlock()
	if m.UpdateArtifactsFunc != nil {
		return m.UpdateArtifactsFunc(ctx, runID, extraction, score)
	}
	return nil
}

func (m *mockRunRepo) CitationStatsRecent(ctx context.Context, sampleSize int) (*repositories.CitationStats, error) {
	if m.CitationStatsFunc != nil {
		return m.CitationStatsFunc(ctx, sampleSize)
	}
	return &repositories.CitationStats{}, nil
}

// statusOf returns the stored status for a pair, empty when absent.
func (m *mockRunRepo) statusOf(pair models.PairKey) models.RunStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[pair]
	if !ok {
		return ""
	}
	return run.Status
}

var _ repositories.RunRepository = (*mockRunRepo)(nil)

// mockOrgRepo serves a fixed set of orgs.
type mockOrgRepo struct {
	orgs map[uuid.UUID]*models.Org
}

func newMockOrgRepo(orgs ...*models.Org) *mockOrgRepo {
	m := &mockOrgRepo{orgs: make(map[uuid.UUID]*models.Org)}
	for _, org := range orgs {
		m.orgs[org.ID] = org
	}
	return m
}

func (m *mockOrgRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Org, error) {
	return m.orgs[id], nil
}

func (m *mockOrgRepo) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(m.orgs))
	for id := range m.orgs {
		ids = append(ids, id)
	}
	return ids, nil
}

var _ repositories.OrgRepository = (*mockOrgRepo)(nil)

// mockPromptRepo serves a fixed prompt list.
type mockPromptRepo struct {
	prompts []*models.Prompt
}

func (m *mockPromptRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Prompt, error) {
	for _, p := range m.prompts {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, nil
}

func (m *mockPromptRepo) ListActive(ctx context.Context, orgID uuid.UUID) ([]*models.Prompt, error) {
	var active []*models.Prompt
	for _, p := range m.prompts {
		if p.OrgID == orgID && p.Active {
			active = append(active, p)
		}
	}
	return active, nil
}

var _ repositories.PromptRepository = (*mockPromptRepo)(nil)

// mockProviderRepo serves a fixed provider list.
type mockProviderRepo struct {
	providers []*models.Provider
}

func (m *mockProviderRepo) ListEnabled(ctx context.Context) ([]*models.Provider, error) {
	var enabled []*models.Provider
	for _, p := range m.providers {
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}
	return enabled, nil
}

var _ repositories.ProviderRepository = (*mockProviderRepo)(nil)

// passScopes is a pass-through ScopeProvider for loop tests.
type passScopes struct{}

func (passScopes) WithOrgScope(ctx context.Context, orgID uuid.UUID) (context.Context, func(), error) {
	return ctx, func() {}, nil
}

func (passScopes) WithGlobalScope(ctx context.Context) (context.Context, func(), error) {
	return ctx, func() {}, nil
}

var _ ScopeProvider = passScopes{}

// mockRegistry maps provider names to mock clients.
type mockRegistry struct {
	clients map[string]providers.Client
}

func (m *mockRegistry) Get(name string) (providers.Client, error) {
	client, ok := m.clients[name]
	if !ok {
		return nil, apperrNotConfigured(name)
	}
	return client, nil
}

func (m *mockRegistry) Has(name string) bool {
	_, ok := m.clients[name]
	return ok
}

var _ ClientRegistry = (*mockRegistry)(nil)
