package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aurascan-ai/aurascan-engine/pkg/apperrors"
	"github.com/aurascan-ai/aurascan-engine/pkg/models"
	"github.com/aurascan-ai/aurascan-engine/pkg/repositories"
	"github.com/aurascan-ai/aurascan-engine/pkg/services"
)

// triggerScanRequest is the POST body for a scan trigger. The zero value is
// a plain daily trigger; test bypasses window gating, replace releases the
// daily idempotency key, and resumeJobId re-enters an interrupted job.
type triggerScanRequest struct {
	Test        bool    `json:"test"`
	Replace     bool    `json:"replace"`
	ResumeJobID *string `json:"resumeJobId,omitempty" validate:"omitempty,uuid"`
}

// triggerScanResponse is the envelope for a trigger outcome. A trigger the
// idempotency gate rejects is still a 200: success is false and error says
// why.
type triggerScanResponse struct {
	Success bool             `json:"success"`
	JobID   *uuid.UUID       `json:"jobId,omitempty"`
	Data    *triggerScanData `json:"data,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// triggerScanData carries the run counts of a synchronously executed scan.
type triggerScanData struct {
	SuccessfulRuns int `json:"successfulRuns"`
	TotalRuns      int `json:"totalRuns"`
}

// jobResponse is the externally visible view of a batch job. Status is the
// effective status: in_progress jobs with a stale heartbeat report as stuck.
type jobResponse struct {
	ID            uuid.UUID           `json:"id"`
	OrgID         uuid.UUID           `json:"orgId"`
	Status        models.JobStatus    `json:"status"`
	Progress      *models.JobProgress `json:"progress,omitempty"`
	StartedAt     *time.Time          `json:"startedAt,omitempty"`
	CompletedAt   *time.Time          `json:"completedAt,omitempty"`
	LastHeartbeat *time.Time          `json:"lastHeartbeat,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
}

// correctionRequest identifies a run by its natural key and carries the
// corrected extraction inputs. The score is recomputed server-side.
type correctionRequest struct {
	PromptID   string                  `json:"promptId" validate:"required,uuid"`
	ProviderID string                  `json:"providerId" validate:"required,uuid"`
	Extraction models.ExtractionResult `json:"extraction"`
}

// ScanHandler exposes the scan pipeline over HTTP: triggering daily scans,
// inspecting jobs, and the audited manual correction path.
type ScanHandler struct {
	scheduler   services.SchedulerService
	corrections services.CorrectionService
	jobs        repositories.JobRepository
	scopes      ScopeProvider
	staleAfter  time.Duration
	validate    *validator.Validate
	logger      *zap.Logger
}

// NewScanHandler creates a new scan handler.
func NewScanHandler(
	scheduler services.SchedulerService,
	corrections services.CorrectionService,
	jobs repositories.JobRepository,
	scopes ScopeProvider,
	staleAfter time.Duration,
	logger *zap.Logger,
) *ScanHandler {
	return &ScanHandler{
		scheduler:   scheduler,
		corrections: corrections,
		jobs:        jobs,
		scopes:      scopes,
		staleAfter:  staleAfter,
		validate:    validator.New(),
		logger:      logger,
	}
}

// RegisterRoutes registers the scan handler's routes on the given mux.
func (h *ScanHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orgs/{oid}/scans", h.Trigger)
	mux.HandleFunc("GET /api/orgs/{oid}/scans/jobs/{job_id}", h.GetJob)
	mux.HandleFunc("POST /api/orgs/{oid}/scans/jobs/{job_id}/corrections", h.Correct)
}

// Trigger handles POST /api/orgs/{oid}/scans
// Runs the scan synchronously and returns its summary. Duplicate triggers
// within the same daily window return 200 with accepted=false.
func (h *ScanHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.parseOrgID(w, r)
	if !ok {
		return
	}

	var req triggerScanRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
			return
		}
	}
	if err := h.validate.Struct(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	trigger := services.TriggerRequest{
		OrgID:   orgID,
		Test:    req.Test,
		Replace: req.Replace,
	}
	if req.ResumeJobID != nil {
		resumeID, err := uuid.Parse(*req.ResumeJobID)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_resume_job_id", "Invalid resume job ID format")
			return
		}
		trigger.ResumeJobID = &resumeID
	}

	orgCtx, done, err := h.scopes.WithOrgScope(r.Context(), orgID)
	if err != nil {
		h.logger.Error("Failed to acquire org scope", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to acquire database connection")
		return
	}
	defer done()

	result, err := h.scheduler.Trigger(orgCtx, trigger)
	if err != nil {
		h.writeTriggerError(w, orgID, err)
		return
	}

	resp := triggerScanResponse{Success: result.Accepted, Error: result.Reason}
	if result.JobID != uuid.Nil {
		jobID := result.JobID
		resp.JobID = &jobID
	}
	if result.Summary != nil {
		resp.Data = &triggerScanData{
			SuccessfulRuns: result.Summary.SuccessfulRuns,
			TotalRuns:      result.Summary.TotalRuns,
		}
	}
	if err := WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// writeTriggerError maps trigger-time failures to HTTP statuses.
func (h *ScanHandler) writeTriggerError(w http.ResponseWriter, orgID uuid.UUID, err error) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "not_found", "Org not found")
	case errors.Is(err, apperrors.ErrOutsideScanWindow):
		h.writeError(w, http.StatusConflict, "outside_scan_window", err.Error())
	case errors.Is(err, apperrors.ErrNoActivePrompts):
		h.writeError(w, http.StatusUnprocessableEntity, "no_active_prompts", "Org has no active prompts")
	case errors.Is(err, apperrors.ErrNoEnabledProviders):
		h.writeError(w, http.StatusUnprocessableEntity, "no_enabled_providers", "No enabled providers with credentials")
	case errors.Is(err, apperrors.ErrInvalidState):
		h.writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, apperrors.ErrConcurrencyConflict):
		h.writeError(w, http.StatusConflict, "concurrency_conflict", "Another trigger claimed the job first")
	default:
		h.logger.Error("Scan trigger failed",
			zap.String("org_id", orgID.String()), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Scan trigger failed")
	}
}

// GetJob handles GET /api/orgs/{oid}/scans/jobs/{job_id}
func (h *ScanHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.parseOrgID(w, r)
	if !ok {
		return
	}

	jobID, err := uuid.Parse(r.PathValue("job_id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_job_id", "Invalid job ID format")
		return
	}

	orgCtx, done, err := h.scopes.WithOrgScope(r.Context(), orgID)
	if err != nil {
		h.logger.Error("Failed to acquire org scope", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to acquire database connection")
		return
	}
	defer done()

	job, err := h.jobs.GetByID(orgCtx, jobID)
	if err != nil {
		h.logger.Error("Failed to get job",
			zap.String("job_id", jobID.String()), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to get job")
		return
	}
	if job == nil || job.OrgID != orgID {
		h.writeError(w, http.StatusNotFound, "not_found", "Job not found")
		return
	}

	response := jobResponse{
		ID:            job.ID,
		OrgID:         job.OrgID,
		Status:        job.EffectiveStatus(h.staleAfter, time.Now().UTC()),
		Progress:      job.Progress,
		StartedAt:     job.StartedAt,
		CompletedAt:   job.CompletedAt,
		LastHeartbeat: job.LastHeartbeat,
		CreatedAt:     job.CreatedAt,
	}
	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Correct handles POST /api/orgs/{oid}/scans/jobs/{job_id}/corrections
// Replaces a successful run's extraction artifacts and recomputes its score.
func (h *ScanHandler) Correct(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.parseOrgID(w, r)
	if !ok {
		return
	}

	jobID, err := uuid.Parse(r.PathValue("job_id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_job_id", "Invalid job ID format")
		return
	}

	var req correctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	promptID, _ := uuid.Parse(req.PromptID)
	providerID, _ := uuid.Parse(req.ProviderID)

	orgCtx, done, err := h.scopes.WithOrgScope(r.Context(), orgID)
	if err != nil {
		h.logger.Error("Failed to acquire org scope", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal_error", "Failed to acquire database connection")
		return
	}
	defer done()

	score, err := h.corrections.Correct(orgCtx, jobID, promptID, providerID, req.Extraction)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			h.writeError(w, http.StatusNotFound, "not_found", "Run not found")
		case errors.Is(err, apperrors.ErrInvalidState):
			h.writeError(w, http.StatusConflict, "invalid_state", "Only successful runs can be corrected")
		default:
			h.logger.Error("Correction failed",
				zap.String("job_id", jobID.String()), zap.Error(err))
			h.writeError(w, http.StatusInternalServerError, "internal_error", "Correction failed")
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, map[string]any{"score": score}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *ScanHandler) parseOrgID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	orgID, err := uuid.Parse(r.PathValue("oid"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_org_id", "Invalid org ID format")
		return uuid.Nil, false
	}
	return orgID, true
}

func (h *ScanHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
