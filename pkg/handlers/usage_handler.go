package handlers

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aurascan-ai/aurascan-engine/pkg/models"
	"github.com/aurascan-ai/aurascan-engine/pkg/repositories"
)

// UsageHandler exposes per-org usage counters for the billing collaborator.
type UsageHandler struct {
	usage  repositories.UsageRepository
	scopes ScopeProvider
	logger *zap.Logger
}

// NewUsageHandler creates a new usage handler.
func NewUsageHandler(usage repositories.UsageRepository, scopes ScopeProvider, logger *zap.Logger) *UsageHandler {
	return &UsageHandler{usage: usage, scopes: scopes, logger: logger}
}

// RegisterRoutes registers the usage handler's routes on the given mux.
func (h *UsageHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/orgs/{oid}/usage", h.Get)
}

// Get handles GET /api/orgs/{oid}/usage
// Orgs that have never run a scan report zero counters rather than 404.
func (h *UsageHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, err := uuid.Parse(r.PathValue("oid"))
	if err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_org_id", "Invalid org ID format"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	orgCtx, done, err := h.scopes.WithOrgScope(r.Context(), orgID)
	if err != nil {
		h.logger.Error("Failed to acquire org scope", zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to acquire database connection"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	defer done()

	usage, err := h.usage.Get(orgCtx, orgID)
	if err != nil {
		h.logger.Error("Failed to get usage",
			zap.String("org_id", orgID.String()), zap.Error(err))
		if err := ErrorResponse(w, http.StatusInternalServerError, "internal_error", "Failed to get usage"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if usage == nil {
		usage = &models.OrgUsage{OrgID: orgID}
	}

	if err := WriteJSON(w, http.StatusOK, usage); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
