package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aurascan-ai/aurascan-engine/pkg/models"
)

func newUsageMux(usage *mockUsageRepo) *http.ServeMux {
	h := NewUsageHandler(usage, &fakeScopes{}, zap.NewNop())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

func TestUsage_ReturnsCounters(t *testing.T) {
	orgID := uuid.New()
	usage := &mockUsageRepo{
		GetFunc: func(ctx context.Context, id uuid.UUID) (*models.OrgUsage, error) {
			assert.Equal(t, orgID, id)
			return &models.OrgUsage{OrgID: orgID, TokensIn: 1200, TokensOut: 3400, RunCount: 8}, nil
		},
	}
	mux := newUsageMux(usage)

	req := httptest.NewRequest(http.MethodGet, "/api/orgs/"+orgID.String()+"/usage", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body models.OrgUsage
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, int64(1200), body.TokensIn)
	assert.Equal(t, int64(3400), body.TokensOut)
	assert.Equal(t, int64(8), body.RunCount)
}

func TestUsage_NeverScannedOrgReportsZeros(t *testing.T) {
	orgID := uuid.New()
	mux := newUsageMux(&mockUsageRepo{})

	req := httptest.NewRequest(http.MethodGet, "/api/orgs/"+orgID.String()+"/usage", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body models.OrgUsage
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, orgID, body.OrgID)
	assert.Zero(t, body.RunCount)
}

func TestUsage_InvalidOrgID(t *testing.T) {
	mux := newUsageMux(&mockUsageRepo{})

	req := httptest.NewRequest(http.MethodGet, "/api/orgs/nope/usage", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
