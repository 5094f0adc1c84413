package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-insights/internal/api/handlers"
	"github.com/irfndi/celebrum-insights/internal/metrics"
	"github.com/irfndi/celebrum-insights/internal/middleware"
	"github.com/irfndi/celebrum-insights/internal/models"
	"github.com/irfndi/celebrum-insights/internal/services"
)

type fakeInsights struct{}

func (fakeInsights) Dashboard(_ context.Context, userID string, window models.TimeWindow, _ services.GenerateOptions) (*services.Dashboard, error) {
	return &services.Dashboard{UserID: userID, View: &models.AggregatedView{UserID: userID, Window: window}}, nil
}

func (fakeInsights) Analyze(context.Context, []models.DomainData, services.GenerateOptions) *models.RecommendationBatch {
	return &models.RecommendationBatch{}
}

func (fakeInsights) RecordFeedback(string, models.Feedback) error {
	return services.ErrUnknownRecommendation
}

type fakeSnapshots struct {
	saved []*models.DomainData
}

func (f *fakeSnapshots) SaveSnapshot(_ context.Context, data *models.DomainData) error {
	f.saved = append(f.saved, data)
	return nil
}

type okChecker struct{}

func (okChecker) HealthCheck(context.Context) error { return nil }

func newTestRouter(t *testing.T, snapshots handlers.SnapshotWriter) (*gin.Engine, *middleware.AuthMiddleware) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	reg := prometheus.NewRegistry()
	auth := middleware.NewAuthMiddleware("route-secret", "")

	router := NewRouter(Dependencies{
		Insights:          fakeInsights{},
		Versioner:         services.NewLiveUpdateVersioner(logger, nil),
		Snapshots:         snapshots,
		HealthChecks:      map[string]handlers.HealthChecker{"database": okChecker{}},
		Auth:              auth,
		Admin:             middleware.NewAdminMiddleware("admin-key"),
		Collectors:        metrics.New(reg),
		Gatherer:          reg,
		DefaultMaxResults: 10,
		Version:           "test",
		Logger:            logger,
	})
	return router, auth
}

func TestRoutes_PublicEndpoints(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "celebrum_insights_http_requests_total")
}

func TestRoutes_InsightsRequireAuth(t *testing.T) {
	router, auth := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/insights/dashboard", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := auth.GenerateToken("u1", "", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/insights/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var dashboard services.Dashboard
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dashboard))
	assert.Equal(t, "u1", dashboard.UserID)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/insights/feedback", strings.NewReader(`{"recommendation_id":"nope"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoutes_LiveUpdatesAreVersionedPerCaller(t *testing.T) {
	router, auth := newTestRouter(t, nil)
	token, err := auth.GenerateToken("u1", "", time.Hour)
	require.NoError(t, err)

	var versions []int64
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/live-updates", strings.NewReader(`{"update_type":"kpi","payload":{"n":1}}`))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusCreated, w.Code)

		var envelope models.LiveUpdateEnvelope
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
		assert.Equal(t, "u1", envelope.UserID)
		versions = append(versions, envelope.AssignedVersion)
	}
	assert.Less(t, versions[0], versions[1])
	assert.Less(t, versions[1], versions[2])
}

func TestRoutes_AdminSnapshots(t *testing.T) {
	t.Run("not mounted without storage", func(t *testing.T) {
		router, _ := newTestRouter(t, nil)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/snapshots", strings.NewReader(`{}`))
		req.Header.Set("X-API-Key", "admin-key")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("mounted with storage", func(t *testing.T) {
		store := &fakeSnapshots{}
		router, _ := newTestRouter(t, store)

		body := `{"domain":"finance","user_id":"u1","finance":{"net_cash_flow":{"name":"f","values":[1]}}}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/snapshots", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)

		req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/snapshots", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-Key", "admin-key")
		w = httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusCreated, w.Code)
		require.Len(t, store.saved, 1)
		assert.Equal(t, "u1", store.saved[0].UserID)
	})
}
