package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/irfndi/celebrum-insights/internal/api/handlers"
	"github.com/irfndi/celebrum-insights/internal/metrics"
	"github.com/irfndi/celebrum-insights/internal/middleware"
)

// ServiceName identifies the HTTP server in traces.
const ServiceName = "celebrum-insights"

// Dependencies carries everything the routes need.
type Dependencies struct {
	Insights          handlers.InsightProvider
	Versioner         handlers.UpdateStamper
	Snapshots         handlers.SnapshotWriter
	SnapshotCache     handlers.SnapshotInvalidator
	HealthChecks      map[string]handlers.HealthChecker
	Auth              *middleware.AuthMiddleware
	Admin             *middleware.AdminMiddleware
	Collectors        *metrics.Collectors
	Gatherer          prometheus.Gatherer
	AllowedOrigins    []string
	DefaultMaxResults int
	Version           string
	Logger            *logrus.Logger
}

// NewRouter creates the gin engine with the common middleware stack and
// every route registered.
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(ServiceName))
	router.Use(middleware.CORS(deps.AllowedOrigins))
	router.Use(middleware.RequestMetrics(deps.Collectors, deps.Logger))

	SetupRoutes(router, deps)
	return router
}

// SetupRoutes registers the health, metrics and v1 API routes.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	healthHandler := handlers.NewHealthHandler(deps.HealthChecks, deps.Version)
	router.GET("/health", healthHandler.HealthCheck)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	insightHandler := handlers.NewInsightHandler(deps.Insights, deps.DefaultMaxResults, deps.Logger)
	liveUpdateHandler := handlers.NewLiveUpdateHandler(deps.Versioner, deps.Logger)

	v1 := router.Group("/api/v1")
	{
		insights := v1.Group("/insights")
		insights.Use(deps.Auth.RequireAuth())
		{
			insights.GET("/dashboard", insightHandler.GetDashboard)
			insights.POST("/analyze", insightHandler.PostAnalyze)
			insights.POST("/feedback", insightHandler.PostFeedback)
		}

		liveUpdates := v1.Group("/live-updates")
		liveUpdates.Use(deps.Auth.RequireAuth())
		{
			liveUpdates.POST("", liveUpdateHandler.PostLiveUpdate)
		}

		// Snapshot ingestion is only mounted when storage is configured
		if deps.Snapshots != nil && deps.Admin != nil {
			snapshotHandler := handlers.NewSnapshotHandler(deps.Snapshots, deps.SnapshotCache, deps.Logger)
			admin := v1.Group("/admin")
			admin.Use(deps.Admin.RequireAdminAuth())
			{
				admin.POST("/snapshots", snapshotHandler.PostSnapshot)
			}
		}
	}
}
