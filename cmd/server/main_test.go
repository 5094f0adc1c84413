package main

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-insights/internal/config"
	"github.com/irfndi/celebrum-insights/internal/database"
	"github.com/irfndi/celebrum-insights/internal/models"
)

func TestAggregatorConfig(t *testing.T) {
	t.Run("breaker enabled", func(t *testing.T) {
		out := aggregatorConfig(config.AggregatorConfig{
			MaxRetries:   2,
			RetryDelay:   "250ms",
			FetchTimeout: "3s",
			CircuitBreaker: config.CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 4,
				SuccessThreshold: 2,
				Timeout:          "30s",
				MaxRequests:      5,
			},
		})

		assert.Equal(t, 2, out.MaxRetries)
		assert.Equal(t, 250*time.Millisecond, out.RetryDelay)
		assert.Equal(t, 3*time.Second, out.FetchTimeout)
		require.NotNil(t, out.Breaker)
		assert.Equal(t, 4, out.Breaker.FailureThreshold)
		assert.Equal(t, 30*time.Second, out.Breaker.Timeout)
	})

	t.Run("breaker disabled and bad durations", func(t *testing.T) {
		out := aggregatorConfig(config.AggregatorConfig{RetryDelay: "soon", FetchTimeout: ""})
		assert.Nil(t, out.Breaker)
		assert.Equal(t, 100*time.Millisecond, out.RetryDelay)
		assert.Zero(t, out.FetchTimeout)
	})
}

func TestEngineConfig(t *testing.T) {
	out := engineConfig(config.RecommendationsConfig{
		ConfidenceLevel:   0.9,
		Iterations:        500,
		IssuedIndexSize:   100,
		HistoryWeight:     0.2,
		HistorySaturation: 5,
		ImpactSpread:      0.1,
		Seed:              42,
	})

	assert.Equal(t, 0.9, out.ConfidenceLevel)
	assert.Equal(t, 500, out.Iterations)
	assert.Equal(t, 100, out.IssuedIndexSize)
	assert.Equal(t, uint64(42), out.Seed)
}

func TestAnalyzers(t *testing.T) {
	got := analyzers(config.AnalyticsConfig{AnomalyThreshold: 3})
	require.Len(t, got, len(models.AllDomains()))
	for _, d := range models.AllDomains() {
		require.Contains(t, got, d)
		assert.Equal(t, d, got[d].Domain())
	}
}

func TestDomainSources(t *testing.T) {
	sources := domainSources(database.NewSnapshotRepository(nil))
	require.Len(t, sources, len(models.AllDomains()))
	for i, d := range models.AllDomains() {
		assert.Equal(t, d, sources[i].Domain())
	}
}

func TestInitTelemetry_Disabled(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	stop := initTelemetry(context.Background(), &config.Config{Telemetry: config.TelemetryConfig{ExportLogs: true}}, logger)
	assert.NotPanics(t, stop)
	assert.Empty(t, logger.Hooks)
}
