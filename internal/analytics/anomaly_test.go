package analytics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-insights/internal/models"
)

func TestDetectAnomalies_FlagsSpike(t *testing.T) {
	anomalies := DetectAnomalies(models.NewMetricSeries("orders", 10, 10, 10, 10, 100), 2.5)

	require.Len(t, anomalies, 1)
	assert.Equal(t, 4, anomalies[0].Index)
	assert.Equal(t, 100.0, anomalies[0].Value)
	assert.Equal(t, 90.0, anomalies[0].Deviation)
	assert.Greater(t, anomalies[0].ZScore, 2.5)
}

func TestDetectAnomalies_NoisySeries(t *testing.T) {
	anomalies := DetectAnomalies(models.NewMetricSeries("load", 10, 11, 9, 10, 12, 10, 50), 0)

	require.Len(t, anomalies, 1)
	assert.Equal(t, 6, anomalies[0].Index)
	assert.InDelta(t, 0.6745*40, anomalies[0].ZScore, 1e-9)
}

func TestDetectAnomalies_NegativeOutlier(t *testing.T) {
	anomalies := DetectAnomalies(models.NewMetricSeries("cash", 100, 98, 102, 101, 99, -400), 2.5)

	require.Len(t, anomalies, 1)
	assert.Equal(t, 5, anomalies[0].Index)
	assert.Less(t, anomalies[0].ZScore, -2.5)
}

func TestDetectAnomalies_Degenerate(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
	}{
		{"empty", nil},
		{"single point", []float64{5}},
		{"constant", []float64{3, 3, 3, 3}},
		{"non-finite", []float64{1, math.NaN(), 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			anomalies := DetectAnomalies(models.NewMetricSeries("s", tt.values...), 2.5)
			assert.NotNil(t, anomalies)
			assert.Empty(t, anomalies)
		})
	}
}

func TestDetectAnomalies_Deterministic(t *testing.T) {
	series := models.NewMetricSeries("s", 1, 2, 3, 2, 1, 40, 2, 3, -30)
	first := DetectAnomalies(series, 3)
	second := DetectAnomalies(series, 3)
	assert.Equal(t, first, second)
	assert.Equal(t, []float64{1, 2, 3, 2, 1, 40, 2, 3, -30}, series.Values)
}
