package analytics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-insights/internal/models"
)

func TestSummarize(t *testing.T) {
	s, err := Summarize(models.NewMetricSeries("orders", 2, 4, 4, 4, 5, 5, 7, 9))
	require.NoError(t, err)

	assert.Equal(t, 8, s.N)
	assert.InDelta(t, 5.0, s.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(32.0/7), s.StdDev, 1e-12)
	assert.Equal(t, 2.0, s.Min)
	assert.Equal(t, 9.0, s.Max)
	assert.Equal(t, 4.5, s.Median)
}

func TestSummarize_SingleSample(t *testing.T) {
	s, err := Summarize(models.NewMetricSeries("one", 3))
	require.NoError(t, err)
	assert.Equal(t, 3.0, s.Mean)
	assert.Zero(t, s.StdDev)
	assert.Equal(t, 3.0, s.Median)
}

func TestSummarize_Rejects(t *testing.T) {
	_, err := Summarize(models.NewMetricSeries("empty"))
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = Summarize(models.NewMetricSeries("nan", 1, math.NaN()))
	assert.ErrorIs(t, err, ErrNonFiniteInput)
}

func TestLinearTrend(t *testing.T) {
	tests := []struct {
		name      string
		values    []float64
		slope     float64
		intercept float64
		r         float64
		defined   bool
	}{
		{"rising line", []float64{1, 3, 5, 7}, 2, 1, 1, true},
		{"falling line", []float64{10, 8, 6, 4}, -2, 10, -1, true},
		{"constant", []float64{5, 5, 5}, 0, 5, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trend, err := LinearTrend(models.NewMetricSeries(tt.name, tt.values...))
			require.NoError(t, err)
			assert.Equal(t, tt.defined, trend.Defined)
			assert.InDelta(t, tt.slope, trend.Slope, 1e-9)
			assert.InDelta(t, tt.intercept, trend.Intercept, 1e-9)
			assert.InDelta(t, tt.r, trend.R, 1e-9)
		})
	}
}

func TestLinearTrend_Rejects(t *testing.T) {
	_, err := LinearTrend(models.NewMetricSeries("short", 1))
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = LinearTrend(models.NewMetricSeries("inf", 1, math.Inf(1), 3))
	assert.ErrorIs(t, err, ErrNonFiniteInput)
}
