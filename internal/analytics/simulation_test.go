package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonteCarloSimulate_RequiresSource(t *testing.T) {
	_, err := MonteCarloSimulate(NormalParams(10, 1), 100, nil)
	assert.ErrorIs(t, err, ErrNoRandomSource)
}

func TestMonteCarloSimulate_Reproducible(t *testing.T) {
	params := NormalParams(100, 10)

	first, err := MonteCarloSimulate(params, 500, NewSeededSource(42))
	require.NoError(t, err)
	second, err := MonteCarloSimulate(params, 500, NewSeededSource(42))
	require.NoError(t, err)

	assert.Equal(t, first.P5, second.P5)
	assert.Equal(t, first.P50, second.P50)
	assert.Equal(t, first.P95, second.P95)
	assert.Equal(t, first.Draws, second.Draws)
}

func TestMonteCarloSimulate_NormalPercentiles(t *testing.T) {
	result, err := MonteCarloSimulate(NormalParams(100, 10), 5000, NewSeededSource(1))
	require.NoError(t, err)

	assert.Equal(t, 5000, result.Iterations)
	assert.InDelta(t, 100, result.P50, 1.5)
	assert.InDelta(t, 83.55, result.P5, 2)
	assert.InDelta(t, 116.45, result.P95, 2)
	assert.LessOrEqual(t, result.P5, result.P50)
	assert.LessOrEqual(t, result.P50, result.P95)
}

func TestMonteCarloSimulate_DefaultIterations(t *testing.T) {
	result, err := MonteCarloSimulate(NormalParams(0, 1), 0, NewSeededSource(3))
	require.NoError(t, err)
	assert.Equal(t, DefaultIterations, result.Iterations)
	assert.Len(t, result.Draws, DefaultIterations)
}

func TestMonteCarloSimulate_IterationLimit(t *testing.T) {
	_, err := MonteCarloSimulate(NormalParams(0, 1), MaxIterations+1, NewSeededSource(3))
	assert.ErrorIs(t, err, ErrTooManyIterations)

	_, err = MonteCarloSimulate(NormalParams(0, 1), 1<<50, NewSeededSource(3))
	assert.ErrorIs(t, err, ErrTooManyIterations)

	result, err := MonteCarloSimulate(NormalParams(0, 1), MaxIterations, NewSeededSource(3))
	require.NoError(t, err)
	assert.Len(t, result.Draws, MaxIterations)
}

func TestMonteCarloSimulate_Empirical(t *testing.T) {
	samples := []float64{1, 2, 3}
	result, err := MonteCarloSimulate(EmpiricalParams(samples), 200, NewSeededSource(9))
	require.NoError(t, err)

	for _, d := range result.Draws {
		assert.Contains(t, samples, d)
	}
	assert.Equal(t, 1.0, result.P5)
	assert.Equal(t, 3.0, result.P95)
	assert.Equal(t, []float64{1, 2, 3}, samples)
}

func TestMonteCarloSimulate_ZeroSpread(t *testing.T) {
	result, err := MonteCarloSimulate(NormalParams(42, 0), 50, NewSeededSource(5))
	require.NoError(t, err)
	assert.Equal(t, 42.0, result.P5)
	assert.Equal(t, 42.0, result.P50)
	assert.Equal(t, 42.0, result.P95)
}

func TestMonteCarloSimulate_InvalidParams(t *testing.T) {
	src := NewSeededSource(1)

	_, err := MonteCarloSimulate(NormalParams(1, -1), 10, src)
	assert.ErrorIs(t, err, ErrInvalidDistribution)

	_, err = MonteCarloSimulate(EmpiricalParams(nil), 10, src)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = MonteCarloSimulate(DistributionParams{Kind: "poisson"}, 10, src)
	assert.ErrorIs(t, err, ErrInvalidDistribution)
}
