package analytics

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-insights/internal/models"
)

func TestPearsonCorrelation_IdenticalAndNegated(t *testing.T) {
	a := models.NewMetricSeries("spend", 3, 1, 4, 1, 5, 9, 2, 6)
	neg := make([]float64, len(a.Values))
	for i, v := range a.Values {
		neg[i] = -v
	}

	same, err := PearsonCorrelation(a, a)
	require.NoError(t, err)
	assert.True(t, same.Defined)
	assert.InDelta(t, 1.0, same.Coefficient, 1e-9)
	assert.Equal(t, 8, same.SampleSize)

	inverse, err := PearsonCorrelation(a, models.NewMetricSeries("negated", neg...))
	require.NoError(t, err)
	assert.True(t, inverse.Defined)
	assert.InDelta(t, -1.0, inverse.Coefficient, 1e-9)
}

func TestPearsonCorrelation_BoundedAndSymmetric(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for trial := 0; trial < 50; trial++ {
		n := 2 + rng.IntN(30)
		a := make([]float64, n)
		b := make([]float64, n)
		for i := range a {
			a[i] = rng.NormFloat64() * 100
			b[i] = rng.NormFloat64()*50 + a[i]*rng.Float64()
		}
		sa := models.NewMetricSeries("a", a...)
		sb := models.NewMetricSeries("b", b...)

		ab, err := PearsonCorrelation(sa, sb)
		require.NoError(t, err)
		ba, err := PearsonCorrelation(sb, sa)
		require.NoError(t, err)

		assert.GreaterOrEqual(t, ab.Coefficient, -1.0)
		assert.LessOrEqual(t, ab.Coefficient, 1.0)
		assert.Equal(t, ab.Coefficient, ba.Coefficient)
	}
}

func TestPearsonCorrelation_Degenerate(t *testing.T) {
	tests := []struct {
		name    string
		a, b    models.MetricSeries
		wantErr error
		defined bool
	}{
		{
			name:    "length mismatch",
			a:       models.NewMetricSeries("a", 1, 2, 3),
			b:       models.NewMetricSeries("b", 1, 2),
			wantErr: ErrLengthMismatch,
		},
		{
			name:    "empty",
			a:       models.NewMetricSeries("a"),
			b:       models.NewMetricSeries("b"),
			wantErr: ErrInsufficientData,
		},
		{
			name:    "single point",
			a:       models.NewMetricSeries("a", 1),
			b:       models.NewMetricSeries("b", 2),
			wantErr: ErrInsufficientData,
		},
		{
			name: "constant series",
			a:    models.NewMetricSeries("a", 4, 4, 4, 4),
			b:    models.NewMetricSeries("b", 1, 2, 3, 4),
		},
		{
			name: "both constant",
			a:    models.NewMetricSeries("a", 0.1, 0.1, 0.1),
			b:    models.NewMetricSeries("b", 7, 7, 7),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := PearsonCorrelation(tt.a, tt.b)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.defined, result.Defined)
			assert.Equal(t, ReasonZeroVariance, result.Reason)
			assert.Zero(t, result.Coefficient)
		})
	}
}

func TestLagCorrelation_FindsShift(t *testing.T) {
	lead := models.NewMetricSeries("spend", 3, 1, 4, 1, 5, 9, 2, 6, 5, 3)
	follow := models.NewMetricSeries("revenue", 7, 8, 3, 1, 4, 1, 5, 9, 2, 6)

	result, err := LagCorrelation(lead, follow, 4)
	require.NoError(t, err)
	assert.True(t, result.Defined)
	assert.Equal(t, 2, result.LagOffset)
	assert.Equal(t, 8, result.SampleSize)
	assert.InDelta(t, 1.0, result.Coefficient, 1e-9)
}

func TestLagCorrelation_Degenerate(t *testing.T) {
	_, err := LagCorrelation(models.NewMetricSeries("a", 1, 2), models.NewMetricSeries("b", 1, 2), 1)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = LagCorrelation(models.NewMetricSeries("a", 1, 2, 3), models.NewMetricSeries("b", 1, 2), 1)
	assert.ErrorIs(t, err, ErrLengthMismatch)

	flat, err := LagCorrelation(models.NewMetricSeries("a", 5, 5, 5, 5), models.NewMetricSeries("b", 1, 2, 3, 4), 3)
	require.NoError(t, err)
	assert.False(t, flat.Defined)
	assert.Equal(t, ReasonZeroVariance, flat.Reason)
}
