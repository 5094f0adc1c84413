package analytics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/irfndi/celebrum-insights/internal/models"
)

// ReasonZeroVariance marks a correlation that is undefined because one of
// the series is constant.
const ReasonZeroVariance = "zero_variance"

// minLagPoints is the fewest aligned pairs a lag must leave to be scored.
const minLagPoints = 3

// CorrelationResult is the Pearson coefficient of two index-aligned series.
// When Defined is false the coefficient carries no information and Reason
// says why.
type CorrelationResult struct {
	SeriesA     string  `json:"series_a"`
	SeriesB     string  `json:"series_b"`
	Coefficient float64 `json:"coefficient"`
	SampleSize  int     `json:"sample_size"`
	LagOffset   int     `json:"lag_offset"`
	Defined     bool    `json:"defined"`
	Reason      string  `json:"reason,omitempty"`
}

// PearsonCorrelation correlates a and b index by index. Series must have
// equal length and at least two samples.
func PearsonCorrelation(a, b models.MetricSeries) (CorrelationResult, error) {
	result := CorrelationResult{SeriesA: a.Name, SeriesB: b.Name}
	if len(a.Values) != len(b.Values) {
		return result, fmt.Errorf("%w: %s has %d samples, %s has %d",
			ErrLengthMismatch, a.Name, len(a.Values), b.Name, len(b.Values))
	}
	if len(a.Values) < 2 {
		return result, fmt.Errorf("%w: correlation needs at least 2 samples, got %d", ErrInsufficientData, len(a.Values))
	}
	coefficient, defined, err := pearson(a.Values, b.Values)
	if err != nil {
		return result, err
	}
	result.SampleSize = len(a.Values)
	result.Coefficient = coefficient
	result.Defined = defined
	if !defined {
		result.Reason = ReasonZeroVariance
	}
	return result, nil
}

// LagCorrelation correlates lead[i] with follow[i+lag] for every lag in
// [0, maxLag] and returns the strongest defined coefficient by magnitude.
// Ties go to the smaller lag. Lags leaving fewer than three aligned pairs
// are not scored.
func LagCorrelation(lead, follow models.MetricSeries, maxLag int) (CorrelationResult, error) {
	result := CorrelationResult{SeriesA: lead.Name, SeriesB: follow.Name}
	if len(lead.Values) != len(follow.Values) {
		return result, fmt.Errorf("%w: %s has %d samples, %s has %d",
			ErrLengthMismatch, lead.Name, len(lead.Values), follow.Name, len(follow.Values))
	}
	if maxLag < 0 {
		maxLag = 0
	}
	n := len(lead.Values)
	if n < minLagPoints {
		return result, fmt.Errorf("%w: lag correlation needs at least %d samples, got %d", ErrInsufficientData, minLagPoints, n)
	}

	best := result
	best.Reason = ReasonZeroVariance
	for lag := 0; lag <= maxLag && n-lag >= minLagPoints; lag++ {
		coefficient, defined, err := pearson(lead.Values[:n-lag], follow.Values[lag:])
		if err != nil {
			return result, err
		}
		if !defined {
			continue
		}
		if !best.Defined || math.Abs(coefficient) > math.Abs(best.Coefficient) {
			best.Coefficient = coefficient
			best.SampleSize = n - lag
			best.LagOffset = lag
			best.Defined = true
			best.Reason = ""
		}
	}
	if !best.Defined {
		best.SampleSize = n
	}
	return best, nil
}

func pearson(x, y []float64) (float64, bool, error) {
	if !allFinite(x) || !allFinite(y) {
		return 0, false, ErrNonFiniteInput
	}
	if floats.Min(x) == floats.Max(x) || floats.Min(y) == floats.Max(y) {
		return 0, false, nil
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, false, nil
	}
	return clamp(r, -1, 1), true, nil
}
