package analytics

import (
	"fmt"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/irfndi/celebrum-insights/internal/models"
)

// Summary describes the location and spread of a series.
type Summary struct {
	N      int     `json:"n"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
}

// Summarize computes a Summary. StdDev is the sample standard deviation and
// is zero for a single sample.
func Summarize(series models.MetricSeries) (Summary, error) {
	values := series.Values
	if len(values) == 0 {
		return Summary{}, fmt.Errorf("%w: %s is empty", ErrInsufficientData, series.Name)
	}
	if !allFinite(values) {
		return Summary{}, ErrNonFiniteInput
	}

	s := Summary{
		N:   len(values),
		Min: floats.Min(values),
		Max: floats.Max(values),
	}
	if s.N == 1 {
		s.Mean = values[0]
	} else {
		s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
	}
	median, err := stats.Median(values)
	if err != nil {
		return Summary{}, err
	}
	s.Median = median
	return s, nil
}

// Trend is the least-squares line through a series against its index.
type Trend struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	R         float64 `json:"r"`
	Defined   bool    `json:"defined"`
}

// LinearTrend fits value = Intercept + Slope*index. R is the Pearson
// coefficient against the index and Defined is false for constant series,
// whose slope is zero.
func LinearTrend(series models.MetricSeries) (Trend, error) {
	values := series.Values
	if len(values) < 2 {
		return Trend{}, fmt.Errorf("%w: trend needs at least 2 samples, got %d", ErrInsufficientData, len(values))
	}
	if !allFinite(values) {
		return Trend{}, ErrNonFiniteInput
	}

	index := make([]float64, len(values))
	floats.Span(index, 0, float64(len(values)-1))
	alpha, beta := stat.LinearRegression(index, values, nil, false)

	r, defined, err := pearson(index, values)
	if err != nil {
		return Trend{}, err
	}
	if !defined {
		return Trend{Intercept: values[0]}, nil
	}
	return Trend{Slope: beta, Intercept: alpha, R: r, Defined: true}, nil
}
