// Package analytics holds the pure statistical building blocks used by the
// domain analyzers and the recommendation engine: correlation, anomaly
// detection, Monte Carlo simulation and confidence intervals.
//
// Every function works on bounded in-memory data, reports degenerate input
// through an explicit error or marker and never returns NaN or Inf.
package analytics

import (
	"errors"
	"math"
)

var (
	// ErrInsufficientData is returned when there are too few samples for
	// the requested statistic.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrLengthMismatch is returned when paired series differ in length.
	ErrLengthMismatch = errors.New("series length mismatch")
	// ErrNonFiniteInput is returned when an input contains NaN or Inf.
	ErrNonFiniteInput = errors.New("input contains non-finite values")
	// ErrNoRandomSource is returned by simulations run without a source.
	ErrNoRandomSource = errors.New("random source is required")
	// ErrInvalidDistribution is returned for unusable distribution parameters.
	ErrInvalidDistribution = errors.New("invalid distribution parameters")
	// ErrTooManyIterations is returned for simulations above MaxIterations.
	ErrTooManyIterations = errors.New("too many simulation iterations")
)

func allFinite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
