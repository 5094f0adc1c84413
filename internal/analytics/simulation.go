package analytics

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// DefaultIterations is used when a simulation is asked for no iterations.
	DefaultIterations = 1000
	// MaxIterations bounds the draws of one simulation, which are held in
	// memory together.
	MaxIterations = 100_000
)

// RandomSource supplies uniformly distributed 64-bit values. Simulations
// only draw from the source they are given, so a seeded source makes their
// output reproducible.
type RandomSource interface {
	Uint64() uint64
}

// NewSeededSource returns a deterministic PCG source.
func NewSeededSource(seed uint64) RandomSource {
	return rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
}

// DistributionKind selects how simulation draws are produced.
type DistributionKind string

const (
	// DistributionNormal draws from Normal(Mean, StdDev).
	DistributionNormal DistributionKind = "normal"
	// DistributionEmpirical resamples Samples with replacement.
	DistributionEmpirical DistributionKind = "empirical"
)

// DistributionParams parameterizes MonteCarloSimulate.
type DistributionParams struct {
	Kind    DistributionKind `json:"kind"`
	Mean    float64          `json:"mean"`
	StdDev  float64          `json:"std_dev"`
	Samples []float64        `json:"samples,omitempty"`
}

// NormalParams is a shorthand for a normal distribution.
func NormalParams(mean, stdDev float64) DistributionParams {
	return DistributionParams{Kind: DistributionNormal, Mean: mean, StdDev: stdDev}
}

// EmpiricalParams is a shorthand for bootstrap resampling of history.
func EmpiricalParams(samples []float64) DistributionParams {
	return DistributionParams{Kind: DistributionEmpirical, Samples: samples}
}

func (p DistributionParams) validate() error {
	switch p.Kind {
	case DistributionNormal:
		if math.IsNaN(p.Mean) || math.IsInf(p.Mean, 0) || math.IsNaN(p.StdDev) || math.IsInf(p.StdDev, 0) {
			return fmt.Errorf("%w: mean and std dev must be finite", ErrInvalidDistribution)
		}
		if p.StdDev < 0 {
			return fmt.Errorf("%w: std dev must not be negative", ErrInvalidDistribution)
		}
	case DistributionEmpirical:
		if len(p.Samples) == 0 {
			return fmt.Errorf("%w: empirical distribution has no samples", ErrInsufficientData)
		}
		if !allFinite(p.Samples) {
			return ErrNonFiniteInput
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidDistribution, p.Kind)
	}
	return nil
}

// SimulationResult holds the percentile outcomes of a simulation. Draws is
// kept for callers that derive further statistics from the same run.
type SimulationResult struct {
	P5         float64   `json:"p5"`
	P50        float64   `json:"p50"`
	P95        float64   `json:"p95"`
	Mean       float64   `json:"mean"`
	Iterations int       `json:"iterations"`
	Draws      []float64 `json:"-"`
}

// MonteCarloSimulate draws iterations outcomes from params using src and
// reports their 5th, 50th and 95th percentiles. iterations <= 0 selects
// DefaultIterations; more than MaxIterations is rejected.
func MonteCarloSimulate(params DistributionParams, iterations int, src RandomSource) (SimulationResult, error) {
	if src == nil {
		return SimulationResult{}, ErrNoRandomSource
	}
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	if iterations > MaxIterations {
		return SimulationResult{}, fmt.Errorf("%w: %d exceeds %d", ErrTooManyIterations, iterations, MaxIterations)
	}
	if err := params.validate(); err != nil {
		return SimulationResult{}, err
	}

	draws := make([]float64, iterations)
	switch params.Kind {
	case DistributionNormal:
		dist := distuv.Normal{Mu: params.Mean, Sigma: params.StdDev, Src: src}
		for i := range draws {
			draws[i] = dist.Rand()
		}
	case DistributionEmpirical:
		rng := rand.New(src)
		for i := range draws {
			draws[i] = params.Samples[rng.IntN(len(params.Samples))]
		}
	}

	result := SimulationResult{Iterations: iterations, Draws: draws}
	var err error
	if result.P5, err = stats.PercentileNearestRank(draws, 5); err != nil {
		return SimulationResult{}, fmt.Errorf("p5: %w", err)
	}
	if result.P50, err = stats.PercentileNearestRank(draws, 50); err != nil {
		return SimulationResult{}, fmt.Errorf("p50: %w", err)
	}
	if result.P95, err = stats.PercentileNearestRank(draws, 95); err != nil {
		return SimulationResult{}, fmt.Errorf("p95: %w", err)
	}
	if result.Mean, err = stats.Mean(draws); err != nil {
		return SimulationResult{}, fmt.Errorf("mean: %w", err)
	}
	return result, nil
}
