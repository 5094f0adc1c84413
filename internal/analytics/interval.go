package analytics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

const (
	// DefaultConfidenceLevel is used for levels outside (0, 1).
	DefaultConfidenceLevel = 0.95
	// MinRelativeWidth is the narrowest interval allowed, as a fraction of
	// the magnitude of its centre.
	MinRelativeWidth = 0.10
)

// Interval is a two-sided confidence interval around Mean.
type Interval struct {
	Low   float64 `json:"low"`
	High  float64 `json:"high"`
	Mean  float64 `json:"mean"`
	Level float64 `json:"level"`
}

// Width returns High - Low.
func (i Interval) Width() float64 {
	return i.High - i.Low
}

// ZForLevel returns the two-sided normal critical value for level, e.g.
// 1.96 for 0.95.
func ZForLevel(level float64) float64 {
	if !(level > 0 && level < 1) {
		level = DefaultConfidenceLevel
	}
	return distuv.UnitNormal.Quantile(1 - (1-level)/2)
}

// ConfidenceInterval estimates a normal-approximation interval for the mean
// of samples. The interval is never narrower than MinRelativeWidth of
// |mean|, which keeps small samples from producing spuriously tight bands.
func ConfidenceInterval(samples []float64, level float64) (Interval, error) {
	if !(level > 0 && level < 1) {
		level = DefaultConfidenceLevel
	}
	if len(samples) < 2 {
		return Interval{}, fmt.Errorf("%w: interval needs at least 2 samples, got %d", ErrInsufficientData, len(samples))
	}
	if !allFinite(samples) {
		return Interval{}, ErrNonFiniteInput
	}

	mean, std := stat.MeanStdDev(samples, nil)
	half := ZForLevel(level) * std / math.Sqrt(float64(len(samples)))
	return Interval{
		Low:   mean - FlooredHalfWidth(mean, half),
		High:  mean + FlooredHalfWidth(mean, half),
		Mean:  mean,
		Level: level,
	}, nil
}

// FlooredHalfWidth widens half so that an interval centred on centre spans
// at least MinRelativeWidth of |centre|.
func FlooredHalfWidth(centre, half float64) float64 {
	floor := MinRelativeWidth * math.Abs(centre) / 2
	if math.IsNaN(half) || half < floor {
		return floor
	}
	return half
}
