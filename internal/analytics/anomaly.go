package analytics

import (
	"math"

	"github.com/montanaflynn/stats"

	"github.com/irfndi/celebrum-insights/internal/models"
)

const (
	// DefaultAnomalyThreshold is the |z| above which a sample is flagged.
	DefaultAnomalyThreshold = 2.5

	// madScale converts a median absolute deviation to a standard deviation
	// estimate under normality.
	madScale = 0.6745
	// meanADScale converts a mean absolute deviation to a standard deviation
	// estimate under normality (sqrt(pi/2)).
	meanADScale = 1.253314
)

// Anomaly is a sample whose robust z-score magnitude exceeded the threshold.
// Deviation is the distance from the series median.
type Anomaly struct {
	Index     int     `json:"index"`
	Value     float64 `json:"value"`
	ZScore    float64 `json:"z_score"`
	Deviation float64 `json:"deviation"`
}

// DetectAnomalies scores every sample against the centre and spread of the
// whole series and returns those whose |z| exceeds threshold, in index
// order. threshold <= 0 selects DefaultAnomalyThreshold.
//
// The centre is the median and the spread is the median absolute
// deviation, falling back to the mean absolute deviation around the median
// when more than half of the samples coincide. A single outlier therefore
// cannot mask itself by inflating the spread. Series with fewer than two
// samples, constant series and series containing non-finite values yield
// no anomalies.
func DetectAnomalies(series models.MetricSeries, threshold float64) []Anomaly {
	if threshold <= 0 || math.IsNaN(threshold) {
		threshold = DefaultAnomalyThreshold
	}
	values := series.Values
	if len(values) < 2 || !allFinite(values) {
		return []Anomaly{}
	}

	median, err := stats.Median(values)
	if err != nil {
		return []Anomaly{}
	}
	scale, ok := robustScale(values, median)
	if !ok {
		return []Anomaly{}
	}

	anomalies := []Anomaly{}
	for i, v := range values {
		deviation := v - median
		z := deviation / scale
		if math.Abs(z) > threshold {
			anomalies = append(anomalies, Anomaly{
				Index:     i,
				Value:     v,
				ZScore:    z,
				Deviation: deviation,
			})
		}
	}
	return anomalies
}

// robustScale returns the divisor that turns a deviation from the median
// into a z-score. ok is false for constant series.
func robustScale(values []float64, median float64) (float64, bool) {
	mad, err := stats.MedianAbsoluteDeviation(values)
	if err == nil && mad > 0 {
		return mad / madScale, true
	}

	absDev := make([]float64, len(values))
	for i, v := range values {
		absDev[i] = math.Abs(v - median)
	}
	meanAD, err := stats.Mean(absDev)
	if err != nil || meanAD == 0 {
		return 0, false
	}
	return meanADScale * meanAD, true
}
