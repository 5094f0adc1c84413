package models

import (
	"math"
	"time"

	"github.com/irfndi/celebrum-insights/internal/utils"
)

// MetricSeries is a named, ordered sequence of samples supplied by a data
// collaborator. The engine only reads it.
type MetricSeries struct {
	Name       string      `json:"name"`
	Values     []float64   `json:"values"`
	Timestamps []time.Time `json:"timestamps,omitempty"`
}

// NewMetricSeries builds an untimed series.
func NewMetricSeries(name string, values ...float64) MetricSeries {
	return MetricSeries{Name: name, Values: values}
}

// Len returns the number of samples.
func (s MetricSeries) Len() int {
	return len(s.Values)
}

// IsEmpty reports whether the series has no samples.
func (s MetricSeries) IsEmpty() bool {
	return len(s.Values) == 0
}

// Last returns the most recent sample, or false for an empty series.
func (s MetricSeries) Last() (float64, bool) {
	if len(s.Values) == 0 {
		return 0, false
	}
	return s.Values[len(s.Values)-1], true
}

// Sum adds all samples.
func (s MetricSeries) Sum() float64 {
	total := 0.0
	for _, v := range s.Values {
		total += v
	}
	return total
}

// Validate checks that every value is finite and that timestamps, when
// present, line up with values and never go backwards.
func (s MetricSeries) Validate() error {
	for i, v := range s.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return utils.NewValidationErrorf(s.Name, "sample %d is not finite", i)
		}
	}
	if len(s.Timestamps) == 0 {
		return nil
	}
	if len(s.Timestamps) != len(s.Values) {
		return utils.NewValidationErrorf(s.Name, "%d timestamps for %d values", len(s.Timestamps), len(s.Values))
	}
	for i := 1; i < len(s.Timestamps); i++ {
		if s.Timestamps[i].Before(s.Timestamps[i-1]) {
			return utils.NewValidationErrorf(s.Name, "timestamp %d precedes timestamp %d", i, i-1)
		}
	}
	return nil
}

// TimeWindow is the half-open interval [From, To) a request covers.
type TimeWindow struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Validate rejects zero or inverted windows.
func (w TimeWindow) Validate() error {
	if w.From.IsZero() || w.To.IsZero() {
		return utils.NewValidationError("window", "from and to are required")
	}
	if !w.From.Before(w.To) {
		return utils.NewValidationError("window", "from must be before to")
	}
	return nil
}

// Duration returns the window length.
func (w TimeWindow) Duration() time.Duration {
	return w.To.Sub(w.From)
}

// LastDays returns the window covering the n days ending at now.
func LastDays(now time.Time, n int) TimeWindow {
	return TimeWindow{From: now.AddDate(0, 0, -n), To: now}
}
