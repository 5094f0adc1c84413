package models

import (
	"time"
)

// Priority is derived by the recommendation engine; callers never set it.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank orders priorities, high first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// ImpactAssessment is the best/likely/worst band of a recommendation.
type ImpactAssessment struct {
	ImpactType             ImpactType `json:"impact_type"`
	BestCase               float64    `json:"best_case"`
	LikelyCase             float64    `json:"likely_case"`
	WorstCase              float64    `json:"worst_case"`
	ConfidenceIntervalLow  float64    `json:"confidence_interval_low"`
	ConfidenceIntervalHigh float64    `json:"confidence_interval_high"`
	ConfidenceLevel        float64    `json:"confidence_level"`
}

// Recommendation is immutable once issued: it is handed out by value and
// its slices are copies owned by the receiver.
type Recommendation struct {
	ID            string           `json:"id"`
	FindingID     string           `json:"finding_id,omitempty"`
	Domain        Domain           `json:"domain"`
	Category      Category         `json:"category"`
	Subject       string           `json:"subject"`
	Title         string           `json:"title"`
	Confidence    float64          `json:"confidence"`
	Priority      Priority         `json:"priority"`
	PriorityScore float64          `json:"priority_score"`
	Impact        ImpactAssessment `json:"impact"`
	Actions       []ActionStep     `json:"actions"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Diagnostic records a finding that was skipped during generation.
type Diagnostic struct {
	Index     int    `json:"index"`
	FindingID string `json:"finding_id,omitempty"`
	Domain    Domain `json:"domain,omitempty"`
	Reason    string `json:"reason"`
}

// RecommendationBatch is the result of one generation run.
type RecommendationBatch struct {
	Recommendations []Recommendation `json:"recommendations"`
	Diagnostics     []Diagnostic     `json:"diagnostics"`
	Considered      int              `json:"considered"`
	Skipped         int              `json:"skipped"`
	Truncated       bool             `json:"truncated"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

// Feedback reports whether an issued recommendation turned out accurate.
type Feedback struct {
	RecommendationID string `json:"recommendation_id" binding:"required"`
	WasAccurate      bool   `json:"was_accurate"`
}
