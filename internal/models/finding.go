package models

import (
	"math"

	"github.com/irfndi/celebrum-insights/internal/utils"
)

// Category tags what a finding is about. Recommendations are deduplicated
// and calibrated per category.
type Category string

const (
	CategoryStockoutRisk     Category = "stockout_risk"
	CategoryOverstock        Category = "overstock"
	CategoryFastMover        Category = "fast_mover"
	CategoryCampaignROI      Category = "campaign_roi"
	CategoryChannelScaling   Category = "channel_scaling"
	CategorySpendEfficiency  Category = "spend_efficiency"
	CategoryBottleneck       Category = "bottleneck"
	CategoryUnderutilization Category = "underutilization"
	CategoryCapacityRebal    Category = "capacity_rebalance"
	CategoryCashFlowRisk     Category = "cash_flow_risk"
	CategoryCashFlowAnomaly  Category = "cash_flow_anomaly"
	CategorySurplusCash      Category = "surplus_cash"
	CategoryChurnRisk        Category = "churn_risk"
	CategoryUpsell           Category = "upsell"
)

// FindingKind separates risks, inefficiencies and opportunities.
type FindingKind string

const (
	FindingRisk         FindingKind = "risk"
	FindingInefficiency FindingKind = "inefficiency"
	FindingOpportunity  FindingKind = "opportunity"
)

// ImpactType decides the ordering of impact bands: for revenue a higher
// number is better, for cost a higher number is worse.
type ImpactType string

const (
	ImpactRevenue ImpactType = "revenue"
	ImpactCost    ImpactType = "cost"
)

// Urgency scales the priority score of a finding.
type Urgency string

const (
	UrgencyImmediate Urgency = "immediate"
	UrgencyHigh      Urgency = "high"
	UrgencyNormal    Urgency = "normal"
	UrgencyLow       Urgency = "low"
)

// Factor returns the multiplier used in priority scoring. Unknown or empty
// urgency counts as normal.
func (u Urgency) Factor() float64 {
	switch u {
	case UrgencyImmediate:
		return 1.5
	case UrgencyHigh:
		return 1.25
	case UrgencyLow:
		return 0.75
	default:
		return 1.0
	}
}

// ActionStep is one ordered step of a recommendation.
type ActionStep struct {
	Order       int    `json:"order"`
	Description string `json:"description"`
	Owner       string `json:"owner,omitempty"`
}

// Finding is an analyzer's raw output, before ranking.
type Finding struct {
	ID             string             `json:"id"`
	Domain         Domain             `json:"domain"`
	Category       Category           `json:"category"`
	Kind           FindingKind        `json:"kind"`
	Subject        string             `json:"subject"`
	Title          string             `json:"title"`
	Severity       float64            `json:"severity"`
	Urgency        Urgency            `json:"urgency,omitempty"`
	ImpactType     ImpactType         `json:"impact_type"`
	ExpectedImpact float64            `json:"expected_impact"`
	ImpactSamples  []float64          `json:"impact_samples,omitempty"`
	SampleSize     int                `json:"sample_size"`
	FieldsExpected int                `json:"fields_expected"`
	FieldsPresent  int                `json:"fields_present"`
	Actions        []ActionStep       `json:"actions,omitempty"`
	Evidence       map[string]float64 `json:"evidence,omitempty"`
}

// Completeness is the fraction of expected input fields that were present.
func (f Finding) Completeness() float64 {
	if f.FieldsExpected <= 0 {
		return 0
	}
	c := float64(f.FieldsPresent) / float64(f.FieldsExpected)
	return math.Max(0, math.Min(1, c))
}

// Validate reports every missing or malformed required field.
func (f Finding) Validate() error {
	var missing []string
	if !f.Domain.IsValid() {
		missing = append(missing, "domain")
	}
	if f.Category == "" {
		missing = append(missing, "category")
	}
	if f.Subject == "" {
		missing = append(missing, "subject")
	}
	if f.Title == "" {
		missing = append(missing, "title")
	}
	if f.ImpactType != ImpactRevenue && f.ImpactType != ImpactCost {
		missing = append(missing, "impact_type")
	}
	if f.FieldsExpected <= 0 {
		missing = append(missing, "fields_expected")
	}
	if err := utils.MissingFieldsError(missing); err != nil {
		return err
	}

	if math.IsNaN(f.Severity) || f.Severity < 0 || f.Severity > 1 {
		return utils.NewValidationError("severity", "must be within [0,1]")
	}
	if math.IsNaN(f.ExpectedImpact) || math.IsInf(f.ExpectedImpact, 0) {
		return utils.NewValidationError("expected_impact", "must be finite")
	}
	for i, s := range f.ImpactSamples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return utils.NewValidationErrorf("impact_samples", "sample %d is not finite", i)
		}
	}
	if f.SampleSize < 0 {
		return utils.NewValidationError("sample_size", "must not be negative")
	}
	if f.FieldsPresent < 0 || f.FieldsPresent > f.FieldsExpected {
		return utils.NewValidationError("fields_present", "must be within [0, fields_expected]")
	}
	return nil
}
