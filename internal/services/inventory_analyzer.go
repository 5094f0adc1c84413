package services

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/irfndi/celebrum-insights/internal/analytics"
	"github.com/irfndi/celebrum-insights/internal/models"
)

// InventoryAnalyzerConfig tunes the inventory thresholds. Zero values fall
// back to defaults.
type InventoryAnalyzerConfig struct {
	MinStockoutProbability float64 `mapstructure:"min_stockout_probability"`
	TargetTurnover         float64 `mapstructure:"target_turnover"`
	HoldingCostRate        float64 `mapstructure:"holding_cost_rate"`
	MinTrendCorrelation    float64 `mapstructure:"min_trend_correlation"`
}

// InventoryAnalyzer finds stockout risks, overstock and fast movers.
type InventoryAnalyzer struct {
	cfg InventoryAnalyzerConfig
}

// NewInventoryAnalyzer creates an inventory analyzer.
func NewInventoryAnalyzer(cfg InventoryAnalyzerConfig) *InventoryAnalyzer {
	if cfg.MinStockoutProbability <= 0 {
		cfg.MinStockoutProbability = 0.2
	}
	if cfg.TargetTurnover <= 0 {
		cfg.TargetTurnover = 8
	}
	if cfg.HoldingCostRate <= 0 {
		cfg.HoldingCostRate = 0.25
	}
	if cfg.MinTrendCorrelation <= 0 {
		cfg.MinTrendCorrelation = 0.6
	}
	return &InventoryAnalyzer{cfg: cfg}
}

func (a *InventoryAnalyzer) Domain() models.Domain { return models.DomainInventory }

// StockoutProbability is P(lead-time demand > onHand) with lead-time demand
// modelled as Normal(mean*L, std*sqrt(L)).
func StockoutProbability(onHand, meanVelocity, stdVelocity, leadTimeDays float64) float64 {
	if leadTimeDays <= 0 || meanVelocity <= 0 {
		return 0
	}
	mu := meanVelocity * leadTimeDays
	sigma := stdVelocity * math.Sqrt(leadTimeDays)
	if sigma <= 0 {
		if mu > onHand {
			return 1
		}
		return 0
	}
	return clampUnit(distuv.Normal{Mu: mu, Sigma: sigma}.Survival(onHand))
}

// DetectRisks flags items likely to run out before a reorder arrives.
func (a *InventoryAnalyzer) DetectRisks(data *models.DomainData) ([]models.Finding, error) {
	if err := checkDomain(a.Domain(), data); err != nil {
		return nil, err
	}

	var findings []models.Finding
	for _, item := range data.Inventory.Items {
		summary, err := analytics.Summarize(item.DailyVelocity)
		if err != nil {
			continue
		}
		prob := StockoutProbability(item.OnHand, summary.Mean, summary.StdDev, item.LeadTimeDays)
		if prob < a.cfg.MinStockoutProbability {
			continue
		}

		price := item.UnitPrice.InexactFloat64()
		daysOfCover := math.Inf(1)
		if summary.Mean > 0 {
			daysOfCover = item.OnHand / summary.Mean
		}

		f := newFinding(a.Domain(), models.CategoryStockoutRisk, models.FindingRisk, item.SKU,
			fmt.Sprintf("reorder %s before stock runs out", displayName(item)))
		f.Severity = prob
		f.Urgency = models.UrgencyNormal
		switch {
		case prob >= 0.5 && daysOfCover < item.LeadTimeDays:
			f.Urgency = models.UrgencyImmediate
		case prob >= 0.5:
			f.Urgency = models.UrgencyHigh
		}
		f.ImpactType = models.ImpactRevenue
		f.ExpectedImpact = prob * summary.Mean * item.LeadTimeDays * price
		f.ImpactSamples = scaleAll(item.DailyVelocity.Values, prob*item.LeadTimeDays*price)
		f.SampleSize = summary.N
		f.FieldsExpected, f.FieldsPresent = inventoryFields(item)
		f.Actions = actions(
			fmt.Sprintf("Place a replenishment order for %s", item.SKU),
			"Confirm supplier lead time",
			"Review safety stock for this item",
		)
		f.Evidence["stockout_probability"] = prob
		f.Evidence["lead_time_days"] = item.LeadTimeDays
		if !math.IsInf(daysOfCover, 0) {
			f.Evidence["days_of_cover"] = daysOfCover
		}
		findings = append(findings, f)
	}
	return findings, nil
}

// ComputeEfficiency flags items whose annualized turnover is under half
// the target.
func (a *InventoryAnalyzer) ComputeEfficiency(data *models.DomainData) ([]models.Finding, error) {
	if err := checkDomain(a.Domain(), data); err != nil {
		return nil, err
	}

	var findings []models.Finding
	for _, item := range data.Inventory.Items {
		if item.OnHand <= 0 {
			continue
		}
		summary, err := analytics.Summarize(item.DailyVelocity)
		if err != nil {
			continue
		}
		turnover := math.Max(summary.Mean, 0) * 365 / item.OnHand
		if turnover >= a.cfg.TargetTurnover/2 {
			continue
		}

		targetStock := math.Max(summary.Mean, 0) * 365 / a.cfg.TargetTurnover
		excess := item.OnHand - targetStock
		cost := item.UnitCost.InexactFloat64()
		holding := cost * a.cfg.HoldingCostRate

		f := newFinding(a.Domain(), models.CategoryOverstock, models.FindingInefficiency, item.SKU,
			fmt.Sprintf("reduce excess stock of %s", displayName(item)))
		f.Severity = clampUnit(1 - turnover/a.cfg.TargetTurnover)
		f.Urgency = models.UrgencyLow
		f.ImpactType = models.ImpactCost
		f.ExpectedImpact = excess * holding
		samples := make([]float64, len(item.DailyVelocity.Values))
		for i, v := range item.DailyVelocity.Values {
			samples[i] = (item.OnHand - math.Max(v, 0)*365/a.cfg.TargetTurnover) * holding
		}
		f.ImpactSamples = samples
		f.SampleSize = summary.N
		f.FieldsExpected, f.FieldsPresent = inventoryFields(item)
		f.Actions = actions(
			fmt.Sprintf("Pause purchase orders for %s", item.SKU),
			"Run a clearance promotion on the excess units",
		)
		f.Evidence["turnover"] = turnover
		f.Evidence["excess_units"] = excess
		findings = append(findings, f)
	}
	return findings, nil
}

// RankOpportunities flags fast movers whose velocity trends upward.
func (a *InventoryAnalyzer) RankOpportunities(data *models.DomainData) ([]models.Finding, error) {
	if err := checkDomain(a.Domain(), data); err != nil {
		return nil, err
	}

	var findings []models.Finding
	for _, item := range data.Inventory.Items {
		if item.DailyVelocity.Len() < 3 {
			continue
		}
		trend, err := analytics.LinearTrend(item.DailyVelocity)
		if err != nil || !trend.Defined || trend.Slope <= 0 || trend.R < a.cfg.MinTrendCorrelation {
			continue
		}
		summary, err := analytics.Summarize(item.DailyVelocity)
		if err != nil || summary.Mean <= 0 {
			continue
		}

		growth := trend.Slope * float64(summary.N) / summary.Mean
		margin := item.UnitPrice.Sub(item.UnitCost).InexactFloat64()
		monthlyUnits := trend.Slope * 30

		f := newFinding(a.Domain(), models.CategoryFastMover, models.FindingOpportunity, item.SKU,
			fmt.Sprintf("expand stock of fast-moving %s", displayName(item)))
		f.Severity = clampUnit(trend.R * math.Min(1, growth))
		f.ImpactType = models.ImpactRevenue
		f.ExpectedImpact = monthlyUnits * margin
		f.SampleSize = summary.N
		f.FieldsExpected, f.FieldsPresent = inventoryFields(item)
		f.Actions = actions(
			fmt.Sprintf("Raise the reorder point of %s", item.SKU),
			"Negotiate volume pricing with the supplier",
		)
		f.Evidence["trend_slope"] = trend.Slope
		f.Evidence["trend_r"] = trend.R
		f.Evidence["growth"] = growth
		findings = append(findings, f)
	}
	return findings, nil
}

func inventoryFields(item models.InventoryItem) (expected, present int) {
	return 5, countPresent(
		true,
		!item.DailyVelocity.IsEmpty(),
		item.LeadTimeDays > 0,
		!item.UnitCost.IsZero(),
		!item.UnitPrice.IsZero(),
	)
}

func displayName(item models.InventoryItem) string {
	if item.Name != "" {
		return item.Name
	}
	return item.SKU
}
