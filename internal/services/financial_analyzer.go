package services

import (
	"fmt"
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/shopspring/decimal"

	"github.com/irfndi/celebrum-insights/internal/analytics"
	"github.com/irfndi/celebrum-insights/internal/models"
)

// FinancialAnalyzerConfig tunes cash-flow thresholds. Periods are the
// sampling periods of the net cash flow series.
type FinancialAnalyzerConfig struct {
	ShortPeriod      int     `mapstructure:"short_period"`
	LongPeriod       int     `mapstructure:"long_period"`
	AnomalyThreshold float64 `mapstructure:"anomaly_threshold"`
	RunwayWarning    float64 `mapstructure:"runway_warning"`
	ReservePeriods   float64 `mapstructure:"reserve_periods"`
	YieldRate        float64 `mapstructure:"yield_rate"`
}

// FinancialAnalyzer assesses cash-flow trend, anomalies and runway.
type FinancialAnalyzer struct {
	cfg FinancialAnalyzerConfig
}

// NewFinancialAnalyzer creates a financial analyzer.
func NewFinancialAnalyzer(cfg FinancialAnalyzerConfig) *FinancialAnalyzer {
	if cfg.ShortPeriod <= 0 {
		cfg.ShortPeriod = 3
	}
	if cfg.LongPeriod <= cfg.ShortPeriod {
		cfg.LongPeriod = cfg.ShortPeriod * 2
	}
	if cfg.AnomalyThreshold <= 0 {
		cfg.AnomalyThreshold = analytics.DefaultAnomalyThreshold
	}
	if cfg.RunwayWarning <= 0 {
		cfg.RunwayWarning = 6
	}
	if cfg.ReservePeriods <= 0 {
		cfg.ReservePeriods = 3
	}
	if cfg.YieldRate <= 0 {
		cfg.YieldRate = 0.04
	}
	return &FinancialAnalyzer{cfg: cfg}
}

func (a *FinancialAnalyzer) Domain() models.Domain { return models.DomainFinance }

// CashFlowTrend summarizes the direction of net cash flow.
type CashFlowTrend struct {
	ShortAverage float64 `json:"short_average"`
	LongAverage  float64 `json:"long_average"`
	Slope        float64 `json:"slope"`
	R            float64 `json:"r"`
	Declining    bool    `json:"declining"`
}

// Trend compares the latest short and long simple moving averages and the
// least-squares slope. ok is false when the series is shorter than the
// long period.
func (a *FinancialAnalyzer) Trend(flow models.MetricSeries) (CashFlowTrend, bool) {
	if flow.Len() < a.cfg.LongPeriod {
		return CashFlowTrend{}, false
	}
	short := helper.ChanToSlice(trend.NewSmaWithPeriod[float64](a.cfg.ShortPeriod).Compute(helper.SliceToChan(flow.Values)))
	long := helper.ChanToSlice(trend.NewSmaWithPeriod[float64](a.cfg.LongPeriod).Compute(helper.SliceToChan(flow.Values)))
	if len(short) == 0 || len(long) == 0 {
		return CashFlowTrend{}, false
	}

	t := CashFlowTrend{
		ShortAverage: short[len(short)-1],
		LongAverage:  long[len(long)-1],
	}
	if fit, err := analytics.LinearTrend(flow); err == nil && fit.Defined {
		t.Slope = fit.Slope
		t.R = fit.R
	}
	t.Declining = t.ShortAverage < t.LongAverage && t.Slope < 0
	return t, true
}

// Runway is the number of periods the balance lasts at the mean burn. ok is
// false when the business is not burning cash.
func Runway(balance decimal.Decimal, meanFlow float64) (periods float64, ok bool) {
	if meanFlow >= 0 {
		return 0, false
	}
	burn := decimal.NewFromFloat(-meanFlow)
	return balance.Div(burn).InexactFloat64(), true
}

// DetectRisks reports a cash-flow risk for burn or a declining trend, and
// one anomaly finding per unexpected outflow.
func (a *FinancialAnalyzer) DetectRisks(data *models.DomainData) ([]models.Finding, error) {
	if err := checkDomain(a.Domain(), data); err != nil {
		return nil, err
	}
	fin := data.Finance
	summary, err := analytics.Summarize(fin.NetCashFlow)
	if err != nil {
		return nil, nil
	}

	var findings []models.Finding
	expected, present := financeFields(fin)
	runway, burning := Runway(fin.CashBalance, summary.Mean)
	tr, hasTrend := a.Trend(fin.NetCashFlow)
	declining := hasTrend && tr.Declining

	if (burning && runway < 2*a.cfg.RunwayWarning) || declining {
		f := newFinding(a.Domain(), models.CategoryCashFlowRisk, models.FindingRisk, "cash_flow",
			"protect cash runway")
		switch {
		case burning:
			f.Severity = clampUnit(1 - runway/(2*a.cfg.RunwayWarning))
			f.Evidence["runway_periods"] = runway
		default:
			f.Severity = clampUnit(0.4 + 0.3*math.Abs(tr.R))
		}
		if declining && f.Severity < 0.4 {
			f.Severity = 0.4
		}
		switch {
		case burning && runway < a.cfg.RunwayWarning/2:
			f.Urgency = models.UrgencyImmediate
		case burning && runway < a.cfg.RunwayWarning:
			f.Urgency = models.UrgencyHigh
		}
		f.ImpactType = models.ImpactCost
		horizon := a.cfg.RunwayWarning
		f.ExpectedImpact = math.Max(-summary.Mean, 0) * horizon
		burns := make([]float64, len(fin.NetCashFlow.Values))
		for i, v := range fin.NetCashFlow.Values {
			burns[i] = math.Max(-v, 0) * horizon
		}
		f.ImpactSamples = burns
		f.SampleSize = summary.N
		f.FieldsExpected, f.FieldsPresent = expected, present
		f.Actions = actions(
			"Defer discretionary spending",
			"Accelerate receivables collection",
			"Review credit facilities",
		)
		if hasTrend {
			f.Evidence["short_sma"] = tr.ShortAverage
			f.Evidence["long_sma"] = tr.LongAverage
			f.Evidence["trend_slope"] = tr.Slope
		}
		findings = append(findings, f)
	}

	for _, an := range analytics.DetectAnomalies(fin.NetCashFlow, a.cfg.AnomalyThreshold) {
		if an.ZScore >= 0 {
			continue
		}
		f := newFinding(a.Domain(), models.CategoryCashFlowAnomaly, models.FindingRisk,
			fmt.Sprintf("period-%d", an.Index), fmt.Sprintf("investigate unusual outflow in period %d", an.Index+1))
		f.Severity = clampUnit(math.Abs(an.ZScore) / (2 * a.cfg.AnomalyThreshold))
		f.Urgency = models.UrgencyHigh
		f.ImpactType = models.ImpactCost
		f.ExpectedImpact = -an.Deviation
		f.SampleSize = summary.N
		f.FieldsExpected, f.FieldsPresent = expected, present
		f.Actions = actions(
			"Reconcile transactions for the period",
			"Confirm whether the outflow is one-off",
		)
		f.Evidence["z_score"] = an.ZScore
		f.Evidence["value"] = an.Value
		findings = append(findings, f)
	}
	return findings, nil
}

// ComputeEfficiency has no cash-flow efficiency measure to report.
func (a *FinancialAnalyzer) ComputeEfficiency(data *models.DomainData) ([]models.Finding, error) {
	if err := checkDomain(a.Domain(), data); err != nil {
		return nil, err
	}
	return nil, nil
}

// RankOpportunities suggests investing cash held above the reserve when
// cash flow is not negative.
func (a *FinancialAnalyzer) RankOpportunities(data *models.DomainData) ([]models.Finding, error) {
	if err := checkDomain(a.Domain(), data); err != nil {
		return nil, err
	}
	fin := data.Finance
	summary, err := analytics.Summarize(fin.NetCashFlow)
	if err != nil || summary.Mean < 0 || !fin.CashBalance.IsPositive() {
		return nil, nil
	}
	if hasTrendDecline(a, fin.NetCashFlow) {
		return nil, nil
	}

	buffer := math.Abs(summary.Mean) + summary.StdDev
	reserve := decimal.NewFromFloat(a.cfg.ReservePeriods * buffer)
	surplus := fin.CashBalance.Sub(reserve)
	if !surplus.IsPositive() {
		return nil, nil
	}

	f := newFinding(a.Domain(), models.CategorySurplusCash, models.FindingOpportunity, "cash_balance",
		"put surplus cash to work")
	f.Severity = clampUnit(surplus.Div(fin.CashBalance).InexactFloat64())
	f.Urgency = models.UrgencyLow
	f.ImpactType = models.ImpactRevenue
	f.ExpectedImpact = surplus.Mul(decimal.NewFromFloat(a.cfg.YieldRate)).InexactFloat64()
	f.SampleSize = summary.N
	f.FieldsExpected, f.FieldsPresent = financeFields(fin)
	f.Actions = actions(
		"Move surplus into a short-term treasury product",
		"Keep the operating reserve in cash",
	)
	f.Evidence["surplus"] = surplus.InexactFloat64()
	f.Evidence["reserve"] = reserve.InexactFloat64()
	return []models.Finding{f}, nil
}

func hasTrendDecline(a *FinancialAnalyzer, flow models.MetricSeries) bool {
	t, ok := a.Trend(flow)
	return ok && t.Declining
}

func financeFields(m *models.FinancialMetrics) (expected, present int) {
	return 3, countPresent(
		m.Currency != "",
		!m.CashBalance.IsZero(),
		!m.NetCashFlow.IsEmpty(),
	)
}
