package services

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/irfndi/celebrum-insights/internal/models"
)

// CustomerAnalyzerConfig tunes churn and lifetime-value estimation.
type CustomerAnalyzerConfig struct {
	AtRiskChurn          float64 `mapstructure:"at_risk_churn"`
	SegmentChurnRisk     float64 `mapstructure:"segment_churn_risk"`
	SegmentAtRiskShare   float64 `mapstructure:"segment_at_risk_share"`
	UpsellMaxChurn       float64 `mapstructure:"upsell_max_churn"`
	UpsellUplift         float64 `mapstructure:"upsell_uplift"`
	LifetimeYears        float64 `mapstructure:"lifetime_years"`
	DefaultOrderInterval float64 `mapstructure:"default_order_interval"`
}

// CustomerAnalyzer scores churn per customer and aggregates per segment.
type CustomerAnalyzer struct {
	cfg CustomerAnalyzerConfig
}

// NewCustomerAnalyzer creates a customer analyzer.
func NewCustomerAnalyzer(cfg CustomerAnalyzerConfig) *CustomerAnalyzer {
	if cfg.AtRiskChurn <= 0 {
		cfg.AtRiskChurn = 0.6
	}
	if cfg.SegmentChurnRisk <= 0 {
		cfg.SegmentChurnRisk = 0.4
	}
	if cfg.SegmentAtRiskShare <= 0 {
		cfg.SegmentAtRiskShare = 0.3
	}
	if cfg.UpsellMaxChurn <= 0 {
		cfg.UpsellMaxChurn = 0.3
	}
	if cfg.UpsellUplift <= 0 {
		cfg.UpsellUplift = 0.1
	}
	if cfg.LifetimeYears <= 0 {
		cfg.LifetimeYears = 3
	}
	if cfg.DefaultOrderInterval <= 0 {
		cfg.DefaultOrderInterval = 30
	}
	return &CustomerAnalyzer{cfg: cfg}
}

func (a *CustomerAnalyzer) Domain() models.Domain { return models.DomainCustomer }

// ChurnScore maps recency against the customer's usual order interval to
// [0,1]. A customer inside their usual interval scores 0.
func (a *CustomerAnalyzer) ChurnScore(c models.CustomerRecord) float64 {
	interval := a.orderInterval(c)
	overdue := c.DaysSinceLastOrder/interval - 1
	if overdue <= 0 {
		return 0
	}
	return clampUnit(1 - math.Exp(-overdue))
}

// AnnualValue is average order value times expected orders per year.
func (a *CustomerAnalyzer) AnnualValue(c models.CustomerRecord) decimal.Decimal {
	if c.OrderCount <= 0 {
		return decimal.Zero
	}
	aov := c.TotalSpend.Div(decimal.NewFromInt(int64(c.OrderCount)))
	return aov.Mul(decimal.NewFromFloat(365 / a.orderInterval(c)))
}

// LifetimeValue discounts annual value over the lifetime horizon by the
// churn score.
func (a *CustomerAnalyzer) LifetimeValue(c models.CustomerRecord) decimal.Decimal {
	retention := decimal.NewFromFloat(1 - a.ChurnScore(c))
	return a.AnnualValue(c).Mul(decimal.NewFromFloat(a.cfg.LifetimeYears)).Mul(retention)
}

func (a *CustomerAnalyzer) orderInterval(c models.CustomerRecord) float64 {
	if c.AvgOrderInterval > 0 {
		return c.AvgOrderInterval
	}
	return a.cfg.DefaultOrderInterval
}

// SegmentSummary aggregates churn and value for one segment.
type SegmentSummary struct {
	Segment        string          `json:"segment"`
	Customers      int             `json:"customers"`
	AtRisk         int             `json:"at_risk"`
	AvgChurn       float64         `json:"avg_churn"`
	TotalLTV       decimal.Decimal `json:"total_ltv"`
	AvgLTV         decimal.Decimal `json:"avg_ltv"`
	AtRiskRevenue  decimal.Decimal `json:"at_risk_revenue"`
	churnValues    []float64
	ltvValues      []float64
	revenueAtRisk  []float64
	fieldsExpected int
	fieldsPresent  int
}

// AtRiskShare is the fraction of customers above the at-risk churn score.
func (s SegmentSummary) AtRiskShare() float64 {
	if s.Customers == 0 {
		return 0
	}
	return float64(s.AtRisk) / float64(s.Customers)
}

// Segments aggregates customers by segment, sorted by segment name.
// Customers without a segment are grouped under "unsegmented".
func (a *CustomerAnalyzer) Segments(m *models.CustomerMetrics) []SegmentSummary {
	bySegment := make(map[string]*SegmentSummary)
	for _, c := range m.Customers {
		name := c.Segment
		if name == "" {
			name = "unsegmented"
		}
		s, ok := bySegment[name]
		if !ok {
			s = &SegmentSummary{Segment: name, TotalLTV: decimal.Zero, AtRiskRevenue: decimal.Zero}
			bySegment[name] = s
		}

		churn := a.ChurnScore(c)
		ltv := a.LifetimeValue(c)
		annual := a.AnnualValue(c)
		s.Customers++
		s.TotalLTV = s.TotalLTV.Add(ltv)
		s.churnValues = append(s.churnValues, churn)
		s.ltvValues = append(s.ltvValues, ltv.InexactFloat64())
		s.revenueAtRisk = append(s.revenueAtRisk, annual.InexactFloat64()*churn)
		if churn >= a.cfg.AtRiskChurn {
			s.AtRisk++
			s.AtRiskRevenue = s.AtRiskRevenue.Add(annual)
		}
		s.fieldsExpected += 4
		s.fieldsPresent += countPresent(
			c.Segment != "",
			c.AvgOrderInterval > 0,
			c.OrderCount > 0,
			!c.TotalSpend.IsZero(),
		)
	}

	out := make([]SegmentSummary, 0, len(bySegment))
	for _, s := range bySegment {
		total := 0.0
		for _, v := range s.churnValues {
			total += v
		}
		s.AvgChurn = total / float64(s.Customers)
		s.AvgLTV = s.TotalLTV.Div(decimal.NewFromInt(int64(s.Customers)))
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Segment < out[j].Segment })
	return out
}

// DetectRisks reports segments whose churn is high on average or
// concentrated in many at-risk customers.
func (a *CustomerAnalyzer) DetectRisks(data *models.DomainData) ([]models.Finding, error) {
	if err := checkDomain(a.Domain(), data); err != nil {
		return nil, err
	}

	var findings []models.Finding
	for _, s := range a.Segments(data.Customer) {
		if s.AvgChurn < a.cfg.SegmentChurnRisk && s.AtRiskShare() < a.cfg.SegmentAtRiskShare {
			continue
		}

		f := newFinding(a.Domain(), models.CategoryChurnRisk, models.FindingRisk, s.Segment,
			fmt.Sprintf("win back at-risk %s customers", s.Segment))
		f.Severity = clampUnit(math.Max(s.AvgChurn, s.AtRiskShare()))
		if s.AvgChurn >= 0.7 {
			f.Urgency = models.UrgencyHigh
		}
		f.ImpactType = models.ImpactRevenue
		f.ExpectedImpact = s.AtRiskRevenue.InexactFloat64()
		f.ImpactSamples = scaleAll(s.revenueAtRisk, float64(s.Customers))
		f.SampleSize = s.Customers
		f.FieldsExpected, f.FieldsPresent = s.fieldsExpected, s.fieldsPresent
		f.Actions = actions(
			fmt.Sprintf("Launch a win-back campaign for %s", s.Segment),
			"Survey recently lapsed customers",
		)
		f.Evidence["avg_churn"] = s.AvgChurn
		f.Evidence["at_risk_share"] = s.AtRiskShare()
		f.Evidence["avg_ltv"] = s.AvgLTV.InexactFloat64()
		findings = append(findings, f)
	}
	return findings, nil
}

// ComputeEfficiency has no customer efficiency measure to report.
func (a *CustomerAnalyzer) ComputeEfficiency(data *models.DomainData) ([]models.Finding, error) {
	if err := checkDomain(a.Domain(), data); err != nil {
		return nil, err
	}
	return nil, nil
}

// RankOpportunities flags loyal segments whose average lifetime value is at
// least the overall average as upsell targets.
func (a *CustomerAnalyzer) RankOpportunities(data *models.DomainData) ([]models.Finding, error) {
	if err := checkDomain(a.Domain(), data); err != nil {
		return nil, err
	}

	segments := a.Segments(data.Customer)
	total, customers := decimal.Zero, 0
	for _, s := range segments {
		total = total.Add(s.TotalLTV)
		customers += s.Customers
	}
	if customers == 0 || !total.IsPositive() {
		return nil, nil
	}
	overall := total.Div(decimal.NewFromInt(int64(customers)))

	var findings []models.Finding
	for _, s := range segments {
		if s.AvgChurn >= a.cfg.UpsellMaxChurn || s.AvgLTV.LessThan(overall) {
			continue
		}

		relative := s.AvgLTV.Div(overall.Mul(decimal.NewFromInt(2))).InexactFloat64()
		f := newFinding(a.Domain(), models.CategoryUpsell, models.FindingOpportunity, s.Segment,
			fmt.Sprintf("upsell loyal %s customers", s.Segment))
		f.Severity = clampUnit((1 - s.AvgChurn) * math.Min(1, relative))
		f.ImpactType = models.ImpactRevenue
		f.ExpectedImpact = s.TotalLTV.Mul(decimal.NewFromFloat(a.cfg.UpsellUplift)).InexactFloat64()
		f.ImpactSamples = scaleAll(s.ltvValues, a.cfg.UpsellUplift*float64(s.Customers))
		f.SampleSize = s.Customers
		f.FieldsExpected, f.FieldsPresent = s.fieldsExpected, s.fieldsPresent
		f.Actions = actions(
			fmt.Sprintf("Offer premium bundles to %s", s.Segment),
			"Introduce a loyalty tier with higher order minimums",
		)
		f.Evidence["avg_churn"] = s.AvgChurn
		f.Evidence["avg_ltv"] = s.AvgLTV.InexactFloat64()
		f.Evidence["overall_avg_ltv"] = overall.InexactFloat64()
		findings = append(findings, f)
	}
	return findings, nil
}
