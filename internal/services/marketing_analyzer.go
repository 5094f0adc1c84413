package services

import (
	"fmt"
	"math"
	"sort"

	"github.com/irfndi/celebrum-insights/internal/analytics"
	"github.com/irfndi/celebrum-insights/internal/models"
)

// AttributionModel decides how a conversion's value is credited to the
// channels on its path.
type AttributionModel string

const (
	AttributionFirstTouch AttributionModel = "first_touch"
	AttributionLastTouch  AttributionModel = "last_touch"
	AttributionLinear     AttributionModel = "linear"
)

// AttributionWeights blends the three attribution models.
type AttributionWeights struct {
	FirstTouch float64 `mapstructure:"first_touch" json:"first_touch"`
	LastTouch  float64 `mapstructure:"last_touch" json:"last_touch"`
	Linear     float64 `mapstructure:"linear" json:"linear"`
}

// DefaultAttributionWeights favours the linear model.
func DefaultAttributionWeights() AttributionWeights {
	return AttributionWeights{FirstTouch: 0.3, LastTouch: 0.3, Linear: 0.4}
}

// AttributeConversions credits conversion value to channels under model.
func AttributeConversions(conversions []models.Conversion, model AttributionModel) map[string]float64 {
	credit := make(map[string]float64)
	for _, c := range conversions {
		if len(c.Path) == 0 {
			continue
		}
		switch model {
		case AttributionFirstTouch:
			credit[c.Path[0]] += c.Value
		case AttributionLastTouch:
			credit[c.Path[len(c.Path)-1]] += c.Value
		default:
			share := c.Value / float64(len(c.Path))
			for _, ch := range c.Path {
				credit[ch] += share
			}
		}
	}
	return credit
}

// WeightedAttribution mixes the three models by w. Weights are normalized;
// all-zero weights fall back to the defaults.
func WeightedAttribution(conversions []models.Conversion, w AttributionWeights) map[string]float64 {
	total := w.FirstTouch + w.LastTouch + w.Linear
	if total <= 0 {
		w = DefaultAttributionWeights()
		total = 1
	}

	blended := make(map[string]float64)
	for _, part := range []struct {
		model  AttributionModel
		weight float64
	}{
		{AttributionFirstTouch, w.FirstTouch / total},
		{AttributionLastTouch, w.LastTouch / total},
		{AttributionLinear, w.Linear / total},
	} {
		if part.weight == 0 {
			continue
		}
		for ch, v := range AttributeConversions(conversions, part.model) {
			blended[ch] += part.weight * v
		}
	}
	return blended
}

// MarketingAnalyzerConfig tunes the marketing thresholds.
type MarketingAnalyzerConfig struct {
	MaxLag           int                `mapstructure:"max_lag"`
	WeakLink         float64            `mapstructure:"weak_link"`
	ScalingMinROI    float64            `mapstructure:"scaling_min_roi"`
	ScalingMinLink   float64            `mapstructure:"scaling_min_link"`
	ScalingBudgetPct float64            `mapstructure:"scaling_budget_pct"`
	Attribution      AttributionWeights `mapstructure:"attribution"`
}

// MarketingAnalyzer scores channel ROI and the spend to revenue link.
type MarketingAnalyzer struct {
	cfg MarketingAnalyzerConfig
}

// NewMarketingAnalyzer creates a marketing analyzer.
func NewMarketingAnalyzer(cfg MarketingAnalyzerConfig) *MarketingAnalyzer {
	if cfg.MaxLag <= 0 {
		cfg.MaxLag = 3
	}
	if cfg.WeakLink <= 0 {
		cfg.WeakLink = 0.3
	}
	if cfg.ScalingMinROI <= 0 {
		cfg.ScalingMinROI = 1.0
	}
	if cfg.ScalingMinLink <= 0 {
		cfg.ScalingMinLink = 0.5
	}
	if cfg.ScalingBudgetPct <= 0 {
		cfg.ScalingBudgetPct = 0.2
	}
	if cfg.Attribution == (AttributionWeights{}) {
		cfg.Attribution = DefaultAttributionWeights()
	}
	return &MarketingAnalyzer{cfg: cfg}
}

func (a *MarketingAnalyzer) Domain() models.Domain { return models.DomainMarketing }

// ChannelROI is (revenue - spend) / spend. ok is false without spend.
func ChannelROI(ch models.ChannelMetrics) (roi float64, ok bool) {
	spend := ch.Spend.Sum()
	if spend <= 0 {
		return 0, false
	}
	return (ch.Revenue.Sum() - spend) / spend, true
}

// DetectRisks flags channels that lose money.
func (a *MarketingAnalyzer) DetectRisks(data *models.DomainData) ([]models.Finding, error) {
	if err := checkDomain(a.Domain(), data); err != nil {
		return nil, err
	}

	var findings []models.Finding
	for _, ch := range data.Marketing.Channels {
		roi, ok := ChannelROI(ch)
		if !ok || roi >= 0 {
			continue
		}

		f := newFinding(a.Domain(), models.CategoryCampaignROI, models.FindingRisk, ch.Name,
			fmt.Sprintf("cut losses on %s campaigns", ch.Name))
		f.Severity = clampUnit(-roi)
		if roi <= -0.5 {
			f.Urgency = models.UrgencyHigh
		}
		f.ImpactType = models.ImpactCost
		f.ExpectedImpact = ch.Spend.Sum() - ch.Revenue.Sum()
		f.ImpactSamples = periodLosses(ch)
		f.SampleSize = ch.Spend.Len()
		f.FieldsExpected, f.FieldsPresent = channelFields(ch, data.Marketing)
		f.Actions = actions(
			fmt.Sprintf("Pause the lowest performing %s campaigns", ch.Name),
			"Reallocate budget to channels with positive ROI",
		)
		f.Evidence["roi"] = roi
		findings = append(findings, f)
	}
	return findings, nil
}

// ComputeEfficiency flags channels whose spend does not lead revenue, even
// after allowing for a lag.
func (a *MarketingAnalyzer) ComputeEfficiency(data *models.DomainData) ([]models.Finding, error) {
	if err := checkDomain(a.Domain(), data); err != nil {
		return nil, err
	}

	attributed := WeightedAttribution(data.Marketing.Conversions, a.cfg.Attribution)
	var findings []models.Finding
	for _, ch := range data.Marketing.Channels {
		link, err := analytics.LagCorrelation(ch.Spend, ch.Revenue, a.cfg.MaxLag)
		if err != nil || !link.Defined || link.Coefficient >= a.cfg.WeakLink {
			continue
		}
		spend := ch.Spend.Sum()
		if spend <= 0 {
			continue
		}

		f := newFinding(a.Domain(), models.CategorySpendEfficiency, models.FindingInefficiency, ch.Name,
			fmt.Sprintf("rework %s spend that is not driving revenue", ch.Name))
		f.Severity = clampUnit(1 - math.Max(link.Coefficient, 0)/a.cfg.WeakLink)
		f.ImpactType = models.ImpactCost
		f.ExpectedImpact = spend * (1 - math.Max(link.Coefficient, 0))
		f.ImpactSamples = scaleAll(ch.Spend.Values, float64(ch.Spend.Len())*(1-math.Max(link.Coefficient, 0)))
		f.SampleSize = link.SampleSize
		f.FieldsExpected, f.FieldsPresent = channelFields(ch, data.Marketing)
		f.Actions = actions(
			fmt.Sprintf("Audit targeting and creatives on %s", ch.Name),
			"Run a holdout test to measure incremental revenue",
		)
		f.Evidence["lag_correlation"] = link.Coefficient
		f.Evidence["lag_periods"] = float64(link.LagOffset)
		f.Evidence["attributed_revenue"] = attributed[ch.Name]
		findings = append(findings, f)
	}
	return findings, nil
}

// RankOpportunities flags profitable channels whose spend reliably leads
// revenue, ordered by ROI.
func (a *MarketingAnalyzer) RankOpportunities(data *models.DomainData) ([]models.Finding, error) {
	if err := checkDomain(a.Domain(), data); err != nil {
		return nil, err
	}

	attributed := WeightedAttribution(data.Marketing.Conversions, a.cfg.Attribution)
	var findings []models.Finding
	for _, ch := range data.Marketing.Channels {
		roi, ok := ChannelROI(ch)
		if !ok || roi < a.cfg.ScalingMinROI {
			continue
		}
		link, err := analytics.LagCorrelation(ch.Spend, ch.Revenue, a.cfg.MaxLag)
		if err != nil || !link.Defined || link.Coefficient < a.cfg.ScalingMinLink {
			continue
		}

		extra := a.cfg.ScalingBudgetPct * ch.Spend.Sum()
		f := newFinding(a.Domain(), models.CategoryChannelScaling, models.FindingOpportunity, ch.Name,
			fmt.Sprintf("scale budget on %s", ch.Name))
		f.Severity = clampUnit(link.Coefficient * math.Min(1, roi/3))
		f.ImpactType = models.ImpactRevenue
		f.ExpectedImpact = extra * roi
		periods := float64(ch.Spend.Len())
		samples := make([]float64, 0, ch.Spend.Len())
		for i, s := range ch.Spend.Values {
			if s > 0 && i < ch.Revenue.Len() {
				samples = append(samples, periods*a.cfg.ScalingBudgetPct*(ch.Revenue.Values[i]-s))
			}
		}
		f.ImpactSamples = samples
		f.SampleSize = link.SampleSize
		f.FieldsExpected, f.FieldsPresent = channelFields(ch, data.Marketing)
		f.Actions = actions(
			fmt.Sprintf("Increase %s budget by %.0f%%", ch.Name, a.cfg.ScalingBudgetPct*100),
			"Monitor ROI weekly for diminishing returns",
		)
		f.Evidence["roi"] = roi
		f.Evidence["lag_correlation"] = link.Coefficient
		f.Evidence["attributed_revenue"] = attributed[ch.Name]
		findings = append(findings, f)
	}

	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Evidence["roi"] > findings[j].Evidence["roi"]
	})
	return findings, nil
}

// periodLosses projects each period's loss over the whole window so the
// samples share the scale of the total loss.
func periodLosses(ch models.ChannelMetrics) []float64 {
	n := min(ch.Spend.Len(), ch.Revenue.Len())
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = float64(n) * (ch.Spend.Values[i] - ch.Revenue.Values[i])
	}
	return out
}

func channelFields(ch models.ChannelMetrics, m *models.MarketingMetrics) (expected, present int) {
	return 4, countPresent(
		!ch.Spend.IsEmpty(),
		!ch.Revenue.IsEmpty(),
		len(m.Conversions) > 0,
		!m.TotalRevenue.IsEmpty(),
	)
}
