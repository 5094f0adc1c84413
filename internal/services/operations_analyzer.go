package services

import (
	"fmt"
	"math"

	"github.com/irfndi/celebrum-insights/internal/analytics"
	"github.com/irfndi/celebrum-insights/internal/models"
)

// OperationsAnalyzerConfig tunes the utilization thresholds.
type OperationsAnalyzerConfig struct {
	BottleneckUtilization    float64 `mapstructure:"bottleneck_utilization"`
	UnderutilizedUtilization float64 `mapstructure:"underutilized_utilization"`
	AnomalyThreshold         float64 `mapstructure:"anomaly_threshold"`
}

// OperationsAnalyzer detects bottlenecks from stage utilization.
type OperationsAnalyzer struct {
	cfg OperationsAnalyzerConfig
}

// NewOperationsAnalyzer creates an operations analyzer.
func NewOperationsAnalyzer(cfg OperationsAnalyzerConfig) *OperationsAnalyzer {
	if cfg.BottleneckUtilization <= 0 {
		cfg.BottleneckUtilization = 0.85
	}
	if cfg.UnderutilizedUtilization <= 0 {
		cfg.UnderutilizedUtilization = 0.40
	}
	if cfg.AnomalyThreshold <= 0 {
		cfg.AnomalyThreshold = analytics.DefaultAnomalyThreshold
	}
	return &OperationsAnalyzer{cfg: cfg}
}

func (a *OperationsAnalyzer) Domain() models.Domain { return models.DomainOperations }

// StageUtilization is one stage's mean load relative to its capacity.
type StageUtilization struct {
	Stage       string  `json:"stage"`
	Utilization float64 `json:"utilization"`
	MeanLoad    float64 `json:"mean_load"`
	Capacity    float64 `json:"capacity"`
	Samples     int     `json:"samples"`
	Anomalies   int     `json:"anomalies"`
}

// Utilizations computes utilization for every stage with load samples.
func (a *OperationsAnalyzer) Utilizations(m *models.OperationsMetrics) []StageUtilization {
	out := make([]StageUtilization, 0, len(m.Stages))
	for _, st := range m.Stages {
		summary, err := analytics.Summarize(st.Load)
		if err != nil || st.Capacity <= 0 {
			continue
		}
		out = append(out, StageUtilization{
			Stage:       st.Name,
			Utilization: summary.Mean / st.Capacity,
			MeanLoad:    summary.Mean,
			Capacity:    st.Capacity,
			Samples:     summary.N,
			Anomalies:   len(analytics.DetectAnomalies(st.Load, a.cfg.AnomalyThreshold)),
		})
	}
	return out
}

// DetectRisks flags stages running at or above the bottleneck threshold.
// Load anomalies raise severity.
func (a *OperationsAnalyzer) DetectRisks(data *models.DomainData) ([]models.Finding, error) {
	if err := checkDomain(a.Domain(), data); err != nil {
		return nil, err
	}

	loads := stageLoads(data.Operations)
	var findings []models.Finding
	for _, u := range a.Utilizations(data.Operations) {
		if u.Utilization < a.cfg.BottleneckUtilization {
			continue
		}

		threshold := a.cfg.BottleneckUtilization * u.Capacity
		f := newFinding(a.Domain(), models.CategoryBottleneck, models.FindingRisk, u.Stage,
			fmt.Sprintf("relieve the %s bottleneck", u.Stage))
		f.Severity = clampUnit(u.Utilization + 0.1*float64(u.Anomalies))
		f.Urgency = models.UrgencyHigh
		if u.Utilization >= 1 {
			f.Urgency = models.UrgencyImmediate
		}
		f.ImpactType = models.ImpactCost
		f.ExpectedImpact = math.Max(u.MeanLoad-threshold, 0)
		samples := make([]float64, 0, u.Samples)
		for _, l := range loads[u.Stage] {
			samples = append(samples, math.Max(l-threshold, 0))
		}
		f.ImpactSamples = samples
		f.SampleSize = u.Samples
		f.FieldsExpected, f.FieldsPresent = 2, 2
		f.Actions = actions(
			fmt.Sprintf("Add capacity or shifts to %s", u.Stage),
			"Reschedule non-urgent work away from peak periods",
		)
		f.Evidence["utilization"] = u.Utilization
		f.Evidence["anomalies"] = float64(u.Anomalies)
		findings = append(findings, f)
	}
	return findings, nil
}

// ComputeEfficiency flags stages below the under-utilization threshold.
func (a *OperationsAnalyzer) ComputeEfficiency(data *models.DomainData) ([]models.Finding, error) {
	if err := checkDomain(a.Domain(), data); err != nil {
		return nil, err
	}

	loads := stageLoads(data.Operations)
	var findings []models.Finding
	for _, u := range a.Utilizations(data.Operations) {
		if u.Utilization >= a.cfg.UnderutilizedUtilization {
			continue
		}

		f := newFinding(a.Domain(), models.CategoryUnderutilization, models.FindingInefficiency, u.Stage,
			fmt.Sprintf("consolidate idle capacity in %s", u.Stage))
		f.Severity = clampUnit(1 - u.Utilization/a.cfg.UnderutilizedUtilization)
		f.Urgency = models.UrgencyLow
		f.ImpactType = models.ImpactCost
		f.ExpectedImpact = u.Capacity - u.MeanLoad
		samples := make([]float64, 0, u.Samples)
		for _, l := range loads[u.Stage] {
			samples = append(samples, u.Capacity-l)
		}
		f.ImpactSamples = samples
		f.SampleSize = u.Samples
		f.FieldsExpected, f.FieldsPresent = 2, 2
		f.Actions = actions(
			fmt.Sprintf("Reduce staffed capacity in %s", u.Stage),
			"Cross-train staff for busier stages",
		)
		f.Evidence["utilization"] = u.Utilization
		findings = append(findings, f)
	}
	return findings, nil
}

// RankOpportunities pairs every bottleneck with the most idle stage when
// both exist, suggesting capacity be moved between them.
func (a *OperationsAnalyzer) RankOpportunities(data *models.DomainData) ([]models.Finding, error) {
	if err := checkDomain(a.Domain(), data); err != nil {
		return nil, err
	}

	utils := a.Utilizations(data.Operations)
	var idlest *StageUtilization
	for i := range utils {
		if utils[i].Utilization < a.cfg.UnderutilizedUtilization &&
			(idlest == nil || utils[i].Utilization < idlest.Utilization) {
			idlest = &utils[i]
		}
	}
	if idlest == nil {
		return nil, nil
	}

	var findings []models.Finding
	for _, u := range utils {
		if u.Utilization < a.cfg.BottleneckUtilization {
			continue
		}
		overflow := math.Max(u.MeanLoad-a.cfg.BottleneckUtilization*u.Capacity, 0)
		spare := idlest.Capacity - idlest.MeanLoad
		subject := u.Stage + "<-" + idlest.Stage

		f := newFinding(a.Domain(), models.CategoryCapacityRebal, models.FindingOpportunity, subject,
			fmt.Sprintf("shift capacity from %s to %s", idlest.Stage, u.Stage))
		f.Severity = clampUnit(u.Utilization - idlest.Utilization)
		f.ImpactType = models.ImpactRevenue
		f.ExpectedImpact = math.Min(overflow, spare)
		f.SampleSize = min(u.Samples, idlest.Samples)
		f.FieldsExpected, f.FieldsPresent = 2, 2
		f.Actions = actions(
			fmt.Sprintf("Move staff or equipment from %s to %s", idlest.Stage, u.Stage),
			"Re-measure utilization after one cycle",
		)
		f.Evidence["bottleneck_utilization"] = u.Utilization
		f.Evidence["idle_utilization"] = idlest.Utilization
		findings = append(findings, f)
	}
	return findings, nil
}

func stageLoads(m *models.OperationsMetrics) map[string][]float64 {
	loads := make(map[string][]float64, len(m.Stages))
	for _, st := range m.Stages {
		loads[st.Name] = st.Load.Values
	}
	return loads
}
