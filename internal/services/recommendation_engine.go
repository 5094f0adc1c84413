package services

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/irfndi/celebrum-insights/internal/analytics"
	"github.com/irfndi/celebrum-insights/internal/metrics"
	"github.com/irfndi/celebrum-insights/internal/models"
)

const (
	// HighPriorityScore is the lowest score classified high (inclusive).
	HighPriorityScore = 0.75
	// MediumPriorityScore is the lowest score classified medium (inclusive).
	MediumPriorityScore = 0.4

	sampleSizeScale = 20.0
)

var (
	// ErrUnknownRecommendation is returned for feedback on an id the engine
	// never issued or has already evicted.
	ErrUnknownRecommendation = errors.New("unknown recommendation")
	// ErrDuplicateFeedback is returned when a recommendation was already rated.
	ErrDuplicateFeedback = errors.New("feedback already recorded for recommendation")
)

// RecommendationEngineConfig holds engine defaults.
type RecommendationEngineConfig struct {
	ConfidenceLevel   float64 `mapstructure:"confidence_level"`
	Iterations        int     `mapstructure:"iterations"`
	IssuedIndexSize   int     `mapstructure:"issued_index_size"`
	HistoryWeight     float64 `mapstructure:"history_weight"`
	HistorySaturation int     `mapstructure:"history_saturation"`
	ImpactSpread      float64 `mapstructure:"impact_spread"`
	Seed              uint64  `mapstructure:"seed"`
}

// GenerateOptions narrows and bounds one generation run.
type GenerateOptions struct {
	MinConfidence   float64           `json:"min_confidence"`
	Categories      []models.Category `json:"categories,omitempty"`
	MaxResults      int               `json:"max_results"`
	ConfidenceLevel float64           `json:"confidence_level,omitempty"`
	Iterations      int               `json:"iterations,omitempty"`
	// UserID owns the issued recommendations; only that user may rate them.
	UserID string `json:"-"`
	// Source overrides the engine's per-run random source.
	Source analytics.RandomSource `json:"-"`
}

// CategoryAccuracy is the feedback tally for one category.
type CategoryAccuracy struct {
	Accurate int `json:"accurate"`
	Total    int `json:"total"`
}

// Rate is the Laplace-smoothed accuracy, 0.5 without feedback.
func (a CategoryAccuracy) Rate() float64 {
	return (float64(a.Accurate) + 1) / (float64(a.Total) + 2)
}

type issuedRecommendation struct {
	userID   string
	category models.Category
	rated    bool
}

// RecommendationEngine ranks findings into recommendations. Generation is
// pure over its inputs apart from the calibration history, which only
// feedback changes and which only affects later runs.
type RecommendationEngine struct {
	cfg     RecommendationEngineConfig
	logger  *logrus.Logger
	metrics *metrics.Collectors
	now     func() time.Time

	mu       sync.RWMutex
	accuracy map[models.Category]CategoryAccuracy
	issued   *lru.Cache[string, issuedRecommendation]
	runs     atomic.Uint64
}

// NewRecommendationEngine creates an engine. collectors may be nil.
func NewRecommendationEngine(cfg RecommendationEngineConfig, logger *logrus.Logger, collectors *metrics.Collectors) (*RecommendationEngine, error) {
	if cfg.ConfidenceLevel <= 0 || cfg.ConfidenceLevel >= 1 {
		cfg.ConfidenceLevel = analytics.DefaultConfidenceLevel
	}
	if cfg.Iterations <= 0 {
		cfg.Iterations = analytics.DefaultIterations
	}
	cfg.Iterations = min(cfg.Iterations, analytics.MaxIterations)
	if cfg.IssuedIndexSize <= 0 {
		cfg.IssuedIndexSize = 10000
	}
	if cfg.HistoryWeight <= 0 || cfg.HistoryWeight >= 1 {
		cfg.HistoryWeight = 0.3
	}
	if cfg.HistorySaturation <= 0 {
		cfg.HistorySaturation = 10
	}
	if cfg.ImpactSpread <= 0 {
		cfg.ImpactSpread = 0.2
	}
	if logger == nil {
		logger = logrus.New()
	}
	if collectors == nil {
		collectors = metrics.NewNoop()
	}

	issued, err := lru.New[string, issuedRecommendation](cfg.IssuedIndexSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create issued recommendation index: %w", err)
	}

	return &RecommendationEngine{
		cfg:      cfg,
		logger:   logger,
		metrics:  collectors,
		now:      time.Now,
		accuracy: make(map[models.Category]CategoryAccuracy),
		issued:   issued,
	}, nil
}

// ConfidenceScore mixes data completeness, a sample size factor and, when
// there is feedback, the category's smoothed accuracy. The history weight
// grows with the amount of feedback up to historyWeight at saturation.
// The result saturates at the [0,1] edges.
func ConfidenceScore(f models.Finding, history CategoryAccuracy, historyWeight float64, saturation int) float64 {
	completeness := f.Completeness()
	sample := 1 - math.Exp(-float64(max(f.SampleSize, 0))/sampleSizeScale)

	if history.Total <= 0 {
		return clampUnit(0.5*completeness + 0.5*sample)
	}
	w := historyWeight * math.Min(1, float64(history.Total)/float64(saturation))
	rest := (1 - w) / 2
	return clampUnit(rest*completeness + rest*sample + w*history.Rate())
}

// PriorityScore is impact magnitude times confidence times the urgency factor.
func PriorityScore(impact, confidence float64, urgency models.Urgency) float64 {
	return impact * confidence * urgency.Factor()
}

// PriorityFor classifies a priority score. Both boundaries are inclusive
// on the higher side.
func PriorityFor(score float64) models.Priority {
	switch {
	case score >= HighPriorityScore:
		return models.PriorityHigh
	case score >= MediumPriorityScore:
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

// Generate turns findings into a ranked, deduplicated batch. Malformed
// findings are skipped with a diagnostic; Generate never fails as a whole.
// Iterations above analytics.MaxIterations are clamped.
func (e *RecommendationEngine) Generate(findings []models.Finding, opts GenerateOptions) *models.RecommendationBatch {
	level := opts.ConfidenceLevel
	if level <= 0 || level >= 1 {
		level = e.cfg.ConfidenceLevel
	}
	iterations := min(opts.Iterations, analytics.MaxIterations)
	if iterations <= 0 {
		iterations = e.cfg.Iterations
	}
	src := opts.Source
	if src == nil {
		src = analytics.NewSeededSource(e.cfg.Seed + e.runs.Add(1))
	}

	history := e.History()
	now := e.now()
	batch := &models.RecommendationBatch{
		Recommendations: []models.Recommendation{},
		Diagnostics:     []models.Diagnostic{},
		Considered:      len(findings),
		GeneratedAt:     now,
	}

	best := make(map[string]int)
	var generated []models.Recommendation
	for i, f := range findings {
		rec, err := e.recommend(f, history[f.Category], level, iterations, src, now)
		if err != nil {
			batch.Diagnostics = append(batch.Diagnostics, models.Diagnostic{
				Index:     i,
				FindingID: f.ID,
				Domain:    f.Domain,
				Reason:    err.Error(),
			})
			e.logger.WithFields(logrus.Fields{
				"finding_id": f.ID,
				"index":      i,
				"error":      err.Error(),
			}).Warn("Skipping malformed finding")
			continue
		}

		key := string(rec.Category) + "\x00" + rec.Subject
		if at, seen := best[key]; seen {
			if outranks(rec, generated[at]) {
				generated[at] = rec
			}
			continue
		}
		best[key] = len(generated)
		generated = append(generated, rec)
	}
	batch.Skipped = len(batch.Diagnostics)

	for _, rec := range generated {
		if rec.Confidence < opts.MinConfidence {
			continue
		}
		if len(opts.Categories) > 0 && !slices.Contains(opts.Categories, rec.Category) {
			continue
		}
		batch.Recommendations = append(batch.Recommendations, rec)
	}

	sort.SliceStable(batch.Recommendations, func(i, j int) bool {
		a, b := batch.Recommendations[i], batch.Recommendations[j]
		if a.Priority != b.Priority {
			return a.Priority.Rank() > b.Priority.Rank()
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.PriorityScore != b.PriorityScore {
			return a.PriorityScore > b.PriorityScore
		}
		return a.Title < b.Title
	})

	if opts.MaxResults > 0 && len(batch.Recommendations) > opts.MaxResults {
		batch.Recommendations = batch.Recommendations[:opts.MaxResults]
		batch.Truncated = true
	}

	for _, rec := range batch.Recommendations {
		e.issued.Add(rec.ID, issuedRecommendation{userID: opts.UserID, category: rec.Category})
		e.metrics.RecommendationsIssued.WithLabelValues(string(rec.Priority)).Inc()
	}
	e.metrics.FindingsSkipped.Add(float64(batch.Skipped))

	e.logger.WithFields(logrus.Fields{
		"considered": batch.Considered,
		"issued":     len(batch.Recommendations),
		"skipped":    batch.Skipped,
		"truncated":  batch.Truncated,
	}).Debug("Generated recommendations")

	return batch
}

func (e *RecommendationEngine) recommend(
	f models.Finding,
	history CategoryAccuracy,
	level float64,
	iterations int,
	src analytics.RandomSource,
	now time.Time,
) (models.Recommendation, error) {
	if err := f.Validate(); err != nil {
		return models.Recommendation{}, err
	}

	confidence := ConfidenceScore(f, history, e.cfg.HistoryWeight, e.cfg.HistorySaturation)
	score := PriorityScore(f.Severity, confidence, f.Urgency)
	impact, err := e.AssessImpact(f, level, iterations, src)
	if err != nil {
		return models.Recommendation{}, fmt.Errorf("impact assessment failed: %w", err)
	}

	return models.Recommendation{
		ID:            uuid.NewString(),
		FindingID:     f.ID,
		Domain:        f.Domain,
		Category:      f.Category,
		Subject:       f.Subject,
		Title:         cases.Title(language.English, cases.NoLower).String(f.Title),
		Confidence:    confidence,
		Priority:      PriorityFor(score),
		PriorityScore: score,
		Impact:        impact,
		Actions:       slices.Clone(f.Actions),
		CreatedAt:     now,
	}, nil
}

// AssessImpact simulates the finding's impact and orders the bands by
// impact type: for revenue worst <= likely <= best, for cost the reverse.
// Historical samples are bootstrapped when there are at least two,
// otherwise draws come from a normal around the expected impact.
func (e *RecommendationEngine) AssessImpact(f models.Finding, level float64, iterations int, src analytics.RandomSource) (models.ImpactAssessment, error) {
	params := analytics.NormalParams(f.ExpectedImpact, e.cfg.ImpactSpread*math.Abs(f.ExpectedImpact))
	if len(f.ImpactSamples) >= 2 {
		params = analytics.EmpiricalParams(f.ImpactSamples)
	}
	sim, err := analytics.MonteCarloSimulate(params, iterations, src)
	if err != nil {
		return models.ImpactAssessment{}, err
	}

	ciSamples := f.ImpactSamples
	if len(ciSamples) < 2 {
		ciSamples = sim.Draws
	}
	interval, err := analytics.ConfidenceInterval(ciSamples, level)
	if err != nil {
		return models.ImpactAssessment{}, err
	}
	half := analytics.FlooredHalfWidth(sim.P50, interval.Width()/2)

	impact := models.ImpactAssessment{
		ImpactType:             f.ImpactType,
		LikelyCase:             sim.P50,
		ConfidenceIntervalLow:  interval.Mean - half,
		ConfidenceIntervalHigh: interval.Mean + half,
		ConfidenceLevel:        interval.Level,
	}
	if f.ImpactType == models.ImpactCost {
		impact.WorstCase, impact.BestCase = sim.P95, sim.P5
	} else {
		impact.WorstCase, impact.BestCase = sim.P5, sim.P95
	}
	return impact, nil
}

// RecordFeedback updates the accuracy of the recommendation's category.
// Issued recommendations are never modified; only later runs see the new
// calibration. Feedback from a user other than the one the recommendation
// was issued to is treated as an unknown recommendation.
func (e *RecommendationEngine) RecordFeedback(userID string, fb models.Feedback) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.issued.Get(fb.RecommendationID)
	if !ok || entry.userID != userID {
		return fmt.Errorf("%w: %s", ErrUnknownRecommendation, fb.RecommendationID)
	}
	if entry.rated {
		return fmt.Errorf("%w: %s", ErrDuplicateFeedback, fb.RecommendationID)
	}
	entry.rated = true
	e.issued.Add(fb.RecommendationID, entry)

	acc := e.accuracy[entry.category]
	acc.Total++
	if fb.WasAccurate {
		acc.Accurate++
	}
	e.accuracy[entry.category] = acc

	e.metrics.FeedbackRecorded.WithLabelValues(string(entry.category), fmt.Sprint(fb.WasAccurate)).Inc()
	e.logger.WithFields(logrus.Fields{
		"recommendation_id": fb.RecommendationID,
		"user_id":           userID,
		"category":          entry.category,
		"accuracy":          acc.Rate(),
	}).Info("Recorded recommendation feedback")
	return nil
}

// SeedHistory merges previously persisted feedback tallies.
func (e *RecommendationEngine) SeedHistory(history map[models.Category]CategoryAccuracy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for cat, h := range history {
		acc := e.accuracy[cat]
		acc.Accurate += h.Accurate
		acc.Total += h.Total
		e.accuracy[cat] = acc
	}
}

// History returns a copy of the calibration tallies.
func (e *RecommendationEngine) History() map[models.Category]CategoryAccuracy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[models.Category]CategoryAccuracy, len(e.accuracy))
	for k, v := range e.accuracy {
		out[k] = v
	}
	return out
}

// outranks reports whether a should replace b as the variant kept for a
// (category, subject) pair.
func outranks(a, b models.Recommendation) bool {
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.PriorityScore > b.PriorityScore
}
