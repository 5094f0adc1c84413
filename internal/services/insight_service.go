package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-insights/internal/models"
	"github.com/irfndi/celebrum-insights/internal/observability"
)

// Notifier delivers issued recommendations to a user.
type Notifier interface {
	NotifyRecommendations(ctx context.Context, userID string, recs []models.Recommendation) error
}

// Dashboard is the cross-domain view of one user with its ranked
// recommendations.
type Dashboard struct {
	UserID          string                  `json:"user_id"`
	View            *models.AggregatedView  `json:"view"`
	Recommendations []models.Recommendation `json:"recommendations"`
	Diagnostics     []models.Diagnostic     `json:"diagnostics"`
	Truncated       bool                    `json:"truncated"`
	GeneratedAt     time.Time               `json:"generated_at"`
}

// InsightService wires the aggregator, the domain analyzers and the
// recommendation engine together.
type InsightService struct {
	aggregator *CrossRoleAggregator
	engine     *RecommendationEngine
	sources    []DomainSource
	analyzers  map[models.Domain]DomainAnalyzer
	notifier   Notifier
	logger     *logrus.Logger
}

// NewInsightService creates an insight service. When analyzers is nil the
// default analyzer of every domain is used.
func NewInsightService(
	aggregator *CrossRoleAggregator,
	engine *RecommendationEngine,
	sources []DomainSource,
	analyzers map[models.Domain]DomainAnalyzer,
	logger *logrus.Logger,
) *InsightService {
	if analyzers == nil {
		analyzers = DefaultAnalyzers()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &InsightService{
		aggregator: aggregator,
		engine:     engine,
		sources:    sources,
		analyzers:  analyzers,
		logger:     logger,
	}
}

// SetNotifier enables delivery of high-priority recommendations after each
// dashboard run.
func (s *InsightService) SetNotifier(n Notifier) {
	s.notifier = n
}

// Dashboard aggregates every configured source for userID, analyzes the
// domains that succeeded and ranks the findings. Failed domains show up in
// View; they never block the others.
func (s *InsightService) Dashboard(ctx context.Context, userID string, window models.TimeWindow, opts GenerateOptions) (*Dashboard, error) {
	view, err := s.aggregator.Aggregate(ctx, userID, s.sources, window)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate domains: %w", err)
	}

	data := make([]models.DomainData, 0, len(view.PerDomainResult))
	for _, d := range view.Succeeded() {
		data = append(data, *d)
	}
	opts.UserID = userID
	batch := s.Analyze(ctx, data, opts)

	dashboard := &Dashboard{
		UserID:          userID,
		View:            view,
		Recommendations: batch.Recommendations,
		Diagnostics:     batch.Diagnostics,
		Truncated:       batch.Truncated,
		GeneratedAt:     batch.GeneratedAt,
	}

	if s.notifier != nil {
		urgent := highPriority(batch.Recommendations)
		if len(urgent) > 0 {
			go s.notify(context.WithoutCancel(ctx), userID, urgent)
		}
	}
	return dashboard, nil
}

// Analyze runs the matching analyzer over each snapshot and ranks the
// combined findings. A snapshot without an analyzer, or whose analyzer
// fails, adds a diagnostic with Index -1.
func (s *InsightService) Analyze(ctx context.Context, data []models.DomainData, opts GenerateOptions) *models.RecommendationBatch {
	_, span := observability.StartSpan(ctx, observability.SpanOpAnalyze, "analyze domains")
	defer observability.FinishSpan(span, nil)

	var findings []models.Finding
	var failures []models.Diagnostic
	for i := range data {
		d := &data[i]
		analyzer, ok := s.analyzers[d.Domain]
		if !ok {
			failures = append(failures, models.Diagnostic{
				Index:  -1,
				Domain: d.Domain,
				Reason: fmt.Sprintf("no analyzer for domain %q", d.Domain),
			})
			continue
		}

		found, err := RunAnalyzer(analyzer, d)
		if err != nil {
			s.logger.WithFields(logrus.Fields{
				"user_id": d.UserID,
				"domain":  d.Domain,
				"error":   err.Error(),
			}).Warn("Domain analysis failed")
			failures = append(failures, models.Diagnostic{
				Index:  -1,
				Domain: d.Domain,
				Reason: err.Error(),
			})
			continue
		}
		findings = append(findings, found...)
	}

	batch := s.engine.Generate(findings, opts)
	batch.Diagnostics = append(batch.Diagnostics, failures...)
	return batch
}

// RecordFeedback forwards userID's calibration feedback to the engine.
func (s *InsightService) RecordFeedback(userID string, fb models.Feedback) error {
	return s.engine.RecordFeedback(userID, fb)
}

func (s *InsightService) notify(ctx context.Context, userID string, recs []models.Recommendation) {
	ctx, span := observability.StartSpan(ctx, observability.SpanOpNotification, "notify recommendations")
	err := s.notifier.NotifyRecommendations(ctx, userID, recs)
	observability.FinishSpan(span, err)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"count":   len(recs),
			"error":   err.Error(),
		}).Error("Failed to send recommendation notification")
	}
}

func highPriority(recs []models.Recommendation) []models.Recommendation {
	var out []models.Recommendation
	for _, r := range recs {
		if r.Priority == models.PriorityHigh {
			out = append(out, r)
		}
	}
	return out
}
