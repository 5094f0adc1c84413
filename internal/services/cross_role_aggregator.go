package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/irfndi/celebrum-insights/internal/metrics"
	"github.com/irfndi/celebrum-insights/internal/models"
	"github.com/irfndi/celebrum-insights/internal/observability"
	"github.com/irfndi/celebrum-insights/internal/utils"
)

const domainFetchOperation = "domain_fetch"

var (
	// ErrScopeViolation is recorded when a source returns data for another
	// user or another domain than requested.
	ErrScopeViolation = errors.New("domain data outside requested scope")
	// ErrInvalidAggregateRequest is returned before any fetch starts when
	// the request itself is malformed.
	ErrInvalidAggregateRequest = errors.New("invalid aggregate request")
)

// DomainSource supplies one domain's metrics for a user and window.
type DomainSource interface {
	Domain() models.Domain
	Fetch(ctx context.Context, userID string, window models.TimeWindow) (*models.DomainData, error)
}

// CrossRoleAggregatorConfig tunes the per-domain retry loop.
type CrossRoleAggregatorConfig struct {
	MaxRetries   int
	RetryDelay   time.Duration
	FetchTimeout time.Duration
	// Breaker enables one circuit breaker per user and domain when set.
	Breaker *CircuitBreakerConfig
}

// CrossRoleAggregator fetches every domain of a user concurrently and
// isolates each domain's failure from the others.
type CrossRoleAggregator struct {
	cfg     CrossRoleAggregatorConfig
	logger  *logrus.Logger
	metrics *metrics.Collectors
	erm     *ErrorRecoveryManager
	tracer  trace.Tracer
	now     func() time.Time
}

// NewCrossRoleAggregator creates an aggregator. collectors may be nil.
func NewCrossRoleAggregator(cfg CrossRoleAggregatorConfig, logger *logrus.Logger, collectors *metrics.Collectors) *CrossRoleAggregator {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 100 * time.Millisecond
	}
	if logger == nil {
		logger = logrus.New()
	}
	if collectors == nil {
		collectors = metrics.NewNoop()
	}

	erm := NewErrorRecoveryManager(logger)
	erm.RegisterRetryPolicy(domainFetchOperation, FixedDelayPolicy(cfg.MaxRetries, cfg.RetryDelay, utils.IsTransient))

	return &CrossRoleAggregator{
		cfg:     cfg,
		logger:  logger,
		metrics: collectors,
		erm:     erm,
		tracer:  observability.Tracer(),
		now:     time.Now,
	}
}

func breakerName(userID string, d models.Domain) string {
	return domainFetchOperation + ":" + string(d) + ":" + userID
}

// Breaker returns the circuit breaker guarding userID's fetches of domain d,
// or nil when breakers are disabled. Breakers are created on first use, so
// one user's failing source never trips another user's fetches.
func (a *CrossRoleAggregator) Breaker(userID string, d models.Domain) *CircuitBreaker {
	if a.cfg.Breaker == nil {
		return nil
	}
	return a.erm.CircuitBreakerFor(breakerName(userID, d), *a.cfg.Breaker)
}

// Aggregate fetches every source for userID concurrently and waits for all
// of them to settle. A failed domain is recorded in its DomainResult and
// sets PartialFailure; it never removes another domain's data.
//
// If ctx ends first, Aggregate returns ctx.Err(). Fetches already running
// are left to finish and their results are dropped.
func (a *CrossRoleAggregator) Aggregate(ctx context.Context, userID string, sources []DomainSource, window models.TimeWindow) (view *models.AggregatedView, err error) {
	if err := validateAggregateRequest(userID, sources, window); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanOpAggregate, "aggregate domains")
	defer func() { observability.FinishSpan(span, err) }()
	span.SetTag("domains", fmt.Sprint(len(sources)))

	start := a.now()
	results := make([]models.DomainResult, len(sources))
	fetchCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	for i, src := range sources {
		g.Go(func() error {
			results[i] = a.fetchDomain(fetchCtx, userID, src, window)
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		a.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"error":   ctx.Err().Error(),
		}).Warn("Aggregation abandoned by caller")
		return nil, ctx.Err()
	case <-done:
	}

	view = &models.AggregatedView{
		UserID:          userID,
		Window:          window,
		PerDomainResult: make(map[models.Domain]models.DomainResult, len(sources)),
		GeneratedAt:     a.now(),
	}
	for i, src := range sources {
		r := results[i]
		view.PerDomainResult[src.Domain()] = r
		outcome := "ok"
		if !r.OK() {
			view.PartialFailure = true
			outcome = string(r.Err.Kind)
		}
		a.metrics.DomainOutcomes.WithLabelValues(string(src.Domain()), outcome).Inc()
	}
	if view.PartialFailure {
		a.metrics.PartialFailures.Inc()
	}
	a.metrics.AggregateDuration.Observe(a.now().Sub(start).Seconds())

	a.logger.WithFields(logrus.Fields{
		"user_id":         userID,
		"domains":         len(sources),
		"failed":          len(view.Failed()),
		"partial_failure": view.PartialFailure,
	}).Info("Aggregated domain data")

	return view, nil
}

func validateAggregateRequest(userID string, sources []DomainSource, window models.TimeWindow) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidAggregateRequest)
	}
	if err := window.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAggregateRequest, err)
	}
	seen := make(map[models.Domain]bool, len(sources))
	for i, src := range sources {
		if src == nil {
			return fmt.Errorf("%w: source %d is nil", ErrInvalidAggregateRequest, i)
		}
		d := src.Domain()
		if !d.IsValid() {
			return fmt.Errorf("%w: source %d has unknown domain %q", ErrInvalidAggregateRequest, i, d)
		}
		if seen[d] {
			return fmt.Errorf("%w: duplicate source for domain %q", ErrInvalidAggregateRequest, d)
		}
		seen[d] = true
	}
	return nil
}

// fetchDomain runs one domain's fetch under the retry policy. Transient
// errors are retried; everything else settles immediately.
func (a *CrossRoleAggregator) fetchDomain(ctx context.Context, userID string, src DomainSource, window models.TimeWindow) models.DomainResult {
	domain := src.Domain()
	breaker := a.Breaker(userID, domain)

	ctx, span := a.tracer.Start(ctx, "fetch "+string(domain), trace.WithAttributes(
		attribute.String("insights.domain", string(domain)),
		attribute.String("insights.user_id", userID),
	))
	defer span.End()

	var data *models.DomainData
	result := a.erm.ExecuteWithRetry(ctx, domainFetchOperation, func(ctx context.Context, attempt int) error {
		if a.cfg.FetchTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, a.cfg.FetchTimeout)
			defer cancel()
		}

		fetch := func(ctx context.Context) error {
			d, err := src.Fetch(ctx, userID, window)
			if err != nil {
				return err
			}
			if err := checkScope(d, userID, domain); err != nil {
				return err
			}
			data = d
			return nil
		}

		var err error
		if breaker != nil {
			err = breaker.ExecuteClassified(ctx, fetch, utils.IsTransient)
		} else {
			err = fetch(ctx)
		}
		a.metrics.FetchAttempts.WithLabelValues(string(domain), attemptResult(err)).Inc()
		return err
	})

	span.SetAttributes(attribute.Int("insights.attempts", result.Attempts))
	if result.Success {
		span.SetStatus(codes.Ok, "")
		return models.DomainResult{Data: data, Attempts: result.Attempts}
	}

	kind := models.ErrorKindPermanent
	if utils.IsTransient(result.Error) {
		kind = models.ErrorKindTransient
	}
	span.RecordError(result.Error)
	span.SetStatus(codes.Error, string(kind))
	a.logger.WithFields(logrus.Fields{
		"user_id":  userID,
		"domain":   domain,
		"kind":     kind,
		"attempts": result.Attempts,
		"error":    result.Error.Error(),
	}).Warn("Domain fetch failed")
	if errors.Is(result.Error, ErrScopeViolation) {
		observability.CaptureExceptionWithTags(ctx, result.Error, map[string]string{
			"domain": string(domain),
		})
	}

	return models.DomainResult{
		Err:      &models.DomainError{Domain: domain, Kind: kind, Err: result.Error},
		Attempts: result.Attempts,
	}
}

// checkScope rejects data that does not belong to the requested user and
// domain, or whose payload is malformed.
func checkScope(d *models.DomainData, userID string, domain models.Domain) error {
	if d == nil {
		return fmt.Errorf("%s source returned no data", domain)
	}
	if d.UserID != userID {
		return fmt.Errorf("%w: %s source returned data for another user", ErrScopeViolation, domain)
	}
	if d.Domain != domain {
		return fmt.Errorf("%w: %s source returned %s data", ErrScopeViolation, domain, d.Domain)
	}
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%s source returned malformed data: %w", domain, err)
	}
	return nil
}

func attemptResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case utils.IsTransient(err):
		return string(models.ErrorKindTransient)
	default:
		return string(models.ErrorKindPermanent)
	}
}
