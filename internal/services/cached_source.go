package services

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-insights/internal/models"
)

// SnapshotStore caches domain snapshots per user, domain and window.
type SnapshotStore interface {
	Get(ctx context.Context, userID string, domain models.Domain, window models.TimeWindow) (*models.DomainData, bool, error)
	Set(ctx context.Context, data *models.DomainData, window models.TimeWindow) error
}

// CachedSource serves snapshots from a store and falls back to the wrapped
// source on a miss. Cache errors are logged and never fail a fetch; source
// errors pass through unchanged so retry classification still applies.
type CachedSource struct {
	source DomainSource
	store  SnapshotStore
	logger *logrus.Logger
}

// NewCachedSource wraps source with store.
func NewCachedSource(source DomainSource, store SnapshotStore, logger *logrus.Logger) *CachedSource {
	if logger == nil {
		logger = logrus.New()
	}
	return &CachedSource{source: source, store: store, logger: logger}
}

// WithCache wraps every source with the same store.
func WithCache(sources []DomainSource, store SnapshotStore, logger *logrus.Logger) []DomainSource {
	out := make([]DomainSource, len(sources))
	for i, src := range sources {
		out[i] = NewCachedSource(src, store, logger)
	}
	return out
}

func (s *CachedSource) Domain() models.Domain {
	return s.source.Domain()
}

func (s *CachedSource) Fetch(ctx context.Context, userID string, window models.TimeWindow) (*models.DomainData, error) {
	domain := s.source.Domain()

	cached, ok, err := s.store.Get(ctx, userID, domain, window)
	switch {
	case err != nil:
		s.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"domain":  domain,
			"error":   err.Error(),
		}).Warn("Snapshot cache read failed")
	case ok && cached.UserID == userID && cached.Domain == domain:
		return cached, nil
	}

	data, err := s.source.Fetch(ctx, userID, window)
	if err != nil {
		return nil, err
	}

	if err := s.store.Set(ctx, data, window); err != nil {
		s.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"domain":  domain,
			"error":   err.Error(),
		}).Warn("Snapshot cache write failed")
	}
	return data, nil
}
