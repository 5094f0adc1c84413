package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-insights/internal/metrics"
	"github.com/irfndi/celebrum-insights/internal/models"
)

// DefaultSnapshotTTL bounds how long a cached snapshot is served.
const DefaultSnapshotTTL = 5 * time.Minute

// SnapshotCacheStats holds statistics about the snapshot cache.
type SnapshotCacheStats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Sets    int64 `json:"sets"`
	Errors  int64 `json:"errors"`
	Deletes int64 `json:"deletes"`
}

// SnapshotCache stores domain snapshots in Redis keyed by user, domain and
// window. Keys always include the user id, so one user's entries are never
// served to another.
type SnapshotCache struct {
	client  redis.Cmdable
	prefix  string
	ttl     time.Duration
	logger  *logrus.Logger
	metrics *metrics.Collectors
	mu      sync.Mutex
	stats   SnapshotCacheStats
}

// NewSnapshotCache creates a Redis-backed snapshot cache. logger and
// collectors may be nil.
func NewSnapshotCache(client redis.Cmdable, ttl time.Duration, logger *logrus.Logger, collectors *metrics.Collectors) *SnapshotCache {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	if logger == nil {
		logger = logrus.New()
	}
	if collectors == nil {
		collectors = metrics.NewNoop()
	}
	return &SnapshotCache{
		client:  client,
		prefix:  "snapshot:",
		ttl:     ttl,
		logger:  logger,
		metrics: collectors,
	}
}

// Key returns the Redis key of a snapshot.
func (c *SnapshotCache) Key(userID string, domain models.Domain, window models.TimeWindow) string {
	return fmt.Sprintf("%s%s:%s:%d-%d", c.prefix, userID, domain, window.From.Unix(), window.To.Unix())
}

// Get returns the cached snapshot. A miss returns (nil, false, nil).
func (c *SnapshotCache) Get(ctx context.Context, userID string, domain models.Domain, window models.TimeWindow) (*models.DomainData, bool, error) {
	key := c.Key(userID, domain, window)
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.record("get", "miss")
			return nil, false, nil
		}
		c.record("get", "error")
		return nil, false, fmt.Errorf("failed to read snapshot %s: %w", key, err)
	}

	var data models.DomainData
	if err := json.Unmarshal(val, &data); err != nil {
		// Corrupt entries are dropped and treated as a miss
		c.logger.WithFields(logrus.Fields{
			"key":   key,
			"error": err.Error(),
		}).Warn("Discarding undecodable snapshot")
		c.client.Del(ctx, key)
		c.record("get", "miss")
		return nil, false, nil
	}

	c.record("get", "hit")
	return &data, true, nil
}

// Set stores a snapshot for the window under the snapshot's own user and
// domain.
func (c *SnapshotCache) Set(ctx context.Context, data *models.DomainData, window models.TimeWindow) error {
	if data == nil {
		return errors.New("snapshot is nil")
	}
	payload, err := json.Marshal(data)
	if err != nil {
		c.record("set", "error")
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	key := c.Key(data.UserID, data.Domain, window)
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.record("set", "error")
		return fmt.Errorf("failed to write snapshot %s: %w", key, err)
	}
	c.record("set", "ok")
	return nil
}

// Invalidate removes every cached window of one user's domain.
func (c *SnapshotCache) Invalidate(ctx context.Context, userID string, domain models.Domain) (int64, error) {
	pattern := fmt.Sprintf("%s%s:%s:*", c.prefix, userID, domain)

	var removed int64
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		n, err := c.client.Del(ctx, iter.Val()).Result()
		if err != nil {
			c.record("delete", "error")
			return removed, fmt.Errorf("failed to delete snapshot: %w", err)
		}
		removed += n
	}
	if err := iter.Err(); err != nil {
		c.record("delete", "error")
		return removed, fmt.Errorf("failed to scan snapshots: %w", err)
	}
	c.record("delete", "ok")

	c.mu.Lock()
	c.stats.Deletes += removed
	c.mu.Unlock()
	return removed, nil
}

// GetStats returns a copy of the cache statistics.
func (c *SnapshotCache) GetStats() SnapshotCacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *SnapshotCache) record(operation, result string) {
	c.metrics.CacheOperations.WithLabelValues(operation, result).Inc()

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case result == "error":
		c.stats.Errors++
	case result == "hit":
		c.stats.Hits++
	case result == "miss":
		c.stats.Misses++
	case operation == "set":
		c.stats.Sets++
	}
}
