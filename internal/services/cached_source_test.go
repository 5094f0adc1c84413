package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-insights/internal/models"
	"github.com/irfndi/celebrum-insights/internal/utils"
)

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]*models.DomainData
	getErr  error
	setErr  error
	sets    int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: make(map[string]*models.DomainData)}
}

func storeKey(userID string, domain models.Domain) string {
	return userID + "/" + string(domain)
}

func (s *memoryStore) Get(_ context.Context, userID string, domain models.Domain, _ models.TimeWindow) (*models.DomainData, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	data, ok := s.entries[storeKey(userID, domain)]
	return data, ok, nil
}

func (s *memoryStore) Set(_ context.Context, data *models.DomainData, _ models.TimeWindow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets++
	if s.setErr != nil {
		return s.setErr
	}
	s.entries[storeKey(data.UserID, data.Domain)] = data
	return nil
}

func TestCachedSource_MissThenHit(t *testing.T) {
	source := &stubSource{domain: models.DomainFinance}
	store := newMemoryStore()
	cached := NewCachedSource(source, store, quietLogger())

	assert.Equal(t, models.DomainFinance, cached.Domain())

	first, err := cached.Fetch(context.Background(), "u1", testWindow)
	require.NoError(t, err)
	second, err := cached.Fetch(context.Background(), "u1", testWindow)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, int32(1), source.calls.Load())
	assert.Equal(t, 1, store.sets)
}

func TestCachedSource_StoreErrorsDoNotFailFetch(t *testing.T) {
	source := &stubSource{domain: models.DomainFinance}
	store := newMemoryStore()
	store.getErr = errors.New("redis down")
	store.setErr = errors.New("redis down")
	cached := NewCachedSource(source, store, quietLogger())

	data, err := cached.Fetch(context.Background(), "u1", testWindow)
	require.NoError(t, err)
	assert.Equal(t, "u1", data.UserID)
	assert.Equal(t, int32(1), source.calls.Load())
	assert.Equal(t, 1, store.sets)
}

func TestCachedSource_SourceErrorPassesThrough(t *testing.T) {
	source := &stubSource{
		domain: models.DomainFinance,
		fetch: func(context.Context, int, string) (*models.DomainData, error) {
			return nil, utils.Transient(errors.New("connection refused"))
		},
	}
	store := newMemoryStore()
	cached := NewCachedSource(source, store, quietLogger())

	_, err := cached.Fetch(context.Background(), "u1", testWindow)
	require.Error(t, err)
	assert.True(t, utils.IsTransient(err))
	assert.Zero(t, store.sets)
}

func TestCachedSource_IgnoresEntryForOtherScope(t *testing.T) {
	source := &stubSource{domain: models.DomainFinance}
	store := newMemoryStore()
	store.entries[storeKey("u1", models.DomainFinance)] = snapshotFor(models.DomainFinance, "someone-else")
	cached := NewCachedSource(source, store, quietLogger())

	data, err := cached.Fetch(context.Background(), "u1", testWindow)
	require.NoError(t, err)
	assert.Equal(t, "u1", data.UserID)
	assert.Equal(t, int32(1), source.calls.Load())
}

func TestWithCache(t *testing.T) {
	store := newMemoryStore()
	wrapped := WithCache(asSources(okSources()), store, nil)

	require.Len(t, wrapped, len(models.AllDomains()))
	for i, d := range models.AllDomains() {
		assert.Equal(t, d, wrapped[i].Domain())
		assert.IsType(t, &CachedSource{}, wrapped[i])
	}
}
