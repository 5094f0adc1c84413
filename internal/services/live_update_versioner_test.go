package services

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/celebrum-insights/internal/metrics"
	"github.com/irfndi/celebrum-insights/internal/utils"
)

func TestAssignVersion_Sequential(t *testing.T) {
	v := NewLiveUpdateVersioner(quietLogger(), nil)

	first, err := v.AssignVersion("u1", "dashboard")
	require.NoError(t, err)
	second, err := v.AssignVersion("u1", "dashboard")
	require.NoError(t, err)
	other, err := v.AssignVersion("u2", "dashboard")
	require.NoError(t, err)

	assert.Equal(t, 1*VersionMultiplier+1, first)
	assert.Equal(t, 2*VersionMultiplier+2, second)
	assert.Equal(t, 3*VersionMultiplier+1, other)

	last, ok := v.LastVersion("u1", "dashboard")
	assert.True(t, ok)
	assert.Equal(t, second, last)

	_, ok = v.LastVersion("u1", "alerts")
	assert.False(t, ok)
}

func TestAssignVersion_Validation(t *testing.T) {
	v := NewLiveUpdateVersioner(nil, nil)

	_, err := v.AssignVersion("", "dashboard")
	assert.ErrorIs(t, err, utils.ErrValidation)
	_, err = v.AssignVersion("u1", "")
	assert.ErrorIs(t, err, utils.ErrValidation)

	for _, bad := range []string{"Inventory", "stock levels", "-x", "a/b", strings.Repeat("a", MaxUpdateTypeLength+1)} {
		_, err = v.AssignVersion("u1", bad)
		assert.ErrorIs(t, err, utils.ErrValidation, bad)
	}
	_, err = v.AssignVersion("u1", strings.Repeat("a", MaxUpdateTypeLength))
	assert.NoError(t, err)
	_, err = v.AssignVersion("u1", "stock.level_v2-eu")
	assert.NoError(t, err)
}

func TestAssignVersion_ConcurrentSameScope(t *testing.T) {
	v := NewLiveUpdateVersioner(quietLogger(), nil)
	const workers, perWorker = 20, 50

	var mu sync.Mutex
	var all []int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var mine []int64
			for i := 0; i < perWorker; i++ {
				version, err := v.AssignVersion("u1", "dashboard")
				if !assert.NoError(t, err) {
					return
				}
				mine = append(mine, version)
			}
			for i := 1; i < len(mine); i++ {
				assert.Greater(t, mine[i], mine[i-1], "versions seen by one caller must increase")
			}
			mu.Lock()
			all = append(all, mine...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, all, workers*perWorker)
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	for i := 1; i < len(all); i++ {
		assert.NotEqual(t, all[i-1], all[i])
	}
	for i, version := range all {
		assert.Equal(t, int64(i+1), version%VersionMultiplier, "local sequence has no gaps")
	}
}

func TestAssignVersion_ConcurrentScopesNeverCollide(t *testing.T) {
	v := NewLiveUpdateVersioner(quietLogger(), nil)
	scopes := [][2]string{{"u1", "dashboard"}, {"u2", "dashboard"}, {"u1", "alerts"}, {"u3", "inventory"}}

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	for _, scope := range scopes {
		for w := 0; w < 5; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < 40; i++ {
					version, err := v.AssignVersion(scope[0], scope[1])
					if !assert.NoError(t, err) {
						return
					}
					mu.Lock()
					assert.False(t, seen[version], "version %d issued twice", version)
					seen[version] = true
					mu.Unlock()
				}
			}()
		}
	}
	wg.Wait()
	assert.Len(t, seen, len(scopes)*5*40)
}

func TestAssignVersion_Exhaustion(t *testing.T) {
	v := NewLiveUpdateVersioner(quietLogger(), nil)
	v.local[versionScope{userID: "u1", updateType: "dashboard"}] = VersionMultiplier - 2

	version, err := v.AssignVersion("u1", "dashboard")
	require.NoError(t, err)
	assert.Equal(t, VersionMultiplier+VersionMultiplier-1, version)

	_, err = v.AssignVersion("u1", "dashboard")
	assert.ErrorIs(t, err, ErrSequenceExhausted)

	_, err = v.AssignVersion("u2", "dashboard")
	assert.NoError(t, err, "other scopes are unaffected")
}

func TestStamp(t *testing.T) {
	collectors := metrics.New(prometheus.NewRegistry())
	v := NewLiveUpdateVersioner(quietLogger(), collectors)
	issued := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return issued }

	payload := json.RawMessage(`{"sku":"SKU-1","on_hand":4}`)
	env, err := v.Stamp("u1", "inventory", payload)
	require.NoError(t, err)

	assert.Equal(t, "u1", env.UserID)
	assert.Equal(t, "inventory", env.UpdateType)
	assert.JSONEq(t, string(payload), string(env.Payload))
	assert.Equal(t, VersionMultiplier+1, env.AssignedVersion)
	assert.Equal(t, issued, env.IssuedAt)
	assert.Equal(t, 1.0, testutil.ToFloat64(collectors.LiveUpdatesStamped.WithLabelValues("inventory")))

	_, err = v.Stamp("", "inventory", payload)
	assert.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(collectors.LiveUpdatesStamped.WithLabelValues("inventory")))
}

func TestStamp_BoundsMetricLabels(t *testing.T) {
	collectors := metrics.New(prometheus.NewRegistry())
	v := NewLiveUpdateVersioner(quietLogger(), collectors)

	for i := 0; i < 50; i++ {
		_, err := v.Stamp("u1", fmt.Sprintf("custom-%d", i), json.RawMessage(`{}`))
		require.NoError(t, err)
	}
	_, err := v.Stamp("u1", "dashboard", json.RawMessage(`{}`))
	require.NoError(t, err)

	assert.Equal(t, 2, testutil.CollectAndCount(collectors.LiveUpdatesStamped))
	assert.Equal(t, 50.0, testutil.ToFloat64(collectors.LiveUpdatesStamped.WithLabelValues("other")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collectors.LiveUpdatesStamped.WithLabelValues("dashboard")))
}

func TestReset(t *testing.T) {
	v := NewLiveUpdateVersioner(quietLogger(), nil)
	for i := 0; i < 3; i++ {
		_, err := v.AssignVersion("u1", "dashboard")
		require.NoError(t, err)
	}

	v.Reset()
	_, ok := v.LastVersion("u1", "dashboard")
	assert.False(t, ok)

	version, err := v.AssignVersion("u1", "dashboard")
	require.NoError(t, err)
	assert.Equal(t, VersionMultiplier+1, version)
}
