package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/celebrum-insights/internal/metrics"
	"github.com/irfndi/celebrum-insights/internal/models"
	"github.com/irfndi/celebrum-insights/internal/utils"
)

// VersionMultiplier separates the global counter from the per-scope
// sequence in an assigned version. Local sequences stay below it.
const VersionMultiplier int64 = 1_000_000

// MaxUpdateTypeLength bounds the length of an update type name.
const MaxUpdateTypeLength = 64

// ErrSequenceExhausted is returned when a scope's local sequence would reach
// VersionMultiplier.
var ErrSequenceExhausted = errors.New("live update sequence exhausted for scope")

var updateTypePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]*$`)

// Update types reported under their own metric label; any other valid type
// is counted as "other".
var labeledUpdateTypes = map[string]bool{
	"dashboard":       true,
	"recommendations": true,
	"alerts":          true,
}

func init() {
	for _, d := range models.AllDomains() {
		labeledUpdateTypes[string(d)] = true
	}
}

func updateTypeLabel(updateType string) string {
	if labeledUpdateTypes[updateType] {
		return updateType
	}
	return "other"
}

type versionScope struct {
	userID     string
	updateType string
}

// LiveUpdateVersioner assigns collision-free versions to live updates.
// Versions are strictly increasing per (user, update type) and unique across
// all scopes of one versioner.
type LiveUpdateVersioner struct {
	logger  *logrus.Logger
	metrics *metrics.Collectors
	now     func() time.Time

	mu     sync.Mutex
	global int64
	local  map[versionScope]int64
	last   map[versionScope]int64
}

// NewLiveUpdateVersioner creates a versioner with empty counters. logger and
// collectors may be nil.
func NewLiveUpdateVersioner(logger *logrus.Logger, collectors *metrics.Collectors) *LiveUpdateVersioner {
	if logger == nil {
		logger = logrus.New()
	}
	if collectors == nil {
		collectors = metrics.NewNoop()
	}
	return &LiveUpdateVersioner{
		logger:  logger,
		metrics: collectors,
		now:     time.Now,
		local:   make(map[versionScope]int64),
		last:    make(map[versionScope]int64),
	}
}

// AssignVersion allocates the next version for the scope. Allocation and
// increment happen in one critical section, so concurrent callers of the
// same scope always receive distinct, increasing versions.
func (v *LiveUpdateVersioner) AssignVersion(userID, updateType string) (int64, error) {
	if userID == "" {
		return 0, utils.NewValidationError("user_id", "user id is required")
	}
	if updateType == "" {
		return 0, utils.NewValidationError("update_type", "update type is required")
	}
	if len(updateType) > MaxUpdateTypeLength || !updateTypePattern.MatchString(updateType) {
		return 0, utils.NewValidationError("update_type",
			fmt.Sprintf("must be at most %d lower-case letters, digits, '_', '.' or '-'", MaxUpdateTypeLength))
	}
	scope := versionScope{userID: userID, updateType: updateType}

	v.mu.Lock()
	defer v.mu.Unlock()

	seq := v.local[scope] + 1
	if seq >= VersionMultiplier {
		return 0, fmt.Errorf("%w: %s/%s", ErrSequenceExhausted, userID, updateType)
	}
	v.global++
	v.local[scope] = seq

	version := v.global*VersionMultiplier + seq
	v.last[scope] = version
	return version, nil
}

// Stamp assigns a version and wraps the payload in an envelope.
func (v *LiveUpdateVersioner) Stamp(userID, updateType string, payload json.RawMessage) (models.LiveUpdateEnvelope, error) {
	version, err := v.AssignVersion(userID, updateType)
	if err != nil {
		return models.LiveUpdateEnvelope{}, err
	}
	v.metrics.LiveUpdatesStamped.WithLabelValues(updateTypeLabel(updateType)).Inc()

	v.logger.WithFields(logrus.Fields{
		"user_id":     userID,
		"update_type": updateType,
		"version":     version,
	}).Debug("Stamped live update")

	return models.LiveUpdateEnvelope{
		UserID:          userID,
		UpdateType:      updateType,
		Payload:         payload,
		AssignedVersion: version,
		IssuedAt:        v.now(),
	}, nil
}

// LastVersion returns the most recent version issued for the scope.
func (v *LiveUpdateVersioner) LastVersion(userID, updateType string) (int64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	version, ok := v.last[versionScope{userID: userID, updateType: updateType}]
	return version, ok
}

// Reset clears all counters.
func (v *LiveUpdateVersioner) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.global = 0
	v.local = make(map[versionScope]int64)
	v.last = make(map[versionScope]int64)
}
