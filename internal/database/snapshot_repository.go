package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/irfndi/celebrum-insights/internal/models"
	"github.com/irfndi/celebrum-insights/internal/utils"
)

// ErrSnapshotNotFound is returned when no snapshot exists for the scope.
var ErrSnapshotNotFound = errors.New("domain snapshot not found")

// DatabasePool defines the interface for database pool operations.
// This interface allows for both real pool and mock pool implementations.
type DatabasePool interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// SnapshotRepository reads and writes domain snapshots stored as JSON in
// the domain_snapshots table.
type SnapshotRepository struct {
	pool DatabasePool
}

// NewSnapshotRepository creates a new snapshot repository.
func NewSnapshotRepository(pool DatabasePool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

// LatestSnapshot returns the most recent snapshot of domain captured inside
// window for userID.
func (r *SnapshotRepository) LatestSnapshot(ctx context.Context, userID string, domain models.Domain, window models.TimeWindow) (*models.DomainData, error) {
	query := `
		SELECT payload, captured_at
		FROM domain_snapshots
		WHERE user_id = $1 AND domain = $2 AND captured_at >= $3 AND captured_at < $4
		ORDER BY captured_at DESC
		LIMIT 1
	`

	var payload []byte
	var capturedAt time.Time
	err := r.pool.QueryRow(ctx, query, userID, string(domain), window.From, window.To).Scan(&payload, &capturedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s/%s", ErrSnapshotNotFound, userID, domain)
		}
		return nil, ClassifyError(fmt.Errorf("failed to load %s snapshot: %w", domain, err))
	}

	var data models.DomainData
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, fmt.Errorf("failed to decode %s snapshot: %w", domain, err)
	}
	// Row columns are authoritative over the stored payload
	data.UserID = userID
	data.Domain = domain
	data.CapturedAt = capturedAt
	return &data, nil
}

// SaveSnapshot stores a snapshot.
func (r *SnapshotRepository) SaveSnapshot(ctx context.Context, data *models.DomainData) error {
	if err := data.Validate(); err != nil {
		return err
	}
	if data.UserID == "" {
		return utils.NewValidationError("user_id", "user id is required")
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	capturedAt := data.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO domain_snapshots (user_id, domain, captured_at, payload)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.pool.Exec(ctx, query, data.UserID, string(data.Domain), capturedAt, payload); err != nil {
		return ClassifyError(fmt.Errorf("failed to save %s snapshot: %w", data.Domain, err))
	}
	return nil
}

// SnapshotSource serves one domain from the snapshot repository.
type SnapshotSource struct {
	repo   *SnapshotRepository
	domain models.Domain
}

// NewSnapshotSource creates a source for domain.
func NewSnapshotSource(repo *SnapshotRepository, domain models.Domain) *SnapshotSource {
	return &SnapshotSource{repo: repo, domain: domain}
}

// SnapshotSources returns one source per domain.
func SnapshotSources(repo *SnapshotRepository) []*SnapshotSource {
	domains := models.AllDomains()
	out := make([]*SnapshotSource, len(domains))
	for i, d := range domains {
		out[i] = NewSnapshotSource(repo, d)
	}
	return out
}

func (s *SnapshotSource) Domain() models.Domain {
	return s.domain
}

func (s *SnapshotSource) Fetch(ctx context.Context, userID string, window models.TimeWindow) (*models.DomainData, error) {
	return s.repo.LatestSnapshot(ctx, userID, s.domain, window)
}

// Postgres error classes worth retrying: connection exceptions, transaction
// rollbacks, insufficient resources and operator intervention.
var transientSQLStatePrefixes = []string{"08", "40", "53", "57P"}

// ClassifyError marks connection-level and retryable server errors as
// transient. Anything else, such as permission or syntax errors, is left
// permanent.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		for _, prefix := range transientSQLStatePrefixes {
			if strings.HasPrefix(pgErr.Code, prefix) {
				return utils.Transient(err)
			}
		}
		return err
	}

	var netErr net.Error
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) || errors.As(err, &netErr) {
		return utils.Transient(err)
	}
	return err
}
