package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	assets "medasset-cloud/internal/assets/domain"
	ingestion "medasset-cloud/internal/ingestion/domain"
)

const defaultHealthTable = "asset_health_samples"

// HealthRepository stores health observations append-only. The newest sample
// per asset answers the "current health" question.
type HealthRepository struct {
	table string
}

// NewHealthRepository constructs a repository with the default table name.
func NewHealthRepository(opts ...HealthOption) *HealthRepository {
	repo := &HealthRepository{table: defaultHealthTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// HealthOption configures the repository.
type HealthOption func(*HealthRepository)

// WithHealthTable overrides the default table name.
func WithHealthTable(table string) HealthOption {
	return func(repo *HealthRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// InsertSample appends one health observation.
func (r *HealthRepository) InsertSample(ctx context.Context, ex Execer, sample assets.HealthSample) error {
	if r == nil || ex == nil {
		return errors.New("health repo: nil execer")
	}
	if sample.AssetID == "" || sample.ObservedAt.IsZero() {
		return errors.New("health repo: asset id and observed_at required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (asset_id, score, status, model_version, observed_at)
VALUES ($1, $2, $3, $4, $5)`, r.table)
	_, err := ex.ExecContext(ctx, query,
		sample.AssetID,
		sample.Score,
		string(sample.Status),
		nullIfEmpty(sample.ModelVersion),
		sample.ObservedAt.UTC(),
	)
	return err
}

// LatestHealth returns the most recent sample for an asset, or ErrNotFound.
func (r *HealthRepository) LatestHealth(ctx context.Context, ex Execer, assetID string) (*assets.HealthSample, error) {
	if r == nil || ex == nil {
		return nil, errors.New("health repo: nil execer")
	}
	if assetID == "" {
		return nil, errors.New("health repo: asset id required")
	}
	query := fmt.Sprintf(`
SELECT asset_id, score, status, COALESCE(model_version, ''), observed_at
FROM %s
WHERE asset_id = $1
ORDER BY observed_at DESC
LIMIT 1`, r.table)

	var (
		sample assets.HealthSample
		status string
	)
	err := ex.QueryRowContext(ctx, query, assetID).Scan(
		&sample.AssetID, &sample.Score, &status, &sample.ModelVersion, &sample.ObservedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, assets.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sample.Status = ingestion.HealthStatus(status)
	sample.ObservedAt = sample.ObservedAt.UTC()
	return &sample, nil
}

func nullIfEmpty(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
