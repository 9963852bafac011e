package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	assets "medasset-cloud/internal/assets/domain"
)

const defaultAssetStateTable = "asset_derived_state"

// Execer is the subset of database/sql methods the repositories need.
// Both *sql.DB and *sql.Tx satisfy it, so derived-state writes can join the
// transaction that persists the triggering raw event.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// AssetStateRepository persists the derived-state slice of asset records.
type AssetStateRepository struct {
	table string
}

// NewAssetStateRepository constructs a repository with the default table name.
func NewAssetStateRepository(opts ...AssetStateOption) *AssetStateRepository {
	repo := &AssetStateRepository{table: defaultAssetStateTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// AssetStateOption configures the repository.
type AssetStateOption func(*AssetStateRepository)

// WithAssetStateTable overrides the default table name.
func WithAssetStateTable(table string) AssetStateOption {
	return func(repo *AssetStateRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// UpdateLocation sets the asset's current room reference and last-seen time.
func (r *AssetStateRepository) UpdateLocation(ctx context.Context, ex Execer, assetID, locationID string, seenAt time.Time) error {
	if r == nil || ex == nil {
		return errors.New("asset state repo: nil execer")
	}
	if assetID == "" || locationID == "" {
		return errors.New("asset state repo: asset id and location id required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (asset_id, current_location_id, last_seen_at, updated_at)
VALUES ($1, $2, $3, $3)
ON CONFLICT (asset_id)
DO UPDATE SET
	current_location_id = EXCLUDED.current_location_id,
	last_seen_at = EXCLUDED.last_seen_at,
	updated_at = EXCLUDED.updated_at`, r.table)
	_, err := ex.ExecContext(ctx, query, assetID, locationID, seenAt.UTC())
	return err
}

// RecordPMCompleted sets last PM date to completedAt and the next due date
// intervalDays later.
func (r *AssetStateRepository) RecordPMCompleted(ctx context.Context, ex Execer, assetID string, completedAt time.Time, intervalDays int) error {
	if r == nil || ex == nil {
		return errors.New("asset state repo: nil execer")
	}
	if assetID == "" {
		return errors.New("asset state repo: asset id required")
	}
	if intervalDays <= 0 {
		return errors.New("asset state repo: pm interval must be positive")
	}
	completedAt = completedAt.UTC()
	nextDue := completedAt.AddDate(0, 0, intervalDays)
	query := fmt.Sprintf(`
INSERT INTO %s (asset_id, last_pm_date, next_pm_due_date, updated_at)
VALUES ($1, $2, $3, $2)
ON CONFLICT (asset_id)
DO UPDATE SET
	last_pm_date = EXCLUDED.last_pm_date,
	next_pm_due_date = EXCLUDED.next_pm_due_date,
	updated_at = EXCLUDED.updated_at`, r.table)
	_, err := ex.ExecContext(ctx, query, assetID, completedAt, nextDue)
	return err
}

// UpdateStatus sets the asset's operational status.
func (r *AssetStateRepository) UpdateStatus(ctx context.Context, ex Execer, assetID string, status assets.AssetStatus, at time.Time) error {
	if r == nil || ex == nil {
		return errors.New("asset state repo: nil execer")
	}
	if assetID == "" || status == "" {
		return errors.New("asset state repo: asset id and status required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (asset_id, status, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (asset_id)
DO UPDATE SET
	status = EXCLUDED.status,
	updated_at = EXCLUDED.updated_at`, r.table)
	_, err := ex.ExecContext(ctx, query, assetID, string(status), at.UTC())
	return err
}

// GetState loads the derived-state slice for one asset.
func (r *AssetStateRepository) GetState(ctx context.Context, ex Execer, assetID string) (*assets.State, error) {
	if r == nil || ex == nil {
		return nil, errors.New("asset state repo: nil execer")
	}
	if assetID == "" {
		return nil, errors.New("asset state repo: asset id required")
	}
	query := fmt.Sprintf(`
SELECT asset_id, current_location_id, last_seen_at, last_pm_date, next_pm_due_date, status, updated_at
FROM %s
WHERE asset_id = $1`, r.table)

	var (
		state      assets.State
		locationID sql.NullString
		lastSeen   sql.NullTime
		lastPM     sql.NullTime
		nextPM     sql.NullTime
		status     sql.NullString
	)
	err := ex.QueryRowContext(ctx, query, assetID).Scan(
		&state.AssetID, &locationID, &lastSeen, &lastPM, &nextPM, &status, &state.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, assets.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if locationID.Valid {
		state.CurrentLocationID = locationID.String
	}
	if lastSeen.Valid {
		ts := lastSeen.Time.UTC()
		state.LastSeenAt = &ts
	}
	if lastPM.Valid {
		ts := lastPM.Time.UTC()
		state.LastPMDate = &ts
	}
	if nextPM.Valid {
		ts := nextPM.Time.UTC()
		state.NextPMDueDate = &ts
	}
	if status.Valid {
		state.Status = assets.AssetStatus(status.String)
	}
	return &state, nil
}
