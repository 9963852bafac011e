package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	ingestion "medasset-cloud/internal/ingestion/domain"
)

const defaultRTLSTable = "rtls_events"

// RTLSRepository is the append-only Postgres sink for location pings.
type RTLSRepository struct {
	table string
}

// NewRTLSRepository constructs a repository with the default table name.
func NewRTLSRepository(opts ...RTLSOption) *RTLSRepository {
	repo := &RTLSRepository{table: defaultRTLSTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// RTLSOption configures the repository.
type RTLSOption func(*RTLSRepository)

// WithRTLSTable overrides the default table name.
func WithRTLSTable(table string) RTLSOption {
	return func(repo *RTLSRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Insert appends one location ping. Pings below the location-update
// confidence threshold are still persisted here.
func (r *RTLSRepository) Insert(ctx context.Context, ex Execer, ev ingestion.RTLSEvent, ts time.Time) error {
	if r == nil || ex == nil {
		return errors.New("rtls sink: nil execer")
	}
	if ts.IsZero() {
		return errors.New("rtls sink: zero timestamp")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	time,
	asset_id,
	facility_id,
	source_type,
	x,
	y,
	z,
	accuracy_m,
	confidence,
	location_id,
	raw_payload
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
)`, r.table)

	_, err := ex.ExecContext(ctx, query,
		ts.UTC(),
		ev.AssetID,
		ev.FacilityID,
		ev.SourceType,
		ev.X,
		ev.Y,
		nullFloat(ev.Z),
		nullFloat(ev.AccuracyM),
		nullFloat(ev.Confidence),
		nullString(ev.LocationID),
		rawPayloadArg(ev.RawPayload),
	)
	return err
}
