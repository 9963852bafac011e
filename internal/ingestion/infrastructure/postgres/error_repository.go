package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	ingestion "medasset-cloud/internal/ingestion/domain"
)

const defaultErrorTable = "error_events"

// ErrorRepository is the append-only Postgres sink for device error events.
type ErrorRepository struct {
	table string
}

// NewErrorRepository constructs a repository with the default table name.
func NewErrorRepository(opts ...ErrorOption) *ErrorRepository {
	repo := &ErrorRepository{table: defaultErrorTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// ErrorOption configures the repository.
type ErrorOption func(*ErrorRepository)

// WithErrorTable overrides the default table name.
func WithErrorTable(table string) ErrorOption {
	return func(repo *ErrorRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Insert appends one error event.
func (r *ErrorRepository) Insert(ctx context.Context, ex Execer, ev ingestion.ErrorEvent, ts time.Time) error {
	if r == nil || ex == nil {
		return errors.New("error sink: nil execer")
	}
	if ts.IsZero() {
		return errors.New("error sink: zero timestamp")
	}

	var sensorReadings any
	if len(ev.SensorReadings) > 0 {
		encoded, err := json.Marshal(ev.SensorReadings)
		if err != nil {
			return err
		}
		sensorReadings = encoded
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	time,
	asset_id,
	facility_id,
	error_code,
	message,
	category,
	severity,
	component,
	operation,
	sensor_readings,
	auto_recovered,
	requires_intervention,
	raw_payload
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
)`, r.table)

	_, err := ex.ExecContext(ctx, query,
		ts.UTC(),
		ev.AssetID,
		ev.FacilityID,
		ev.ErrorCode,
		nullString(ev.Message),
		nullString(ev.Category),
		nullString(ev.Severity),
		nullString(ev.Component),
		nullString(ev.Operation),
		sensorReadings,
		ev.AutoRecovered,
		ev.RequiresIntervention,
		rawPayloadArg(ev.RawPayload),
	)
	return err
}
