package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	ingestion "medasset-cloud/internal/ingestion/domain"
)

const defaultTelemetryTable = "asset_telemetry"

// TelemetryRepository is the append-only Postgres sink for telemetry events.
type TelemetryRepository struct {
	table string
}

// NewTelemetryRepository constructs a repository with the default table name.
func NewTelemetryRepository(opts ...TelemetryOption) *TelemetryRepository {
	repo := &TelemetryRepository{table: defaultTelemetryTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// TelemetryOption configures the repository.
type TelemetryOption func(*TelemetryRepository)

// WithTelemetryTable overrides the default table name.
func WithTelemetryTable(table string) TelemetryOption {
	return func(repo *TelemetryRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Insert appends one telemetry event verbatim. Never updates in place.
func (r *TelemetryRepository) Insert(ctx context.Context, ex Execer, ev ingestion.TelemetryEvent, ts time.Time) error {
	if r == nil || ex == nil {
		return errors.New("telemetry sink: nil execer")
	}
	if ts.IsZero() {
		return errors.New("telemetry sink: zero timestamp")
	}

	var (
		healthScore        sql.NullFloat64
		healthStatus       sql.NullString
		anomalyDetected    bool
		failureProbability sql.NullFloat64
		predictedFailure   sql.NullString
		timeToFailure      sql.NullFloat64
	)
	if ev.MLLabels != nil {
		healthScore = nullFloat(ev.MLLabels.HealthScore)
		healthStatus = nullString(ev.MLLabels.HealthStatus)
		anomalyDetected = ev.MLLabels.AnomalyDetected
		failureProbability = nullFloat(ev.MLLabels.FailureProbability)
		predictedFailure = nullString(ev.MLLabels.PredictedFailureType)
		timeToFailure = nullFloat(ev.MLLabels.TimeToFailureHours)
	}
	var (
		labelSource     sql.NullString
		labelConfidence sql.NullFloat64
		modelVersion    sql.NullString
	)
	if ev.LabelMetadata != nil {
		labelSource = nullString(ev.LabelMetadata.LabelSource)
		labelConfidence = nullFloat(ev.LabelMetadata.LabelConfidence)
		modelVersion = nullString(ev.LabelMetadata.ModelVersion)
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	time,
	asset_id,
	facility_id,
	asset_category,
	asset_type,
	department,
	risk_class,
	metric_name,
	metric_value,
	metric_unit,
	event_category,
	event_source,
	environment,
	severity,
	health_score,
	health_status,
	anomaly_detected,
	failure_probability,
	predicted_failure_type,
	time_to_failure_hours,
	label_source,
	label_confidence,
	model_version,
	trace_id,
	service_name,
	raw_payload
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
	$14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26
)`, r.table)

	_, err := ex.ExecContext(ctx, query,
		ts.UTC(),
		nullString(ev.AssetID),
		ev.FacilityID,
		nullString(ev.AssetCategory),
		nullString(ev.AssetType),
		nullString(ev.Department),
		nullString(ev.RiskClass),
		nullString(ev.MetricName),
		nullFloat(ev.Value),
		nullString(ev.Unit),
		nullString(ev.Category),
		nullString(ev.EventSource),
		ev.Environment,
		nullString(ev.Severity),
		healthScore,
		healthStatus,
		anomalyDetected,
		failureProbability,
		predictedFailure,
		timeToFailure,
		labelSource,
		labelConfidence,
		modelVersion,
		nullString(ev.TraceID),
		ev.ServiceName,
		rawPayloadArg(ev.RawPayload),
	)
	return err
}

// LoadRawPayload reads back the stored raw payload for one event row. Used by
// round-trip checks; the bytes must match what was submitted.
func (r *TelemetryRepository) LoadRawPayload(ctx context.Context, ex Execer, assetID string, ts time.Time) ([]byte, error) {
	if r == nil || ex == nil {
		return nil, errors.New("telemetry sink: nil execer")
	}
	query := fmt.Sprintf(`
SELECT raw_payload::text
FROM %s
WHERE asset_id = $1 AND time = $2
ORDER BY time DESC
LIMIT 1`, r.table)
	var payload sql.NullString
	if err := ex.QueryRowContext(ctx, query, assetID, ts.UTC()).Scan(&payload); err != nil {
		return nil, err
	}
	if !payload.Valid {
		return nil, nil
	}
	return []byte(payload.String), nil
}
