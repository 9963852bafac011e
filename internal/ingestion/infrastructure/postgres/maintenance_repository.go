package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	ingestion "medasset-cloud/internal/ingestion/domain"
)

const defaultMaintenanceTable = "maintenance_events"

// MaintenanceRepository is the append-only Postgres sink for maintenance events.
type MaintenanceRepository struct {
	table string
}

// NewMaintenanceRepository constructs a repository with the default table name.
func NewMaintenanceRepository(opts ...MaintenanceOption) *MaintenanceRepository {
	repo := &MaintenanceRepository{table: defaultMaintenanceTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// MaintenanceOption configures the repository.
type MaintenanceOption func(*MaintenanceRepository)

// WithMaintenanceTable overrides the default table name.
func WithMaintenanceTable(table string) MaintenanceOption {
	return func(repo *MaintenanceRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Insert appends one maintenance event.
func (r *MaintenanceRepository) Insert(ctx context.Context, ex Execer, ev ingestion.MaintenanceEvent, ts time.Time) error {
	if r == nil || ex == nil {
		return errors.New("maintenance sink: nil execer")
	}
	if ts.IsZero() {
		return errors.New("maintenance sink: zero timestamp")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	time,
	asset_id,
	facility_id,
	work_order_id,
	event_type,
	maintenance_type,
	failure,
	failure_type,
	failure_code,
	root_cause,
	parts_replaced,
	labor_hours,
	downtime_hours,
	cost,
	technician_id,
	notes,
	raw_payload
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
)`, r.table)

	_, err := ex.ExecContext(ctx, query,
		ts.UTC(),
		ev.AssetID,
		ev.FacilityID,
		nullString(ev.WorkOrderID),
		ev.EventType,
		nullString(ev.MaintenanceType),
		ev.Failure,
		nullString(ev.FailureType),
		nullString(ev.FailureCode),
		nullString(ev.RootCause),
		nullString(strings.Join(ev.PartsReplaced, ",")),
		nullFloat(ev.LaborHours),
		nullFloat(ev.DowntimeHours),
		nullFloat(ev.Cost),
		nullString(ev.TechnicianID),
		nullString(ev.Notes),
		rawPayloadArg(ev.RawPayload),
	)
	return err
}
