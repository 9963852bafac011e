package integration_test

import (
	"bytes"
	"context"
	"database/sql"
	"log"
	"os"
	"testing"
	"time"

	assets "medasset-cloud/internal/assets/domain"
	assetpg "medasset-cloud/internal/assets/infrastructure/postgres"
	"medasset-cloud/internal/ingestion/application"
	ingestion "medasset-cloud/internal/ingestion/domain"
	ingestpg "medasset-cloud/internal/ingestion/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var ingestTables = []string{
	"asset_telemetry",
	"rtls_events",
	"maintenance_events",
	"error_events",
	"asset_derived_state",
	"asset_health_samples",
}

func openIngestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	for _, table := range ingestTables {
		if !tableExists(db, table) {
			t.Skipf("missing table %s; run migrations", table)
		}
	}
	return db
}

func cleanAsset(t *testing.T, db *sql.DB, assetID string) {
	t.Helper()
	ctx := context.Background()
	for _, table := range ingestTables {
		if _, err := db.ExecContext(ctx, "DELETE FROM "+table+" WHERE asset_id = $1", assetID); err != nil {
			t.Fatalf("clean %s: %v", table, err)
		}
	}
}

func newIngestService(t *testing.T, db *sql.DB) *application.Service {
	t.Helper()
	logger := log.New(os.Stdout, "", log.LstdFlags)
	derived, err := application.NewDerivedStateUpdater(
		assetpg.NewAssetStateRepository(),
		assetpg.NewHealthRepository(),
		logger,
	)
	if err != nil {
		t.Fatalf("new derived updater: %v", err)
	}
	service, err := application.NewService(db, application.Sinks{
		Telemetry:   ingestpg.NewTelemetryRepository(),
		RTLS:        ingestpg.NewRTLSRepository(),
		Maintenance: ingestpg.NewMaintenanceRepository(),
		Errors:      ingestpg.NewErrorRepository(),
	}, derived, logger)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func TestTelemetry_RawPayloadRoundTrip(t *testing.T) {
	db := openIngestDB(t)
	const assetID = "it-raw-asset"
	cleanAsset(t, db, assetID)

	// non-canonical key order and embedded spacing survive only if the stored
	// column keeps the received text verbatim
	raw := []byte(`{"zeta": 1, "alpha": {"nested": [3, 2, 1]},  "flag": true}`)
	ev := ingestion.TelemetryEvent{
		Timestamp:   "2026-03-10T09:00:00.25Z",
		FacilityID:  "facility-it",
		ServiceName: "device-gateway",
		Environment: "test",
		MetricName:  "asset.infusion_pump.pressure.psi",
		Value:       fp(12.5),
		AssetID:     assetID,
		RawPayload:  raw,
	}

	service := newIngestService(t, db)
	if err := service.IngestTelemetry(context.Background(), ev); err != nil {
		t.Fatalf("ingest telemetry: %v", err)
	}

	ts, err := ingestion.ParseEventTime(ev.Timestamp)
	if err != nil {
		t.Fatalf("parse ts: %v", err)
	}
	stored, err := ingestpg.NewTelemetryRepository().LoadRawPayload(context.Background(), db, assetID, ts)
	if err != nil {
		t.Fatalf("load raw payload: %v", err)
	}
	if !bytes.Equal(stored, raw) {
		t.Fatalf("raw payload not byte-identical:\n got %s\nwant %s", stored, raw)
	}
}

func TestMaintenance_PMCompletedAdvancesDueDate(t *testing.T) {
	db := openIngestDB(t)
	const assetID = "it-pm-asset"
	cleanAsset(t, db, assetID)

	service := newIngestService(t, db)
	ev := ingestion.MaintenanceEvent{
		Timestamp:  "2026-03-10T09:00:00Z",
		AssetID:    assetID,
		FacilityID: "facility-it",
		EventType:  ingestion.PMCompletedEventType,
	}
	if err := service.IngestMaintenance(context.Background(), ev); err != nil {
		t.Fatalf("ingest maintenance: %v", err)
	}

	state, err := assetpg.NewAssetStateRepository().GetState(context.Background(), db, assetID)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.LastPMDate == nil || state.NextPMDueDate == nil {
		t.Fatalf("expected PM dates set, got %+v", state)
	}
	gap := state.NextPMDueDate.Sub(*state.LastPMDate)
	if gap < 89*24*time.Hour || gap > 91*24*time.Hour {
		t.Fatalf("expected ~90 day PM cycle, got %s", gap)
	}
}

func TestRTLS_ConfidenceGateAgainstDatabase(t *testing.T) {
	db := openIngestDB(t)
	const assetID = "it-rtls-asset"
	cleanAsset(t, db, assetID)

	service := newIngestService(t, db)
	ctx := context.Background()

	low := ingestion.RTLSEvent{
		Timestamp:  "2026-03-10T09:00:00Z",
		AssetID:    assetID,
		FacilityID: "facility-it",
		SourceType: "ble",
		Confidence: fp(0.4),
		LocationID: "room-low",
	}
	if err := service.IngestRTLS(ctx, low); err != nil {
		t.Fatalf("ingest low-confidence rtls: %v", err)
	}
	if _, err := assetpg.NewAssetStateRepository().GetState(ctx, db, assetID); err == nil {
		t.Fatal("low-confidence ping must not create derived state")
	}

	high := low
	high.Confidence = fp(0.92)
	high.LocationID = "room-1204"
	if err := service.IngestRTLS(ctx, high); err != nil {
		t.Fatalf("ingest high-confidence rtls: %v", err)
	}
	state, err := assetpg.NewAssetStateRepository().GetState(ctx, db, assetID)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.CurrentLocationID != "room-1204" || state.LastSeenAt == nil {
		t.Fatalf("expected location update, got %+v", state)
	}

	var pings int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rtls_events WHERE asset_id = $1", assetID).Scan(&pings); err != nil {
		t.Fatalf("count pings: %v", err)
	}
	if pings != 2 {
		t.Fatalf("both pings must be persisted, got %d", pings)
	}
}

func TestError_CriticalConditionQuarantines(t *testing.T) {
	db := openIngestDB(t)
	const assetID = "it-error-asset"
	cleanAsset(t, db, assetID)

	ctx := context.Background()
	healthRepo := assetpg.NewHealthRepository()
	if err := healthRepo.InsertSample(ctx, db, assets.HealthSample{
		AssetID:    assetID,
		Score:      12,
		Status:     ingestion.HealthCritical,
		ObservedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed health sample: %v", err)
	}

	service := newIngestService(t, db)
	ev := ingestion.ErrorEvent{
		Timestamp:            "2026-03-10T09:00:00Z",
		AssetID:              assetID,
		FacilityID:           "facility-it",
		ErrorCode:            "E-221",
		Severity:             ingestion.SeverityCritical,
		RequiresIntervention: true,
	}
	if err := service.IngestError(ctx, ev); err != nil {
		t.Fatalf("ingest error: %v", err)
	}

	state, err := assetpg.NewAssetStateRepository().GetState(ctx, db, assetID)
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.Status != assets.StatusQuarantined {
		t.Fatalf("expected quarantined, got %q", state.Status)
	}
}

func fp(v float64) *float64 { return &v }

func tableExists(db *sql.DB, table string) bool {
	var exists bool
	err := db.QueryRow(`
SELECT EXISTS (
	SELECT 1
	FROM information_schema.tables
	WHERE table_schema = 'public' AND table_name = $1
)`, table).Scan(&exists)
	if err != nil {
		return false
	}
	return exists
}
