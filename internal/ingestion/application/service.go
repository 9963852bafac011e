package application

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"medasset-cloud/internal/eventing"
	appevents "medasset-cloud/internal/ingestion/application/events"
	ingestion "medasset-cloud/internal/ingestion/domain"
	ingestpg "medasset-cloud/internal/ingestion/infrastructure/postgres"
	"medasset-cloud/internal/observability/metrics"
)

// TelemetrySink persists raw telemetry events.
type TelemetrySink interface {
	Insert(ctx context.Context, ex ingestpg.Execer, ev ingestion.TelemetryEvent, ts time.Time) error
}

// RTLSSink persists raw location pings.
type RTLSSink interface {
	Insert(ctx context.Context, ex ingestpg.Execer, ev ingestion.RTLSEvent, ts time.Time) error
}

// MaintenanceSink persists raw maintenance records.
type MaintenanceSink interface {
	Insert(ctx context.Context, ex ingestpg.Execer, ev ingestion.MaintenanceEvent, ts time.Time) error
}

// ErrorSink persists raw device fault reports.
type ErrorSink interface {
	Insert(ctx context.Context, ex ingestpg.Execer, ev ingestion.ErrorEvent, ts time.Time) error
}

// Sinks bundles the per-stream raw-event repositories.
type Sinks struct {
	Telemetry   TelemetrySink
	RTLS        RTLSSink
	Maintenance MaintenanceSink
	Errors      ErrorSink
}

// EventPublisher emits integration events after commit.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// ValidationError reports a rejected event. Nothing was persisted.
type ValidationError struct {
	Stream ingestion.Stream
	Result ingestion.ValidationResult
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s event failed validation with %d error(s)", e.Stream, len(e.Result.Errors))
}

// Service ingests device events: validate, persist the raw record and apply
// derived asset-state updates in one transaction, then publish.
type Service struct {
	db               *sql.DB
	sinks            Sinks
	derived          *DerivedStateUpdater
	publisher        EventPublisher
	logger           *log.Logger
	batchConcurrency int
	maxBatchSize     int
}

// NewService constructs the ingestion service.
func NewService(db *sql.DB, sinks Sinks, derived *DerivedStateUpdater, logger *log.Logger, opts ...ServiceOption) (*Service, error) {
	if sinks.Telemetry == nil || sinks.RTLS == nil || sinks.Maintenance == nil || sinks.Errors == nil {
		return nil, errors.New("ingestion service: all sinks required")
	}
	if derived == nil {
		return nil, errors.New("ingestion service: nil derived updater")
	}
	if logger == nil {
		logger = log.Default()
	}
	service := &Service{
		db:               db,
		sinks:            sinks,
		derived:          derived,
		logger:           logger,
		batchConcurrency: 8,
		maxBatchSize:     1000,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// ServiceOption configures the service.
type ServiceOption func(*Service)

// WithPublisher attaches a post-commit event publisher.
func WithPublisher(publisher EventPublisher) ServiceOption {
	return func(s *Service) {
		s.publisher = publisher
	}
}

// WithBatchConcurrency sets the batch fan-out width.
func WithBatchConcurrency(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.batchConcurrency = n
		}
	}
}

// WithMaxBatchSize sets the largest accepted batch.
func WithMaxBatchSize(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxBatchSize = n
		}
	}
}

// IngestTelemetry validates and persists one telemetry event.
func (s *Service) IngestTelemetry(ctx context.Context, ev ingestion.TelemetryEvent) error {
	result := ingestion.ValidateTelemetryEvent(ev)
	metrics.AddValidationFindings(string(ingestion.StreamTelemetry), len(result.Errors), len(result.Warnings))
	if !result.Valid {
		return &ValidationError{Stream: ingestion.StreamTelemetry, Result: result}
	}
	ts, err := ingestion.ParseEventTime(ev.Timestamp)
	if err != nil {
		return err
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.sinks.Telemetry.Insert(ctx, tx, ev, ts); err != nil {
			return fmt.Errorf("insert telemetry: %w", err)
		}
		return s.derived.ApplyTelemetry(ctx, tx, ev)
	})
	if err != nil {
		metrics.IncIngestError(string(ingestion.StreamTelemetry), "persist")
		s.logger.Printf("telemetry ingest failed for asset %q: %v", ev.AssetID, err)
		return err
	}
	s.publishIngested(ctx, ingestion.StreamTelemetry, ev.AssetID, ev.FacilityID, ts)
	return nil
}

// IngestRTLS validates and persists one location ping.
func (s *Service) IngestRTLS(ctx context.Context, ev ingestion.RTLSEvent) error {
	result := ingestion.ValidateRTLSEvent(ev)
	metrics.AddValidationFindings(string(ingestion.StreamRTLS), len(result.Errors), len(result.Warnings))
	if !result.Valid {
		return &ValidationError{Stream: ingestion.StreamRTLS, Result: result}
	}
	ts, err := ingestion.ParseEventTime(ev.Timestamp)
	if err != nil {
		return err
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.sinks.RTLS.Insert(ctx, tx, ev, ts); err != nil {
			return fmt.Errorf("insert rtls: %w", err)
		}
		return s.derived.ApplyRTLS(ctx, tx, ev)
	})
	if err != nil {
		metrics.IncIngestError(string(ingestion.StreamRTLS), "persist")
		s.logger.Printf("rtls ingest failed for asset %q: %v", ev.AssetID, err)
		return err
	}
	s.publishIngested(ctx, ingestion.StreamRTLS, ev.AssetID, ev.FacilityID, ts)
	return nil
}

// IngestMaintenance validates and persists one maintenance record.
func (s *Service) IngestMaintenance(ctx context.Context, ev ingestion.MaintenanceEvent) error {
	result := ingestion.ValidateMaintenanceEvent(ev)
	metrics.AddValidationFindings(string(ingestion.StreamMaintenance), len(result.Errors), len(result.Warnings))
	if !result.Valid {
		return &ValidationError{Stream: ingestion.StreamMaintenance, Result: result}
	}
	ts, err := ingestion.ParseEventTime(ev.Timestamp)
	if err != nil {
		return err
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.sinks.Maintenance.Insert(ctx, tx, ev, ts); err != nil {
			return fmt.Errorf("insert maintenance: %w", err)
		}
		return s.derived.ApplyMaintenance(ctx, tx, ev)
	})
	if err != nil {
		metrics.IncIngestError(string(ingestion.StreamMaintenance), "persist")
		s.logger.Printf("maintenance ingest failed for asset %q: %v", ev.AssetID, err)
		return err
	}
	s.publishIngested(ctx, ingestion.StreamMaintenance, ev.AssetID, ev.FacilityID, ts)
	return nil
}

// IngestError validates and persists one device fault report.
func (s *Service) IngestError(ctx context.Context, ev ingestion.ErrorEvent) error {
	result := ingestion.ValidateErrorEvent(ev)
	metrics.AddValidationFindings(string(ingestion.StreamError), len(result.Errors), len(result.Warnings))
	if !result.Valid {
		return &ValidationError{Stream: ingestion.StreamError, Result: result}
	}
	ts, err := ingestion.ParseEventTime(ev.Timestamp)
	if err != nil {
		return err
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.sinks.Errors.Insert(ctx, tx, ev, ts); err != nil {
			return fmt.Errorf("insert error event: %w", err)
		}
		return s.derived.ApplyError(ctx, tx, ev)
	})
	if err != nil {
		metrics.IncIngestError(string(ingestion.StreamError), "persist")
		s.logger.Printf("error ingest failed for asset %q: %v", ev.AssetID, err)
		return err
	}
	s.publishIngested(ctx, ingestion.StreamError, ev.AssetID, ev.FacilityID, ts)
	return nil
}

// withTx runs fn in one transaction so the raw record and its derived updates
// commit or roll back together.
func (s *Service) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if s.db == nil {
		return errors.New("ingestion service: nil db")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Printf("rollback failed: %v", rbErr)
		}
		return err
	}
	return tx.Commit()
}

// publishIngested emits an EventIngested. Publish failures never fail the
// ingest: the raw record is already committed.
func (s *Service) publishIngested(ctx context.Context, stream ingestion.Stream, assetID, facilityID string, occurredAt time.Time) {
	if s.publisher == nil {
		return
	}
	event := appevents.EventIngested{
		EventID:    eventing.NewEventID(),
		Stream:     string(stream),
		AssetID:    assetID,
		FacilityID: facilityID,
		OccurredAt: occurredAt,
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Printf("publish %s ingested event: %v", stream, err)
	}
}
