package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	assets "medasset-cloud/internal/assets/domain"
	assetpg "medasset-cloud/internal/assets/infrastructure/postgres"
	ingestion "medasset-cloud/internal/ingestion/domain"
	"medasset-cloud/internal/observability/metrics"
)

// LocationConfidenceThreshold gates room updates from location pings.
const LocationConfidenceThreshold = 0.8

// DefaultPMIntervalDays is the preventive-maintenance cycle length.
const DefaultPMIntervalDays = 90

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// AssetStateStore writes the derived-state slice of an asset record.
type AssetStateStore interface {
	UpdateLocation(ctx context.Context, ex assetpg.Execer, assetID, locationID string, seenAt time.Time) error
	RecordPMCompleted(ctx context.Context, ex assetpg.Execer, assetID string, completedAt time.Time, intervalDays int) error
	UpdateStatus(ctx context.Context, ex assetpg.Execer, assetID string, status assets.AssetStatus, at time.Time) error
}

// HealthStore appends and reads health samples.
type HealthStore interface {
	InsertSample(ctx context.Context, ex assetpg.Execer, sample assets.HealthSample) error
	LatestHealth(ctx context.Context, ex assetpg.Execer, assetID string) (*assets.HealthSample, error)
}

// ShouldUpdateLocation reports whether a ping is trusted enough to move the asset.
func ShouldUpdateLocation(ev ingestion.RTLSEvent) bool {
	return ev.Confidence != nil &&
		*ev.Confidence >= LocationConfidenceThreshold &&
		ev.LocationID != ""
}

// RequiresStatusTransition reports whether a fault may change asset status.
func RequiresStatusTransition(ev ingestion.ErrorEvent) bool {
	return ev.Severity == ingestion.SeverityCritical && ev.RequiresIntervention
}

// DerivedStateUpdater maps raw events onto asset derived state. All writes run
// on the caller's Execer so they join the transaction persisting the raw event.
// Concurrent updates to the same asset are last-write-wins.
type DerivedStateUpdater struct {
	states         AssetStateStore
	health         HealthStore
	logger         *log.Logger
	clock          Clock
	pmIntervalDays int
}

// NewDerivedStateUpdater constructs an updater.
func NewDerivedStateUpdater(states AssetStateStore, health HealthStore, logger *log.Logger, opts ...DerivedOption) (*DerivedStateUpdater, error) {
	if states == nil {
		return nil, errors.New("derived updater: nil asset state store")
	}
	if health == nil {
		return nil, errors.New("derived updater: nil health store")
	}
	if logger == nil {
		logger = log.Default()
	}
	updater := &DerivedStateUpdater{
		states:         states,
		health:         health,
		logger:         logger,
		clock:          SystemClock{},
		pmIntervalDays: DefaultPMIntervalDays,
	}
	for _, opt := range opts {
		opt(updater)
	}
	return updater, nil
}

// DerivedOption configures the updater.
type DerivedOption func(*DerivedStateUpdater)

// WithDerivedClock overrides the clock.
func WithDerivedClock(clock Clock) DerivedOption {
	return func(u *DerivedStateUpdater) {
		if clock != nil {
			u.clock = clock
		}
	}
}

// WithPMIntervalDays overrides the preventive-maintenance cycle length.
func WithPMIntervalDays(days int) DerivedOption {
	return func(u *DerivedStateUpdater) {
		if days > 0 {
			u.pmIntervalDays = days
		}
	}
}

// ApplyTelemetry appends a health sample when the event carries a health score.
func (u *DerivedStateUpdater) ApplyTelemetry(ctx context.Context, ex assetpg.Execer, ev ingestion.TelemetryEvent) error {
	if ev.AssetID == "" || ev.MLLabels == nil || ev.MLLabels.HealthScore == nil {
		return nil
	}
	score := *ev.MLLabels.HealthScore
	status := ingestion.HealthStatus(ev.MLLabels.HealthStatus)
	if status == "" {
		status = ingestion.HealthScoreToStatus(score)
	}
	sample := assets.HealthSample{
		AssetID:    ev.AssetID,
		Score:      score,
		Status:     status,
		ObservedAt: u.clock.Now().UTC(),
	}
	if ev.LabelMetadata != nil {
		sample.ModelVersion = ev.LabelMetadata.ModelVersion
	}
	if err := u.health.InsertSample(ctx, ex, sample); err != nil {
		metrics.IncDerivedUpdate("health_sample", metrics.ResultError)
		return fmt.Errorf("append health sample for %s: %w", ev.AssetID, err)
	}
	metrics.IncDerivedUpdate("health_sample", metrics.ResultSuccess)
	return nil
}

// ApplyRTLS moves the asset when the ping clears the confidence gate.
func (u *DerivedStateUpdater) ApplyRTLS(ctx context.Context, ex assetpg.Execer, ev ingestion.RTLSEvent) error {
	if !ShouldUpdateLocation(ev) {
		return nil
	}
	if err := u.states.UpdateLocation(ctx, ex, ev.AssetID, ev.LocationID, u.clock.Now().UTC()); err != nil {
		metrics.IncDerivedUpdate("location", metrics.ResultError)
		return fmt.Errorf("update location for %s: %w", ev.AssetID, err)
	}
	metrics.IncDerivedUpdate("location", metrics.ResultSuccess)
	return nil
}

// ApplyMaintenance advances the PM dates when a PM work order completes.
func (u *DerivedStateUpdater) ApplyMaintenance(ctx context.Context, ex assetpg.Execer, ev ingestion.MaintenanceEvent) error {
	if ev.EventType != ingestion.PMCompletedEventType {
		return nil
	}
	if err := u.states.RecordPMCompleted(ctx, ex, ev.AssetID, u.clock.Now().UTC(), u.pmIntervalDays); err != nil {
		metrics.IncDerivedUpdate("pm_dates", metrics.ResultError)
		return fmt.Errorf("record pm completion for %s: %w", ev.AssetID, err)
	}
	metrics.IncDerivedUpdate("pm_dates", metrics.ResultSuccess)
	return nil
}

// ApplyError transitions asset status for critical, intervention-requiring
// faults. The transition is keyed on the asset's latest health condition;
// assets with no recorded condition, or a good/excellent one, stay put.
func (u *DerivedStateUpdater) ApplyError(ctx context.Context, ex assetpg.Execer, ev ingestion.ErrorEvent) error {
	if !RequiresStatusTransition(ev) {
		return nil
	}
	latest, err := u.health.LatestHealth(ctx, ex, ev.AssetID)
	if err != nil {
		if errors.Is(err, assets.ErrNotFound) {
			return nil
		}
		metrics.IncDerivedUpdate("status", metrics.ResultError)
		return fmt.Errorf("load latest health for %s: %w", ev.AssetID, err)
	}
	target, ok := assets.TransitionForCondition(latest.Status)
	if !ok {
		return nil
	}
	if err := u.states.UpdateStatus(ctx, ex, ev.AssetID, target, u.clock.Now().UTC()); err != nil {
		metrics.IncDerivedUpdate("status", metrics.ResultError)
		return fmt.Errorf("update status for %s: %w", ev.AssetID, err)
	}
	u.logger.Printf("asset %s transitioned to %s on error %s", ev.AssetID, target, ev.ErrorCode)
	metrics.IncDerivedUpdate("status", metrics.ResultSuccess)
	return nil
}
