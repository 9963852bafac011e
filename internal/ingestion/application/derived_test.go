package application

import (
	"context"
	"log"
	"testing"
	"time"

	assets "medasset-cloud/internal/assets/domain"
	assetpg "medasset-cloud/internal/assets/infrastructure/postgres"
	ingestion "medasset-cloud/internal/ingestion/domain"
)

func fp(v float64) *float64 { return &v }

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type pmCall struct {
	assetID      string
	completedAt  time.Time
	intervalDays int
}

type stubStateStore struct {
	locations []string
	pm        []pmCall
	statuses  []assets.AssetStatus
}

func (s *stubStateStore) UpdateLocation(ctx context.Context, ex assetpg.Execer, assetID, locationID string, seenAt time.Time) error {
	s.locations = append(s.locations, locationID)
	return nil
}

func (s *stubStateStore) RecordPMCompleted(ctx context.Context, ex assetpg.Execer, assetID string, completedAt time.Time, intervalDays int) error {
	s.pm = append(s.pm, pmCall{assetID: assetID, completedAt: completedAt, intervalDays: intervalDays})
	return nil
}

func (s *stubStateStore) UpdateStatus(ctx context.Context, ex assetpg.Execer, assetID string, status assets.AssetStatus, at time.Time) error {
	s.statuses = append(s.statuses, status)
	return nil
}

type stubHealthStore struct {
	samples []assets.HealthSample
	latest  *assets.HealthSample
}

func (s *stubHealthStore) InsertSample(ctx context.Context, ex assetpg.Execer, sample assets.HealthSample) error {
	s.samples = append(s.samples, sample)
	return nil
}

func (s *stubHealthStore) LatestHealth(ctx context.Context, ex assetpg.Execer, assetID string) (*assets.HealthSample, error) {
	if s.latest == nil {
		return nil, assets.ErrNotFound
	}
	return s.latest, nil
}

func newTestUpdater(t *testing.T, states *stubStateStore, health *stubHealthStore, opts ...DerivedOption) *DerivedStateUpdater {
	t.Helper()
	updater, err := NewDerivedStateUpdater(states, health, log.New(testWriter{t}, "", 0), opts...)
	if err != nil {
		t.Fatalf("new updater: %v", err)
	}
	return updater
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestShouldUpdateLocation(t *testing.T) {
	base := ingestion.RTLSEvent{AssetID: "asset-001", LocationID: "room-12"}

	ev := base
	if ShouldUpdateLocation(ev) {
		t.Error("nil confidence must not move the asset")
	}

	ev.Confidence = fp(0.79)
	if ShouldUpdateLocation(ev) {
		t.Error("confidence below threshold must not move the asset")
	}

	ev.Confidence = fp(0.8)
	if !ShouldUpdateLocation(ev) {
		t.Error("threshold is inclusive")
	}

	ev.LocationID = ""
	if ShouldUpdateLocation(ev) {
		t.Error("unresolved location must not move the asset")
	}
}

func TestApplyRTLS_ConfidenceGate(t *testing.T) {
	states := &stubStateStore{}
	updater := newTestUpdater(t, states, &stubHealthStore{})

	ev := ingestion.RTLSEvent{
		AssetID:    "asset-001",
		LocationID: "room-12",
		Confidence: fp(0.5),
	}
	if err := updater.ApplyRTLS(context.Background(), nil, ev); err != nil {
		t.Fatalf("apply rtls: %v", err)
	}
	if len(states.locations) != 0 {
		t.Fatalf("low-confidence ping must not update location, got %v", states.locations)
	}

	ev.Confidence = fp(0.95)
	if err := updater.ApplyRTLS(context.Background(), nil, ev); err != nil {
		t.Fatalf("apply rtls: %v", err)
	}
	if len(states.locations) != 1 || states.locations[0] != "room-12" {
		t.Fatalf("expected one location update to room-12, got %v", states.locations)
	}
}

func TestApplyMaintenance_PMCompleted(t *testing.T) {
	now := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	states := &stubStateStore{}
	updater := newTestUpdater(t, states, &stubHealthStore{},
		WithDerivedClock(fixedClock{now: now}),
		WithPMIntervalDays(60),
	)

	ev := ingestion.MaintenanceEvent{AssetID: "asset-001", EventType: "repair"}
	if err := updater.ApplyMaintenance(context.Background(), nil, ev); err != nil {
		t.Fatalf("apply maintenance: %v", err)
	}
	if len(states.pm) != 0 {
		t.Fatalf("non-PM event must not advance PM dates, got %v", states.pm)
	}

	ev.EventType = ingestion.PMCompletedEventType
	if err := updater.ApplyMaintenance(context.Background(), nil, ev); err != nil {
		t.Fatalf("apply maintenance: %v", err)
	}
	if len(states.pm) != 1 {
		t.Fatalf("expected one PM record, got %d", len(states.pm))
	}
	call := states.pm[0]
	if call.assetID != "asset-001" || !call.completedAt.Equal(now) || call.intervalDays != 60 {
		t.Fatalf("unexpected PM call %+v", call)
	}
}

func TestApplyError_TransitionByCondition(t *testing.T) {
	critical := ingestion.ErrorEvent{
		AssetID:              "asset-001",
		ErrorCode:            "E-221",
		Severity:             ingestion.SeverityCritical,
		RequiresIntervention: true,
	}

	cases := []struct {
		name       string
		latest     *assets.HealthSample
		ev         ingestion.ErrorEvent
		wantStatus []assets.AssetStatus
	}{
		{
			name:       "critical condition quarantines",
			latest:     &assets.HealthSample{AssetID: "asset-001", Status: ingestion.HealthCritical},
			ev:         critical,
			wantStatus: []assets.AssetStatus{assets.StatusQuarantined},
		},
		{
			name:       "poor condition sends to maintenance",
			latest:     &assets.HealthSample{AssetID: "asset-001", Status: ingestion.HealthPoor},
			ev:         critical,
			wantStatus: []assets.AssetStatus{assets.StatusInMaintenance},
		},
		{
			name:       "good condition stays put",
			latest:     &assets.HealthSample{AssetID: "asset-001", Status: ingestion.HealthGood},
			ev:         critical,
			wantStatus: nil,
		},
		{
			name:       "no recorded condition stays put",
			latest:     nil,
			ev:         critical,
			wantStatus: nil,
		},
		{
			name:   "auto-recovered error never transitions",
			latest: &assets.HealthSample{AssetID: "asset-001", Status: ingestion.HealthCritical},
			ev: ingestion.ErrorEvent{
				AssetID:              "asset-001",
				ErrorCode:            "E-100",
				Severity:             ingestion.SeverityCritical,
				RequiresIntervention: false,
			},
			wantStatus: nil,
		},
		{
			name:   "non-critical severity never transitions",
			latest: &assets.HealthSample{AssetID: "asset-001", Status: ingestion.HealthCritical},
			ev: ingestion.ErrorEvent{
				AssetID:              "asset-001",
				ErrorCode:            "E-100",
				Severity:             ingestion.SeverityWarning,
				RequiresIntervention: true,
			},
			wantStatus: nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			states := &stubStateStore{}
			updater := newTestUpdater(t, states, &stubHealthStore{latest: tc.latest})
			if err := updater.ApplyError(context.Background(), nil, tc.ev); err != nil {
				t.Fatalf("apply error: %v", err)
			}
			if len(states.statuses) != len(tc.wantStatus) {
				t.Fatalf("got %v, want %v", states.statuses, tc.wantStatus)
			}
			for i := range tc.wantStatus {
				if states.statuses[i] != tc.wantStatus[i] {
					t.Fatalf("got %v, want %v", states.statuses, tc.wantStatus)
				}
			}
		})
	}
}

func TestApplyTelemetry_AppendsHealthSample(t *testing.T) {
	now := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	health := &stubHealthStore{}
	updater := newTestUpdater(t, &stubStateStore{}, health, WithDerivedClock(fixedClock{now: now}))

	ev := ingestion.TelemetryEvent{AssetID: "asset-001"}
	if err := updater.ApplyTelemetry(context.Background(), nil, ev); err != nil {
		t.Fatalf("apply telemetry: %v", err)
	}
	if len(health.samples) != 0 {
		t.Fatalf("event without a health score must not record a sample, got %v", health.samples)
	}

	ev.MLLabels = &ingestion.MLLabels{HealthScore: fp(35)}
	if err := updater.ApplyTelemetry(context.Background(), nil, ev); err != nil {
		t.Fatalf("apply telemetry: %v", err)
	}
	if len(health.samples) != 1 {
		t.Fatalf("expected one sample, got %d", len(health.samples))
	}
	sample := health.samples[0]
	if sample.Score != 35 || sample.Status != ingestion.HealthPoor || !sample.ObservedAt.Equal(now) {
		t.Fatalf("unexpected sample %+v", sample)
	}

	ev.MLLabels = &ingestion.MLLabels{HealthScore: fp(35), HealthStatus: "poor"}
	ev.LabelMetadata = &ingestion.LabelMetadata{ModelVersion: "pump-rul-v3"}
	if err := updater.ApplyTelemetry(context.Background(), nil, ev); err != nil {
		t.Fatalf("apply telemetry: %v", err)
	}
	if got := health.samples[1].ModelVersion; got != "pump-rul-v3" {
		t.Fatalf("expected model version carried, got %q", got)
	}
}
