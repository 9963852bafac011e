package eventing

import (
	"context"
	"testing"
	"time"

	appevents "medasset-cloud/internal/ingestion/application/events"
)

func TestBuildEnvelope_ExtractsPayloadFields(t *testing.T) {
	occurred := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	payload := appevents.EventIngested{
		EventID:    "evt-1",
		Stream:     "telemetry",
		AssetID:    "asset-001",
		FacilityID: "facility-001",
		OccurredAt: occurred,
	}

	env, err := BuildEnvelope(payload, Meta{})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	if env.FacilityID != "facility-001" || env.AssetID != "asset-001" {
		t.Fatalf("payload fields not extracted: %+v", env)
	}
	if !env.OccurredAt.Equal(occurred) {
		t.Fatalf("expected occurred-at carried, got %s", env.OccurredAt)
	}
	if env.EventID == "" || env.CorrelationID != env.EventID {
		t.Fatalf("expected generated correlated ids, got %+v", env)
	}
	if env.SchemaVersion != 1 {
		t.Fatalf("expected schema version 1, got %d", env.SchemaVersion)
	}
}

func TestBuildEnvelope_MetaOverrides(t *testing.T) {
	env, err := BuildEnvelope(appevents.EventIngested{FacilityID: "payload-facility"}, Meta{
		EventID:       "evt-fixed",
		FacilityID:    "meta-facility",
		CorrelationID: "corr-1",
		SchemaVersion: 2,
	})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	if env.EventID != "evt-fixed" || env.FacilityID != "meta-facility" || env.CorrelationID != "corr-1" || env.SchemaVersion != 2 {
		t.Fatalf("meta must win over payload: %+v", env)
	}
}

func TestRegistry_DecodeRoundTrip(t *testing.T) {
	registry := NewRegistry()
	registry.Register(appevents.EventIngested{})

	payload := appevents.EventIngested{
		EventID: "evt-2",
		Stream:  "maintenance",
		AssetID: "asset-002",
	}
	env, err := BuildEnvelope(payload, Meta{})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}

	decoded, err := registry.DecodePayload(env)
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	got, ok := decoded.(appevents.EventIngested)
	if !ok {
		t.Fatalf("decoded wrong type %T", decoded)
	}
	if got.Stream != "maintenance" || got.AssetID != "asset-002" {
		t.Fatalf("round trip mismatch %+v", got)
	}
}

func TestInMemoryBus_PublishRoutesByType(t *testing.T) {
	bus := NewInMemoryBus()
	var seen []string
	bus.Subscribe(EventTypeOf[appevents.EventIngested](), func(ctx context.Context, event any) error {
		evt, ok := event.(appevents.EventIngested)
		if !ok {
			return ErrInvalidEventType
		}
		seen = append(seen, evt.Stream)
		return nil
	})

	if err := bus.Publish(context.Background(), appevents.EventIngested{Stream: "rtls"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(seen) != 1 || seen[0] != "rtls" {
		t.Fatalf("handler not invoked correctly: %v", seen)
	}

	if err := bus.Publish(context.Background(), nil); err == nil {
		t.Fatal("nil event must be rejected")
	}
}
