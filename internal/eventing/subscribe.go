package eventing

import (
	"context"
)

// ProcessedStore is the per-consumer delivery ledger that turns the
// at-least-once dispatcher into effectively-once handling.
type ProcessedStore interface {
	HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, consumerName string) error
}

// Subscribe registers handler under consumerName. With a ledger the handler
// runs at most once per event id; without one it sees every delivery,
// including redeliveries of previously failed records.
func Subscribe(bus EventBus, eventType, consumerName string, handler EventHandler, store ProcessedStore) {
	if store == nil {
		bus.Subscribe(eventType, handler)
		return
	}
	bus.Subscribe(eventType, WrapHandler(consumerName, handler, store))
}

// WrapHandler makes handler idempotent per consumer. Events published
// directly on the bus carry no envelope, so there is no id to deduplicate
// on and they pass straight through. The ledger is written only after the
// handler succeeds; a failed event stays eligible for redelivery.
func WrapHandler(consumerName string, handler EventHandler, store ProcessedStore) EventHandler {
	return func(ctx context.Context, event any) error {
		env, ok := EnvelopeFromContext(ctx)
		if !ok || env.EventID == "" {
			return handler(ctx, event)
		}
		seen, err := store.HasProcessed(ctx, env.EventID, consumerName)
		if err != nil {
			return err
		}
		if seen {
			return nil
		}
		if err := handler(ctx, event); err != nil {
			return err
		}
		return store.MarkProcessed(ctx, env.EventID, consumerName)
	}
}
