package eventing

import (
	"context"
	"log"
	"time"
)

// OutboxStore provides access to staged event records.
type OutboxStore interface {
	ListPending(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, cause error) error
}

// DLQStore keeps undeliverable events for operator inspection.
type DLQStore interface {
	RecordFailure(ctx context.Context, env Envelope, cause error) error
}

// OutboxRecord is one staged event awaiting delivery.
type OutboxRecord struct {
	ID       string
	Envelope Envelope
}

// Dispatcher drains staged events onto the in-process bus. A record that
// cannot be decoded or delivered is dead-lettered and stays eligible for
// redelivery until the outbox attempt cap is reached.
type Dispatcher struct {
	bus      EventBus
	outbox   OutboxStore
	registry *Registry
	dlq      DLQStore
	logger   *log.Logger
}

// DispatcherOption configures a dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger overrides the default logger.
func WithDispatcherLogger(logger *log.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher constructs a dispatcher.
func NewDispatcher(bus EventBus, outbox OutboxStore, registry *Registry, dlq DLQStore, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{bus: bus, outbox: outbox, registry: registry, dlq: dlq, logger: log.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch delivers up to limit staged events and reports how many landed.
func (d *Dispatcher) Dispatch(ctx context.Context, limit int) (int, error) {
	if d == nil || d.outbox == nil || d.bus == nil || d.registry == nil {
		return 0, nil
	}
	if limit <= 0 {
		limit = 50
	}
	records, err := d.outbox.ListPending(ctx, limit)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, record := range records {
		if err := d.deliver(ctx, record); err != nil {
			d.deadLetter(ctx, record, err)
			continue
		}
		_ = d.outbox.MarkSent(ctx, record.ID)
		sent++
	}
	return sent, nil
}

func (d *Dispatcher) deliver(ctx context.Context, record OutboxRecord) error {
	payload, err := d.registry.DecodePayload(record.Envelope)
	if err != nil {
		return err
	}
	return d.bus.Publish(WithEnvelope(ctx, record.Envelope), payload)
}

func (d *Dispatcher) deadLetter(ctx context.Context, record OutboxRecord, cause error) {
	env := record.Envelope
	d.logger.Printf("event %s (%s) for asset %q at facility %q not delivered: %v",
		env.EventID, env.EventType, env.AssetID, env.FacilityID, cause)
	_ = d.outbox.MarkFailed(ctx, record.ID, cause)
	if d.dlq != nil {
		_ = d.dlq.RecordFailure(ctx, env, cause)
	}
}

// Run drains the outbox on a fixed interval until ctx is cancelled. This is
// the redelivery path for events whose inline dispatch failed.
func (d *Dispatcher) Run(ctx context.Context, every time.Duration, limit int) {
	if d == nil || every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := d.Dispatch(ctx, limit); err != nil {
				d.logger.Printf("outbox drain: %v", err)
			}
		}
	}
}
