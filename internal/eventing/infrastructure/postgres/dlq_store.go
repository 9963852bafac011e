package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"medasset-cloud/internal/eventing"
)

const defaultDLQTable = "dead_letter_events"

// DLQStore keeps events that could not be delivered. One row per event id;
// repeated failures bump the attempt counter instead of piling up rows.
// Facility and asset ids are stored alongside the payload so an operator can
// scope stuck events to a facility without decoding envelopes.
type DLQStore struct {
	db    *sql.DB
	table string
}

// DLQOption configures the DLQ store.
type DLQOption func(*DLQStore)

// WithDLQTable overrides the table name.
func WithDLQTable(table string) DLQOption {
	return func(store *DLQStore) {
		if table != "" {
			store.table = table
		}
	}
}

// NewDLQStore constructs a DLQ store.
func NewDLQStore(db *sql.DB, opts ...DLQOption) *DLQStore {
	store := &DLQStore{db: db, table: defaultDLQTable}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// RecordFailure upserts the dead-letter row for env.
func (s *DLQStore) RecordFailure(ctx context.Context, env eventing.Envelope, cause error) error {
	if s == nil || s.db == nil {
		return errors.New("dead letters: nil db")
	}
	if env.EventID == "" {
		return errors.New("dead letters: empty event id")
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	message := ""
	if cause != nil {
		message = cause.Error()
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	event_id,
	event_type,
	facility_id,
	asset_id,
	payload,
	error,
	first_seen_at,
	last_seen_at,
	attempts
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $7, 1
)
ON CONFLICT (event_id)
DO UPDATE SET
	event_type = EXCLUDED.event_type,
	payload = EXCLUDED.payload,
	error = EXCLUDED.error,
	last_seen_at = EXCLUDED.last_seen_at,
	attempts = %s.attempts + 1`, s.table, s.table)

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx, query,
		env.EventID, env.EventType, env.FacilityID, env.AssetID, payload, message, now)
	return err
}
