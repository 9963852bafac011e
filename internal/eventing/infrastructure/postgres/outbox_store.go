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

const defaultOutboxTable = "event_outbox"

// Redelivery stops once a record has failed this many times; by then the
// event also sits in the dead-letter table for operator follow-up.
const maxOutboxAttempts = 5

// OutboxStore stages envelopes in Postgres until the dispatcher delivers
// them. Facility and asset ids are denormalized into their own columns so
// stuck events can be triaged per facility without unpacking payloads.
type OutboxStore struct {
	db    *sql.DB
	table string
}

// OutboxOption configures the outbox store.
type OutboxOption func(*OutboxStore)

// WithOutboxTable overrides the table name.
func WithOutboxTable(table string) OutboxOption {
	return func(store *OutboxStore) {
		if table != "" {
			store.table = table
		}
	}
}

// NewOutboxStore constructs an outbox store.
func NewOutboxStore(db *sql.DB, opts ...OutboxOption) *OutboxStore {
	store := &OutboxStore{db: db, table: defaultOutboxTable}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Insert stages an envelope for delivery and returns the outbox record id.
func (s *OutboxStore) Insert(ctx context.Context, env eventing.Envelope) (string, error) {
	if s == nil || s.db == nil {
		return "", errors.New("event outbox: nil db")
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	outboxID := eventing.NewEventID()
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	event_id,
	event_type,
	facility_id,
	asset_id,
	occurred_at,
	payload,
	status,
	attempts
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, 'pending', 0
)
ON CONFLICT (id)
DO NOTHING`, s.table)

	_, err = s.db.ExecContext(ctx, query,
		outboxID, env.EventID, env.EventType, env.FacilityID, env.AssetID, env.OccurredAt, payload)
	if err != nil {
		return "", err
	}
	return outboxID, nil
}

// ListPending returns deliverable records oldest first: everything still
// pending, plus failed records that have attempts left.
func (s *OutboxStore) ListPending(ctx context.Context, limit int) ([]eventing.OutboxRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("event outbox: nil db")
	}
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
SELECT id, payload
FROM %s
WHERE status = 'pending'
   OR (status = 'failed' AND attempts < %d)
ORDER BY created_at ASC
LIMIT $1`, s.table, maxOutboxAttempts)

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []eventing.OutboxRecord
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		var env eventing.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return nil, err
		}
		result = append(result, eventing.OutboxRecord{ID: id, Envelope: env})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkSent settles a delivered record.
func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return errors.New("event outbox: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s
SET status = 'sent', sent_at = $1
WHERE id = $2`, s.table)
	_, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id)
	return err
}

// MarkFailed burns one attempt and keeps the last delivery error for triage.
func (s *OutboxStore) MarkFailed(ctx context.Context, id string, cause error) error {
	if s == nil || s.db == nil {
		return errors.New("event outbox: nil db")
	}
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	query := fmt.Sprintf(`
UPDATE %s
SET status = 'failed', attempts = attempts + 1, last_error = $1
WHERE id = $2`, s.table)
	_, err := s.db.ExecContext(ctx, query, message, id)
	return err
}
