package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const defaultProcessedTable = "processed_events"

// ProcessedStore is the Postgres delivery ledger: one row per
// (event id, consumer name) pair that finished handling.
type ProcessedStore struct {
	db    *sql.DB
	table string
}

// ProcessedOption configures the ledger.
type ProcessedOption func(*ProcessedStore)

// WithProcessedTable overrides the ledger table name.
func WithProcessedTable(table string) ProcessedOption {
	return func(store *ProcessedStore) {
		if table != "" {
			store.table = table
		}
	}
}

// NewProcessedStore constructs the ledger over db.
func NewProcessedStore(db *sql.DB, opts ...ProcessedOption) *ProcessedStore {
	store := &ProcessedStore{db: db, table: defaultProcessedTable}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *ProcessedStore) ready(eventID, consumerName string) error {
	if s == nil || s.db == nil {
		return errors.New("processed events: nil db")
	}
	if eventID == "" || consumerName == "" {
		return errors.New("processed events: event id and consumer name are required")
	}
	return nil
}

// HasProcessed reports whether consumerName already finished eventID.
func (s *ProcessedStore) HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error) {
	if err := s.ready(eventID, consumerName); err != nil {
		return false, err
	}
	query := fmt.Sprintf(
		"SELECT 1 FROM %s WHERE event_id = $1 AND consumer_name = $2 LIMIT 1", s.table)
	var one int
	err := s.db.QueryRowContext(ctx, query, eventID, consumerName).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MarkProcessed records the pair; recording it again is a no-op, which makes
// redelivered events safe to settle twice.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, eventID, consumerName string) error {
	if err := s.ready(eventID, consumerName); err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (event_id, consumer_name, processed_at)
VALUES ($1, $2, $3)
ON CONFLICT (event_id, consumer_name)
DO NOTHING`, s.table)
	_, err := s.db.ExecContext(ctx, query, eventID, consumerName, time.Now().UTC())
	return err
}
