package postgres

import (
	"context"
	"database/sql"
)

// Execer is the subset of database/sql methods the sinks need. Both *sql.DB
// and *sql.Tx satisfy it; ingestion always passes the per-event transaction so
// the raw record and its derived-state update land atomically.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullFloat(value *float64) sql.NullFloat64 {
	if value == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *value, Valid: true}
}

// rawPayloadArg passes the payload through untouched; the column is json (not
// jsonb) so the stored text round-trips byte-identical.
func rawPayloadArg(payload []byte) any {
	if len(payload) == 0 {
		return nil
	}
	return payload
}
