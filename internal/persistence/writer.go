package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// AuditLogWriter writes audit events to Postgres using batch inserts.
// Multi-row INSERT keeps the writer portable; switch to pgx CopyFrom if
// throughput ever demands it.
type AuditLogWriter struct {
	db *sql.DB
}

// EventRow represents a row in audit.events
type EventRow struct {
	Sequence  int64
	EventID   string
	EventType string
	UserAddr  string
	Asset     string
	Payload   []byte // JSON-encoded event payload
	StateHash []byte
	PrevHash  []byte
	Timestamp time.Time
}

func NewAuditLogWriter(db *sql.DB) *AuditLogWriter {
	return &AuditLogWriter{db: db}
}

// WriteEventBatch writes a batch of events to audit.events inside tx using
// a multi-row INSERT. Conflicting sequences are skipped so replays after a
// partial flush stay idempotent.
func (w *AuditLogWriter) WriteEventBatch(ctx context.Context, tx *sql.Tx, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO audit.events
		(sequence, event_id, event_type, user_addr, asset, payload, state_hash, prev_hash, timestamp)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*9)

	for i, e := range events {
		base := i * 9
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
		))
		args = append(args,
			e.Sequence, e.EventID, e.EventType, e.UserAddr, e.Asset,
			e.Payload, e.StateHash, e.PrevHash, e.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// LatestSequence returns the highest persisted sequence and its state hash,
// or (0, nil, nil) on an empty log.
func (w *AuditLogWriter) LatestSequence(ctx context.Context) (int64, []byte, error) {
	var seq int64
	var hash []byte
	row := w.db.QueryRowContext(ctx,
		`SELECT sequence, state_hash FROM audit.events ORDER BY sequence DESC LIMIT 1`)
	if err := row.Scan(&seq, &hash); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil, nil
		}
		return 0, nil, err
	}
	return seq, hash, nil
}
