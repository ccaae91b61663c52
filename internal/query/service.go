// Package query provides read-only access to the persisted audit log.
// In-memory ledger state is served by the processor directly; this
// service answers history questions from Postgres.
package query

import (
	"context"
	"database/sql"
	"fmt"
)

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// ListUserEvents returns a user's audit events, newest first, with
// cursor-based pagination on sequence.
func (s *Service) ListUserEvents(
	ctx context.Context,
	userAddr string,
	limit int,
	beforeSequence *int64,
) ([]EventRecord, error) {
	query := `
		SELECT sequence, event_id, event_type, user_addr, asset, payload, state_hash, prev_hash, timestamp
		FROM audit.events
		WHERE user_addr = $1
	`
	args := []interface{}{userAddr}
	argIdx := 2

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	return s.scanEvents(ctx, query, args...)
}

// ListEvents returns audit events of one type, newest first.
func (s *Service) ListEvents(
	ctx context.Context,
	eventType string,
	limit int,
	beforeSequence *int64,
) ([]EventRecord, error) {
	query := `
		SELECT sequence, event_id, event_type, user_addr, asset, payload, state_hash, prev_hash, timestamp
		FROM audit.events
		WHERE event_type = $1
	`
	args := []interface{}{eventType}
	argIdx := 2

	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	return s.scanEvents(ctx, query, args...)
}

// LatestSequence returns the highest persisted sequence, 0 on an empty log.
func (s *Service) LatestSequence(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM audit.events`).Scan(&seq)
	return seq, err
}

// VerifyIntegrity checks hash chain continuity over the persisted log and
// reports the first few breaks.
func (s *Service) VerifyIntegrity(ctx context.Context) (*IntegrityReport, error) {
	report := &IntegrityReport{}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e1.sequence
		FROM audit.events e1
		JOIN audit.events e2 ON e2.sequence = e1.sequence - 1
		WHERE e1.prev_hash != e2.state_hash
		ORDER BY e1.sequence
		LIMIT 10
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		if err := rows.Scan(&seq); err != nil {
			return nil, err
		}
		report.HashChainBreaks = append(report.HashChainBreaks, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0
	return report, nil
}

func (s *Service) scanEvents(ctx context.Context, query string, args ...interface{}) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var e EventRecord
		if err := rows.Scan(
			&e.Sequence, &e.EventID, &e.EventType, &e.UserAddr, &e.Asset,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
