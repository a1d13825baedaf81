package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// eventRepo implements EventRepo over the journal tables.
type eventRepo struct {
	db  *sql.DB
	seq *sequenceCounter
}

func (r *eventRepo) AppendRequest(ctx context.Context, data RequestEventData) error {
	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO request_events
			(sequence, timestamp, op, session_id, page_number, sequence_number, latency_ms, success, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		seqNum,
		time.Now().UnixNano(),
		data.Op,
		data.SessionID,
		data.PageNumber,
		data.SequenceNumber,
		data.LatencyMs,
		boolToInt(data.Success),
		data.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("save request event: %w", err)
	}
	return nil
}

func (r *eventRepo) RequestCount(ctx context.Context, sessionID, op string) (int, int, error) {
	var ok, failed sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END),
		        SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END)
		 FROM request_events WHERE session_id = ? AND op = ?`,
		sessionID, op,
	).Scan(&ok, &failed)
	if err != nil {
		return 0, 0, fmt.Errorf("count requests: %w", err)
	}
	return int(ok.Int64), int(failed.Int64), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
