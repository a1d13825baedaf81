package store

import (
	"context"
	"fmt"
	"time"
)

func (r *eventRepo) AppendAutosave(ctx context.Context, data AutosaveEventData) error {
	seqNum, err := r.seq.Next(ctx)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO autosave_events
			(sequence, timestamp, session_id, page_number, sequence_number, value, outcome, attempts, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		seqNum,
		time.Now().UnixNano(),
		data.SessionID,
		data.PageNumber,
		data.SequenceNumber,
		data.Value,
		string(data.Outcome),
		data.Attempts,
		data.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("save autosave event: %w", err)
	}
	return nil
}

func (r *eventRepo) AutosaveStats(ctx context.Context, sessionID string) (AutosaveStats, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*) FROM autosave_events WHERE session_id = ? GROUP BY outcome`,
		sessionID,
	)
	if err != nil {
		return AutosaveStats{}, fmt.Errorf("query autosave stats: %w", err)
	}
	defer rows.Close()

	var stats AutosaveStats
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return AutosaveStats{}, fmt.Errorf("scan autosave stats: %w", err)
		}
		switch AutosaveOutcome(outcome) {
		case OutcomeSent:
			stats.Sent = n
		case OutcomeFailed:
			stats.Failed = n
		case OutcomeDropped:
			stats.Dropped = n
		}
	}
	return stats, rows.Err()
}

func (r *eventRepo) UnsavedFields(ctx context.Context, sessionID string) ([]AutosaveEventData, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT a.sequence, a.timestamp, a.page_number, a.sequence_number, a.value,
		        a.outcome, a.attempts, a.error_message
		 FROM autosave_events a
		 JOIN (
			SELECT page_number, sequence_number, MAX(sequence) AS latest
			FROM autosave_events
			WHERE session_id = ?
			GROUP BY page_number, sequence_number
		 ) l ON a.page_number = l.page_number
		    AND a.sequence_number = l.sequence_number
		    AND a.sequence = l.latest
		 WHERE a.session_id = ? AND a.outcome != ?
		 ORDER BY a.page_number, a.sequence_number`,
		sessionID, sessionID, string(OutcomeSent),
	)
	if err != nil {
		return nil, fmt.Errorf("query unsaved fields: %w", err)
	}
	defer rows.Close()

	var out []AutosaveEventData
	for rows.Next() {
		var (
			e       AutosaveEventData
			ts      int64
			outcome string
		)
		if err := rows.Scan(&e.Sequence, &ts, &e.PageNumber, &e.SequenceNumber, &e.Value,
			&outcome, &e.Attempts, &e.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan unsaved field: %w", err)
		}
		e.SessionID = sessionID
		e.Outcome = AutosaveOutcome(outcome)
		e.Timestamp = time.Unix(0, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}
