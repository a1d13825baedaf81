package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// snapshotRepo implements SnapshotRepo over the session_snapshots table.
type snapshotRepo struct {
	db  *sql.DB
	seq *sequenceCounter
}

func (r *snapshotRepo) Save(ctx context.Context, snap *SessionSnapshot) error {
	if snap.Sequence == 0 {
		seqNum, err := r.seq.Next(ctx)
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		snap.Sequence = seqNum
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now()
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO session_snapshots
			(sequence, timestamp, session_id, current_page, total_pages, completed)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snap.Sequence,
		snap.Timestamp.UnixNano(),
		snap.SessionID,
		snap.CurrentPage,
		snap.TotalPages,
		boolToInt(snap.Completed),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		snap.ID = id
	}
	return nil
}

func (r *snapshotRepo) Latest(ctx context.Context, sessionID string) (*SessionSnapshot, error) {
	var (
		s         SessionSnapshot
		ts        int64
		completed int
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, sequence, timestamp, session_id, current_page, total_pages, completed
		 FROM session_snapshots
		 WHERE session_id = ?
		 ORDER BY sequence DESC
		 LIMIT 1`,
		sessionID,
	).Scan(&s.ID, &s.Sequence, &ts, &s.SessionID, &s.CurrentPage, &s.TotalPages, &completed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query latest snapshot: %w", err)
	}
	s.Timestamp = time.Unix(0, ts)
	s.Completed = completed == 1
	return &s, nil
}

func (r *snapshotRepo) Prune(ctx context.Context, sessionID string, keep int) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM session_snapshots
		 WHERE session_id = ?
		   AND id NOT IN (
			SELECT id FROM session_snapshots
			WHERE session_id = ?
			ORDER BY sequence DESC
			LIMIT ?
		 )`,
		sessionID, sessionID, keep,
	)
	if err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	return nil
}
