package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// journalCounter names the row in journal_counters that orders every
// journal table.
const journalCounter = "journal"

// sequenceCounter hands out the global sequence shared by all journal
// tables, so a request event, an autosave outcome and a snapshot can be
// ordered against each other (did the autosave land before or after the page
// was submitted?). Per-table auto-increment IDs cannot answer that.
//
// The counter row is created on first use; the upsert is atomic in SQLite
// and the mutex keeps callers within the process from interleaving.
type sequenceCounter struct {
	mu   sync.Mutex
	db   *sql.DB
	name string
}

func newSequenceCounter(db *sql.DB) *sequenceCounter {
	return &sequenceCounter{db: db, name: journalCounter}
}

// Next returns the next sequence number, starting at 1.
func (sc *sequenceCounter) Next(ctx context.Context) (int64, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	var v int64
	err := sc.db.QueryRowContext(ctx,
		`INSERT INTO journal_counters (name, value) VALUES (?, 1)
		 ON CONFLICT (name) DO UPDATE SET value = value + 1
		 RETURNING value`,
		sc.name,
	).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("advance %s counter: %w", sc.name, err)
	}
	return v, nil
}
