package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenClose(t *testing.T) {
	s := openTestStore(t)
	if s.DB() == nil {
		t.Fatal("expected non-nil db")
	}
}

func TestPragmasApplied(t *testing.T) {
	s := openTestStore(t)
	db := s.DB()

	tests := []struct {
		pragma string
		want   string
	}{
		{"journal_mode", "wal"},
		{"foreign_keys", "1"},
		{"synchronous", "1"}, // NORMAL = 1
		{"busy_timeout", "5000"},
	}

	for _, tt := range tests {
		var got string
		err := db.QueryRow("PRAGMA " + tt.pragma).Scan(&got)
		if err != nil {
			t.Errorf("PRAGMA %s: %v", tt.pragma, err)
			continue
		}
		if got != tt.want {
			t.Errorf("PRAGMA %s = %q, want %q", tt.pragma, got, tt.want)
		}
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SnapshotRepo().Save(ctx, &SessionSnapshot{SessionID: "s1", CurrentPage: 2, TotalPages: 3}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	snap, err := s.SnapshotRepo().Latest(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 2, snap.CurrentPage)

	// The sequence must continue past the persisted row.
	next := &SessionSnapshot{SessionID: "s1", CurrentPage: 3, TotalPages: 3}
	require.NoError(t, s.SnapshotRepo().Save(ctx, next))
	assert.Greater(t, next.Sequence, snap.Sequence)
}

func TestSequenceMonotonicAcrossTables(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	events := s.EventRepo()

	require.NoError(t, events.AppendRequest(ctx, RequestEventData{Op: "submitAnswer", SessionID: "s1", Success: true}))
	require.NoError(t, events.AppendAutosave(ctx, AutosaveEventData{SessionID: "s1", PageNumber: 1, SequenceNumber: 1, Value: "4", Outcome: OutcomeFailed}))
	require.NoError(t, events.AppendRequest(ctx, RequestEventData{Op: "submitAnswer", SessionID: "s1", Success: false}))

	var reqSeqs []int64
	rows, err := s.DB().Query(`SELECT sequence FROM request_events ORDER BY id`)
	require.NoError(t, err)
	for rows.Next() {
		var n int64
		require.NoError(t, rows.Scan(&n))
		reqSeqs = append(reqSeqs, n)
	}
	require.NoError(t, rows.Err())
	rows.Close()

	var autoSeq int64
	require.NoError(t, s.DB().QueryRow(`SELECT sequence FROM autosave_events`).Scan(&autoSeq))

	require.Len(t, reqSeqs, 2)
	assert.Less(t, reqSeqs[0], autoSeq)
	assert.Less(t, autoSeq, reqSeqs[1])
}

func TestRequestCount(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	events := s.EventRepo()

	for _, ok := range []bool{true, true, false} {
		require.NoError(t, events.AppendRequest(ctx, RequestEventData{
			Op: "submitPage", SessionID: "s1", PageNumber: 1, LatencyMs: 12, Success: ok,
		}))
	}
	require.NoError(t, events.AppendRequest(ctx, RequestEventData{Op: "submitPage", SessionID: "other", Success: true}))

	ok, failed, err := events.RequestCount(ctx, "s1", "submitPage")
	require.NoError(t, err)
	assert.Equal(t, 2, ok)
	assert.Equal(t, 1, failed)

	ok, failed, err = events.RequestCount(ctx, "s1", "completeSession")
	require.NoError(t, err)
	assert.Zero(t, ok)
	assert.Zero(t, failed)
}

func TestAutosaveStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	events := s.EventRepo()

	outcomes := []AutosaveOutcome{OutcomeSent, OutcomeSent, OutcomeFailed, OutcomeDropped, OutcomeSent}
	for i, o := range outcomes {
		require.NoError(t, events.AppendAutosave(ctx, AutosaveEventData{
			SessionID: "s1", PageNumber: 1, SequenceNumber: i + 1, Value: "x", Outcome: o, Attempts: 1,
		}))
	}

	stats, err := events.AutosaveStats(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, AutosaveStats{Sent: 3, Failed: 1, Dropped: 1}, stats)
	assert.Equal(t, 5, stats.Total())

	empty, err := events.AutosaveStats(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, empty.Total())
}

func TestUnsavedFieldsUsesLatestOutcome(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	events := s.EventRepo()

	appendEvent := func(page, seq int, value string, o AutosaveOutcome) {
		t.Helper()
		require.NoError(t, events.AppendAutosave(ctx, AutosaveEventData{
			SessionID: "s1", PageNumber: page, SequenceNumber: seq, Value: value, Outcome: o, Attempts: 3,
		}))
	}

	// Field (1,1): failed, then later sent. Saved.
	appendEvent(1, 1, "3", OutcomeFailed)
	appendEvent(1, 1, "4", OutcomeSent)
	// Field (1,2): sent, then later failed. Unsaved.
	appendEvent(1, 2, "7", OutcomeSent)
	appendEvent(1, 2, "8", OutcomeFailed)
	// Field (2,1): dropped. Unsaved.
	appendEvent(2, 1, "1/2", OutcomeDropped)

	unsaved, err := events.UnsavedFields(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, unsaved, 2)

	assert.Equal(t, 1, unsaved[0].PageNumber)
	assert.Equal(t, 2, unsaved[0].SequenceNumber)
	assert.Equal(t, "8", unsaved[0].Value)
	assert.Equal(t, OutcomeFailed, unsaved[0].Outcome)
	assert.Equal(t, "s1", unsaved[0].SessionID)
	assert.False(t, unsaved[0].Timestamp.IsZero())

	assert.Equal(t, 2, unsaved[1].PageNumber)
	assert.Equal(t, OutcomeDropped, unsaved[1].Outcome)
}

func TestSnapshotSaveAndLatest(t *testing.T) {
	s := openTestStore(t)
	repo := s.SnapshotRepo()
	ctx := context.Background()

	snap, err := repo.Latest(ctx, "s1")
	if err != nil {
		t.Fatalf("latest (empty): %v", err)
	}
	if snap != nil {
		t.Fatal("expected nil snapshot when none exist")
	}

	now := time.Now().UTC().Truncate(time.Second)
	err = repo.Save(ctx, &SessionSnapshot{
		Sequence:    42,
		Timestamp:   now,
		SessionID:   "s1",
		CurrentPage: 1,
		TotalPages:  3,
	})
	require.NoError(t, err)

	snap, err = repo.Latest(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, int64(42), snap.Sequence)
	assert.True(t, snap.Timestamp.Equal(now))
	assert.Equal(t, 1, snap.CurrentPage)
	assert.Equal(t, 3, snap.TotalPages)
	assert.False(t, snap.Completed)

	require.NoError(t, repo.Save(ctx, &SessionSnapshot{
		Sequence: 100, SessionID: "s1", CurrentPage: 3, TotalPages: 3, Completed: true,
	}))
	snap, err = repo.Latest(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), snap.Sequence)
	assert.True(t, snap.Completed)

	other, err := repo.Latest(ctx, "s2")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestSnapshotPrune(t *testing.T) {
	s := openTestStore(t)
	repo := s.SnapshotRepo()
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, repo.Save(ctx, &SessionSnapshot{SessionID: "s1", CurrentPage: i, TotalPages: 5}))
	}
	require.NoError(t, repo.Save(ctx, &SessionSnapshot{SessionID: "s2", CurrentPage: 1, TotalPages: 2}))

	require.NoError(t, repo.Prune(ctx, "s1", 2))

	var count int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM session_snapshots WHERE session_id = 's1'`).Scan(&count))
	assert.Equal(t, 2, count)

	latest, err := repo.Latest(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 5, latest.CurrentPage)

	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM session_snapshots WHERE session_id = 's2'`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestDefaultDBPathFromEnv(t *testing.T) {
	p := filepath.Join(t.TempDir(), "nested", "j.db")
	t.Setenv("MATHDRILL_DB", p)

	got, err := DefaultDBPath()
	require.NoError(t, err)
	assert.Equal(t, p, got)
	assert.DirExists(t, filepath.Dir(p))
}

func TestDefaultDBPathXDG(t *testing.T) {
	t.Setenv("MATHDRILL_DB", "")
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)

	got, err := DefaultDBPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "mathdrill", "journal.db"), got)
}
