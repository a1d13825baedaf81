package store

import (
	"context"
	"time"
)

// RequestEventData captures a single delivery API call.
type RequestEventData struct {
	Op             string
	SessionID      string
	PageNumber     int
	SequenceNumber int
	LatencyMs      int64
	Success        bool
	ErrorMessage   string
}

// AutosaveOutcome is the terminal state of one autosave task.
type AutosaveOutcome string

const (
	OutcomeSent    AutosaveOutcome = "sent"
	OutcomeFailed  AutosaveOutcome = "failed"
	OutcomeDropped AutosaveOutcome = "dropped"
)

// AutosaveEventData captures the outcome of one autosave task.
type AutosaveEventData struct {
	SessionID      string
	PageNumber     int
	SequenceNumber int
	Value          string
	Outcome        AutosaveOutcome
	Attempts       int
	ErrorMessage   string

	// Sequence and Timestamp are populated on reads.
	Sequence  int64
	Timestamp time.Time
}

// AutosaveStats counts autosave outcomes for a session.
type AutosaveStats struct {
	Sent    int
	Failed  int
	Dropped int
}

// Total returns the number of recorded autosave outcomes.
func (s AutosaveStats) Total() int {
	return s.Sent + s.Failed + s.Dropped
}

// EventRepo provides append and query access to the journal.
type EventRepo interface {
	// AppendRequest records a delivery API call.
	AppendRequest(ctx context.Context, data RequestEventData) error

	// AppendAutosave records the outcome of an autosave task.
	AppendAutosave(ctx context.Context, data AutosaveEventData) error

	// AutosaveStats counts autosave outcomes for a session.
	AutosaveStats(ctx context.Context, sessionID string) (AutosaveStats, error)

	// UnsavedFields returns, for each field of the session, the latest
	// autosave event when that event was not a successful send.
	UnsavedFields(ctx context.Context, sessionID string) ([]AutosaveEventData, error)

	// RequestCount counts recorded calls of op for a session, split by result.
	RequestCount(ctx context.Context, sessionID, op string) (ok int, failed int, err error)
}

// SessionSnapshot is the locally remembered position within a session.
type SessionSnapshot struct {
	ID          int64
	Sequence    int64
	Timestamp   time.Time
	SessionID   string
	CurrentPage int
	TotalPages  int
	Completed   bool
}

// SnapshotRepo manages per-session position snapshots.
type SnapshotRepo interface {
	// Save stores a new snapshot.
	Save(ctx context.Context, snap *SessionSnapshot) error

	// Latest returns the most recent snapshot for the session, or nil.
	Latest(ctx context.Context, sessionID string) (*SessionSnapshot, error)

	// Prune deletes all but the N most recent snapshots of the session.
	Prune(ctx context.Context, sessionID string, keep int) error
}
