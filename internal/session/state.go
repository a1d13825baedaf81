// Package session owns the state of a practice session: which page is
// loaded, the learner's answers, and the legal transitions between loading,
// editing, submitting and completing.
package session

import (
	"time"

	"github.com/abhisek/mathdrill/internal/answer"
	"github.com/abhisek/mathdrill/internal/delivery"
)

// PagePhase is the lifecycle phase of the current page.
type PagePhase int

const (
	PhaseUnloaded   PagePhase = iota // Problems not fetched yet
	PhaseLoading                     // Fetch in flight
	PhaseEditable                    // Loaded, answers may change
	PhaseSubmitting                  // Submit-page in flight
	PhaseLocked                      // Submitted, answers frozen
)

func (p PagePhase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseEditable:
		return "editable"
	case PhaseSubmitting:
		return "submitting"
	case PhaseLocked:
		return "locked"
	default:
		return "unloaded"
	}
}

// SessionPhase is the session-level lifecycle phase.
type SessionPhase int

const (
	SessionActive          SessionPhase = iota // Pages remain to be submitted
	SessionReadyToComplete                     // Last page submitted
	SessionCompleting                          // Complete call in flight
	SessionCompleted                           // Terminal
)

func (p SessionPhase) String() string {
	switch p {
	case SessionReadyToComplete:
		return "ready_to_complete"
	case SessionCompleting:
		return "completing"
	case SessionCompleted:
		return "completed"
	default:
		return "active"
	}
}

// PageStatus is the per-page record kept for every page the learner has seen.
// Submitted never reverts to false.
type PageStatus struct {
	Visited    bool
	Submitted  bool
	HasAnswers bool
}

// ViewState is a snapshot of the session as the UI renders it. Values handed
// out by the Controller are copies; mutating them has no effect on the
// session.
type ViewState struct {
	// SessionID is the server-assigned session identifier.
	SessionID string

	// CurrentPage is the 1-based page the learner is on.
	CurrentPage int

	// TotalPages is 0 until the first page has loaded.
	TotalPages int

	// IsLastPage is true when CurrentPage is the final page.
	IsLastPage bool

	// Phase is the lifecycle phase of CurrentPage.
	Phase PagePhase

	// Session is the session-level phase.
	Session SessionPhase

	// Loading is true while any page fetch is in flight.
	Loading bool

	// Problems are the problems of CurrentPage in server order.
	Problems []delivery.Problem

	// Answers holds the learner's answer per problem sequence number.
	Answers map[int]answer.Answer

	// Statuses records every page seen so far, keyed by page number.
	Statuses map[int]PageStatus

	// StartedAt and Duration come from the server's session info.
	StartedAt time.Time
	Duration  time.Duration

	// Err is the user-visible message of the last failed operation.
	Err string

	// Version increases on every change.
	Version uint64
}

// Clone returns a deep copy.
func (s ViewState) Clone() ViewState {
	out := s
	if s.Problems != nil {
		out.Problems = make([]delivery.Problem, len(s.Problems))
		copy(out.Problems, s.Problems)
	}
	out.Answers = make(map[int]answer.Answer, len(s.Answers))
	for k, v := range s.Answers {
		out.Answers[k] = v
	}
	out.Statuses = make(map[int]PageStatus, len(s.Statuses))
	for k, v := range s.Statuses {
		out.Statuses[k] = v
	}
	return out
}

// Status returns the status of page, zero if never seen.
func (s ViewState) Status(page int) PageStatus {
	return s.Statuses[page]
}

// Answer returns the answer for a problem, or the empty answer of the
// problem's kind.
func (s ViewState) Answer(seq int) answer.Answer {
	if a, ok := s.Answers[seq]; ok {
		return a
	}
	for _, p := range s.Problems {
		if p.SequenceNumber == seq {
			return answer.Empty(p.AnswerKind())
		}
	}
	return answer.Answer{}
}

// Editable reports whether answers on the current page may change.
func (s ViewState) Editable() bool {
	return s.Phase == PhaseEditable && s.Session != SessionCompleted
}

// CanSubmit reports whether the current page may be submitted.
func (s ViewState) CanSubmit() bool {
	return s.Editable() && !s.Loading
}

// CanComplete reports whether CompleteSession would be accepted.
func (s ViewState) CanComplete() bool {
	return s.Session == SessionReadyToComplete &&
		!s.Loading &&
		s.TotalPages > 0 &&
		s.CurrentPage == s.TotalPages &&
		s.Statuses[s.CurrentPage].Submitted
}

// CompletedCount returns how many problems on the page have complete answers.
func (s ViewState) CompletedCount() int {
	n := 0
	for _, p := range s.Problems {
		if s.Answer(p.SequenceNumber).IsComplete() {
			n++
		}
	}
	return n
}

// AllAnswered reports whether every problem on the page has a complete answer.
func (s ViewState) AllAnswered() bool {
	return len(s.Problems) > 0 && s.CompletedCount() == len(s.Problems)
}

// Remaining returns the time left at now, never negative. A session without
// a known start or duration reports zero.
func (s ViewState) Remaining(now time.Time) time.Duration {
	if s.StartedAt.IsZero() || s.Duration <= 0 {
		return 0
	}
	left := s.StartedAt.Add(s.Duration).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Expired reports whether the study time has run out. Expiry is advisory:
// the session stays usable.
func (s ViewState) Expired(now time.Time) bool {
	if s.StartedAt.IsZero() || s.Duration <= 0 {
		return false
	}
	return !now.Before(s.StartedAt.Add(s.Duration))
}

func (s ViewState) hasAnswers() bool {
	for _, a := range s.Answers {
		if !a.IsBlank() {
			return true
		}
	}
	return false
}
