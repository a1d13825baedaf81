package session

import "errors"

var (
	// ErrPageLocked is returned for edits or submits on a submitted page.
	ErrPageLocked = errors.New("page is already submitted")

	// ErrSubmitInProgress is returned while a page submission is in flight.
	ErrSubmitInProgress = errors.New("page submission in progress")

	// ErrBusy is returned when another operation (a load or completion) must
	// finish first.
	ErrBusy = errors.New("another operation is in progress")

	// ErrNotReadyToComplete is returned by CompleteSession before the last
	// page is submitted.
	ErrNotReadyToComplete = errors.New("session is not ready to complete")

	// ErrSessionCompleted is returned for any operation after completion.
	ErrSessionCompleted = errors.New("session is completed")

	// ErrStaleResponse is returned when a load was superseded by a newer one
	// and its result was discarded.
	ErrStaleResponse = errors.New("response superseded by a newer request")

	// ErrUnknownProblem is returned for a sequence number not on the page.
	ErrUnknownProblem = errors.New("no such problem on the current page")

	// ErrAnswerKind is returned when an answer's shape does not match the
	// problem's declared answer kind.
	ErrAnswerKind = errors.New("answer kind does not match problem")

	// ErrClosed is returned for any operation after Close.
	ErrClosed = errors.New("session controller is closed")

	// ErrInvalidPage is returned for page numbers outside the session.
	ErrInvalidPage = errors.New("invalid page number")
)
