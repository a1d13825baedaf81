package practice

import (
	"time"

	"github.com/abhisek/mathdrill/internal/inactivity"
	"github.com/abhisek/mathdrill/internal/session"
)

// stateMsg carries a state published by the controller.
type stateMsg struct {
	State session.ViewState
}

// stateClosedMsg is sent when the subscription ends.
type stateClosedMsg struct{}

// hintMsg carries a hint change from the inactivity monitor.
type hintMsg struct {
	Hint inactivity.Hint
}

// loadedMsg reports the outcome of a page fetch.
type loadedMsg struct {
	Page int
	Err  error
}

// submittedMsg reports the outcome of a page submission.
type submittedMsg struct {
	Page int
	Err  error
}

// completedMsg reports the outcome of completing the session.
type completedMsg struct {
	Err error
}

// timerTickMsg is sent every second to refresh the countdown.
type timerTickMsg time.Time
