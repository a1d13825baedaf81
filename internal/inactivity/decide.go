// Package inactivity nudges an idle learner toward the next useful action.
package inactivity

import (
	"time"

	"github.com/abhisek/mathdrill/internal/session"
)

// DefaultIdleAfter is how long without interaction before a hint appears.
const DefaultIdleAfter = 30 * time.Second

// Target is the kind of UI element a hint points at.
type Target int

const (
	TargetNone     Target = iota // Nothing to highlight
	TargetField                  // An empty answer input
	TargetSubmit                 // The submit-page action
	TargetComplete               // The complete-session action
)

func (t Target) String() string {
	switch t {
	case TargetField:
		return "field"
	case TargetSubmit:
		return "submit"
	case TargetComplete:
		return "complete"
	default:
		return "none"
	}
}

// Hint designates what the UI should highlight. Field is set only for
// TargetField.
type Hint struct {
	Target Target
	Field  session.FieldRef
}

// Decide picks the hint for s. It has no side effects.
func Decide(s session.ViewState) Hint {
	if s.CanComplete() {
		return Hint{Target: TargetComplete}
	}
	if !s.Editable() || s.Loading || len(s.Problems) == 0 {
		return Hint{}
	}
	if f, ok := session.FirstIncompleteField(s.Problems, s.Answers); ok {
		return Hint{Target: TargetField, Field: f}
	}
	return Hint{Target: TargetSubmit}
}
