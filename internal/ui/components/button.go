package components

import (
	"github.com/abhisek/mathdrill/internal/ui/theme"
)

// Button is a styled action label.
type Button struct {
	Label  string
	Active bool

	// Nudge highlights the button as the suggested next action.
	Nudge bool
}

// NewButton creates a new button.
func NewButton(label string, active, nudge bool) Button {
	return Button{Label: label, Active: active, Nudge: nudge}
}

// View renders the button.
func (b Button) View() string {
	label := " " + b.Label + " "
	switch {
	case !b.Active:
		return theme.ButtonInactive.Render(label)
	case b.Nudge:
		return theme.ButtonNudge.Render("> " + label)
	default:
		return theme.ButtonActive.Render(label)
	}
}
