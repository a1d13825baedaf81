package practice

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/mathdrill/internal/answer"
	"github.com/abhisek/mathdrill/internal/delivery"
	"github.com/abhisek/mathdrill/internal/inactivity"
	"github.com/abhisek/mathdrill/internal/session"
	"github.com/abhisek/mathdrill/internal/ui/components"
	"github.com/abhisek/mathdrill/internal/ui/theme"
)

const blank = "____"

func (s *Screen) View(width, height int) string {
	if s.confirmQuit {
		return renderQuitConfirm(width)
	}

	st := s.state
	if len(st.Problems) == 0 {
		if st.Err != "" {
			return renderError(width, st.Err)
		}
		return renderLoading(width, st.CurrentPage)
	}

	var b strings.Builder

	submitted := 0
	for p := 1; p <= st.TotalPages; p++ {
		if st.Status(p).Submitted {
			submitted++
		}
	}
	bar := components.NewProgressBar(
		fmt.Sprintf("Pages submitted %d/%d", submitted, st.TotalPages),
		components.Fraction(submitted, st.TotalPages), false, min(width-4, 60))
	b.WriteString("  " + bar.View())
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Foreground(theme.Border).Render(strings.Repeat("─", max(width-4, 0))))
	b.WriteString("\n\n")

	for _, p := range st.Problems {
		b.WriteString(s.renderProblem(p))
		b.WriteString("\n\n")
	}

	b.WriteString(s.renderActions())
	b.WriteString("\n\n")
	b.WriteString(s.renderStatusLine())
	return b.String()
}

func (s *Screen) renderProblem(p delivery.Problem) string {
	st := s.state
	question := lipgloss.NewStyle().Foreground(theme.Text).Bold(true).
		Render(fmt.Sprintf("  %d. %s", p.SequenceNumber, p.Question))

	a := st.Answer(p.SequenceNumber)
	var field string
	if p.AnswerKind() == answer.KindFraction {
		field = s.renderPart(p.SequenceNumber, session.PartNumerator, a) +
			lipgloss.NewStyle().Foreground(theme.TextDim).Render(" / ") +
			s.renderPart(p.SequenceNumber, session.PartDenominator, a)
	} else {
		field = s.renderPart(p.SequenceNumber, session.PartValue, a)
	}

	line := "     " + field
	if s.hint.Target == inactivity.TargetField && s.hint.Field.Sequence == p.SequenceNumber {
		line += theme.Nudge.Render("  <- try this one")
	}
	return question + "\n" + line
}

func (s *Screen) renderPart(seq int, part session.Part, a answer.Answer) string {
	ref := session.FieldRef{Sequence: seq, Part: part}
	if !s.state.Editable() {
		v := session.PartText(a, part)
		if v == "" {
			v = blank
		}
		return theme.Locked.Render(v)
	}
	if s.hasFocus && s.focus == ref {
		return theme.Focused.Render("[") + s.input.View() + theme.Focused.Render("]")
	}
	v := session.PartText(a, part)
	if v == "" {
		v = blank
	}
	if s.hint.Target == inactivity.TargetField && s.hint.Field == ref {
		return theme.Nudge.Render(v)
	}
	return theme.Unfocused.Render(v)
}

func (s *Screen) renderActions() string {
	st := s.state
	if st.Session == session.SessionReadyToComplete || st.Session == session.SessionCompleting {
		label := "Finish session (Ctrl+S)"
		if st.Session == session.SessionCompleting {
			label = "Finishing..."
		}
		return "  " + components.NewButton(label, st.CanComplete(), s.hint.Target == inactivity.TargetComplete).View()
	}

	label := "Submit page (Ctrl+S)"
	switch {
	case st.Phase == session.PhaseSubmitting:
		label = "Submitting..."
	case st.Phase == session.PhaseLocked:
		label = "Page submitted"
	}
	return "  " + components.NewButton(label, st.CanSubmit(), s.hint.Target == inactivity.TargetSubmit).View()
}

func (s *Screen) renderStatusLine() string {
	st := s.state
	switch {
	case st.Err != "":
		return theme.ErrorText.Render("  " + st.Err)
	case s.notice != "":
		return theme.Hint.Render("  " + s.notice)
	case st.Loading:
		return theme.Hint.Render("  Loading...")
	case st.Expired(s.now()):
		return theme.Hint.Render("  Time is up. You can still finish your answers.")
	}
	return theme.Hint.Render(fmt.Sprintf("  %d of %d answered", st.CompletedCount(), len(st.Problems)))
}

func renderQuitConfirm(width int) string {
	var b strings.Builder
	b.WriteString("\n\n\n")
	b.WriteString(theme.Title.Width(width).Render("Leave this session?"))
	b.WriteString("\n")
	b.WriteString(theme.Subtitle.Width(width).Render("Your answers are saved. Resume later with 'mathdrill resume'."))
	b.WriteString("\n\n")
	b.WriteString(lipgloss.NewStyle().Width(width).Align(lipgloss.Center).Foreground(theme.Success).
		Render("[Y] Yes, leave"))
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().Width(width).Align(lipgloss.Center).Foreground(theme.Primary).
		Render("[N] No, keep going"))
	return b.String()
}

func renderLoading(width, page int) string {
	return lipgloss.NewStyle().
		Width(width).
		Align(lipgloss.Center).
		Foreground(theme.TextDim).
		Render(fmt.Sprintf("\n\n\n  Loading page %d...", page))
}

func renderError(width int, msg string) string {
	return lipgloss.NewStyle().
		Width(width).
		Align(lipgloss.Center).
		Foreground(theme.Error).
		Render(fmt.Sprintf("\n\n\n  %s\n\n  Press Ctrl+R to retry or Esc to leave.", msg))
}
