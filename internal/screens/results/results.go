// Package results shows the graded outcome of a completed session.
package results

import (
	"context"
	"fmt"
	"image/color"
	"strings"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/abhisek/mathdrill/internal/delivery"
	"github.com/abhisek/mathdrill/internal/screen"
	"github.com/abhisek/mathdrill/internal/ui/layout"
	"github.com/abhisek/mathdrill/internal/ui/theme"
)

// detailsMsg carries the fetched results.
type detailsMsg struct {
	Details *delivery.SessionDetails
	Err     error
}

// Screen displays the session results.
type Screen struct {
	client    delivery.Client
	sessionID string
	details   *delivery.SessionDetails
	err       error
	offset    int
}

var _ screen.Screen = (*Screen)(nil)
var _ screen.KeyHintProvider = (*Screen)(nil)

// New creates a results screen that fetches the details of sessionID.
func New(client delivery.Client, sessionID string) *Screen {
	return &Screen{client: client, sessionID: sessionID}
}

func (s *Screen) Init() tea.Cmd {
	client, id := s.client, s.sessionID
	return func() tea.Msg {
		d, err := client.GetSessionDetails(context.Background(), delivery.DetailsRequest{SessionID: id})
		return detailsMsg{Details: d, Err: err}
	}
}

func (s *Screen) Title() string {
	return "Results"
}

func (s *Screen) KeyHints() []layout.KeyHint {
	return []layout.KeyHint{
		{Key: "↑↓", Description: "Scroll"},
		{Key: "Enter", Description: "Done"},
	}
}

func (s *Screen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case detailsMsg:
		s.details, s.err = msg.Details, msg.Err
		return s, nil
	case tea.KeyPressMsg:
		switch msg.String() {
		case "enter", "esc", "q":
			return s, tea.Quit
		case "r":
			if s.err != nil {
				s.err = nil
				return s, s.Init()
			}
		case "down", "j":
			if s.details != nil && s.offset < len(s.details.Problems)-1 {
				s.offset++
			}
		case "up", "k":
			if s.offset > 0 {
				s.offset--
			}
		}
	}
	return s, nil
}

func (s *Screen) View(width, height int) string {
	if s.err != nil {
		return lipgloss.NewStyle().
			Width(width).
			Align(lipgloss.Center).
			Foreground(theme.Error).
			Render(fmt.Sprintf("\n\n\n  Could not load results: %v\n\n  Press R to retry.", s.err))
	}
	d := s.details
	if d == nil {
		return lipgloss.NewStyle().
			Width(width).
			Align(lipgloss.Center).
			Foreground(theme.TextDim).
			Render("\n\n\n  Loading results...")
	}

	var b strings.Builder

	b.WriteString(lipgloss.NewStyle().
		Width(width).
		Align(lipgloss.Center).
		Foreground(celebrationColor(d.Celebration.Level)).
		Bold(true).
		Render(d.Celebration.Title))
	b.WriteString("\n")
	if d.Celebration.Message != "" {
		b.WriteString(theme.Subtitle.Width(width).Render(d.Celebration.Message))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	statsLine := fmt.Sprintf("Correct: %d        Total: %d        Score: %.0f%%",
		d.Score.Correct, d.Score.Total, d.Score.Percentage)
	b.WriteString(lipgloss.NewStyle().
		Width(width).
		Align(lipgloss.Center).
		Foreground(theme.Text).
		Render(statsLine))
	b.WriteString("\n\n")

	divider := lipgloss.NewStyle().Foreground(theme.Border).Render(strings.Repeat("─", min(width-8, 60)))
	b.WriteString(lipgloss.PlaceHorizontal(width, lipgloss.Center, divider))
	b.WriteString("\n\n")

	// Leave room for the header lines above.
	rows := height - 8
	if rows < 1 {
		rows = 1
	}
	end := min(s.offset+rows, len(d.Problems))
	for _, p := range d.Problems[s.offset:end] {
		b.WriteString(renderResult(p))
		b.WriteString("\n")
	}
	return b.String()
}

func renderResult(p delivery.ProblemResult) string {
	mark := theme.Correct.Render("✓")
	detail := ""
	if !p.IsCorrect {
		mark = theme.Incorrect.Render("✗")
		given := p.UserAnswer
		if given == "" {
			given = "no answer"
		}
		detail = theme.Hint.Render(fmt.Sprintf("   yours: %s, correct: %s", given, p.CorrectAnswer))
	}
	return fmt.Sprintf("  %s  p%d #%d  %s%s", mark, p.PageNumber, p.SequenceNumber, p.Question, detail)
}

// celebrationColor maps the server's celebration level to a theme color.
func celebrationColor(level string) color.Color {
	switch level {
	case "gold":
		return theme.Accent
	case "silver":
		return theme.Secondary
	case "bronze":
		return theme.Success
	default:
		return theme.Primary
	}
}
