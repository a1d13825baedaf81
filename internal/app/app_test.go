package app

import (
	"strings"
	"testing"

	tea "charm.land/bubbletea/v2"

	"github.com/abhisek/mathdrill/internal/screen"
	"github.com/abhisek/mathdrill/internal/ui/layout"
)

type stubScreen struct {
	closed bool
}

func (s *stubScreen) Init() tea.Cmd                            { return nil }
func (s *stubScreen) Update(tea.Msg) (screen.Screen, tea.Cmd) { return s, nil }
func (s *stubScreen) View(int, int) string                    { return "stub content" }
func (s *stubScreen) Title() string                           { return "Stub" }
func (s *stubScreen) Status() string                          { return "Page 2/3" }
func (s *stubScreen) KeyHints() []layout.KeyHint {
	return []layout.KeyHint{{Key: "X", Description: "Do it"}}
}
func (s *stubScreen) Close() error {
	s.closed = true
	return nil
}

func TestView_RendersHeaderStatusAndHints(t *testing.T) {
	m := New(&stubScreen{})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})

	content := updated.(AppModel).render()
	for _, want := range []string{"mathdrill", "Stub", "Page 2/3", "stub content", "Do it", "Quit"} {
		if !strings.Contains(content, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestView_TooSmall(t *testing.T) {
	m := New(&stubScreen{})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 40, Height: 10})

	if !strings.Contains(updated.(AppModel).render(), "Terminal too small") {
		t.Error("expected the minimum size message")
	}
}

func TestCtrlCQuits(t *testing.T) {
	m := New(&stubScreen{})
	_, cmd := m.Update(tea.KeyPressMsg{Code: 'c', Mod: tea.ModCtrl})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestCloseClosesScreens(t *testing.T) {
	s := &stubScreen{}
	New(s).Close()
	if !s.closed {
		t.Error("expected screen to be closed")
	}
}
