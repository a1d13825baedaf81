// Package practice is the screen on which a learner works through the pages
// of a session. It renders controller state and forwards keystrokes; all
// session rules live in the session package.
package practice

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "charm.land/bubbletea/v2"
	"go.uber.org/zap"

	"github.com/abhisek/mathdrill/internal/delivery"
	"github.com/abhisek/mathdrill/internal/inactivity"
	"github.com/abhisek/mathdrill/internal/router"
	"github.com/abhisek/mathdrill/internal/screen"
	"github.com/abhisek/mathdrill/internal/screens/results"
	"github.com/abhisek/mathdrill/internal/session"
	"github.com/abhisek/mathdrill/internal/ui/components"
	"github.com/abhisek/mathdrill/internal/ui/layout"
)

// closeTimeout bounds the final autosave flush when the screen goes away.
const closeTimeout = 5 * time.Second

// Deps are the collaborators of a practice screen.
type Deps struct {
	Controller *session.Controller

	// Client fetches results once the session is completed.
	Client delivery.Client

	// StartPage is the page loaded first; zero means page 1.
	StartPage int

	// IdleAfter is the inactivity window before a hint appears.
	IdleAfter time.Duration

	Logger *zap.Logger
	Now    func() time.Time
}

// Screen implements screen.Screen for an active session.
type Screen struct {
	ctrl      *session.Controller
	client    delivery.Client
	logger    *zap.Logger
	now       func() time.Time
	startPage int

	ctx     context.Context
	cancel  context.CancelFunc
	updates <-chan session.ViewState
	hints   chan inactivity.Hint
	monitor *inactivity.Monitor

	state     session.ViewState
	focus     session.FieldRef
	focusPage int
	hasFocus  bool
	input     components.TextInput
	hint      inactivity.Hint

	notice      string
	confirmQuit bool
	closed      bool
}

var _ screen.Screen = (*Screen)(nil)
var _ screen.KeyHintProvider = (*Screen)(nil)
var _ screen.StatusProvider = (*Screen)(nil)
var _ screen.Closer = (*Screen)(nil)

// New creates a practice screen. The controller is owned by the screen from
// here on and is closed by Close.
func New(d Deps) *Screen {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.StartPage < 1 {
		d.StartPage = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Screen{
		ctrl:      d.Controller,
		client:    d.Client,
		logger:    d.Logger,
		now:       d.Now,
		startPage: d.StartPage,
		ctx:       ctx,
		cancel:    cancel,
		hints:     make(chan inactivity.Hint, 1),
		state:     d.Controller.State(),
	}
	s.monitor = inactivity.NewMonitor(d.IdleAfter, d.Controller.State, s.pushHint)
	return s
}

func (s *Screen) Init() tea.Cmd {
	s.updates = s.ctrl.Subscribe(s.ctx)
	s.monitor.Start()
	return tea.Batch(
		waitForState(s.updates),
		waitForHint(s.ctx, s.hints),
		s.loadPage(s.startPage),
		tickCmd(),
	)
}

func (s *Screen) Title() string {
	return "Practice"
}

// Status shows the page counter and the remaining study time.
func (s *Screen) Status() string {
	if s.state.TotalPages == 0 {
		return ""
	}
	clock := "time's up"
	if !s.state.Expired(s.now()) {
		clock = layout.FormatClock(s.state.Remaining(s.now()))
	}
	return fmt.Sprintf("Page %d/%d   %s", s.state.CurrentPage, s.state.TotalPages, clock)
}

func (s *Screen) KeyHints() []layout.KeyHint {
	if s.confirmQuit {
		return []layout.KeyHint{
			{Key: "Y", Description: "Leave"},
			{Key: "N", Description: "Keep going"},
		}
	}
	hints := []layout.KeyHint{
		{Key: "Tab/↑↓", Description: "Move"},
	}
	switch {
	case s.state.CanComplete():
		hints = append(hints, layout.KeyHint{Key: "Ctrl+S", Description: "Finish session"})
	case s.state.CanSubmit():
		hints = append(hints, layout.KeyHint{Key: "Ctrl+S", Description: "Submit page"})
	}
	return append(hints,
		layout.KeyHint{Key: "PgUp/PgDn", Description: "Pages"},
		layout.KeyHint{Key: "Esc", Description: "Leave"},
	)
}

func (s *Screen) Update(msg tea.Msg) (screen.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case stateMsg:
		s.applyState(msg.State)
		return s, waitForState(s.updates)

	case stateClosedMsg:
		return s, nil

	case hintMsg:
		s.hint = msg.Hint
		return s, waitForHint(s.ctx, s.hints)

	case loadedMsg:
		if msg.Err != nil && !ignorable(msg.Err) {
			s.logger.Warn("page load failed", zap.Int("page", msg.Page), zap.Error(msg.Err))
		}
		return s, nil

	case submittedMsg:
		return s.handleSubmitted(msg)

	case completedMsg:
		return s.handleCompleted(msg)

	case timerTickMsg:
		if s.closed {
			return s, nil
		}
		return s, tickCmd()

	case tea.KeyPressMsg:
		s.monitor.Touch()
		return s.handleKey(msg)
	}

	return s, nil
}

// Close stops the monitor and closes the controller, flushing pending
// autosaves within closeTimeout.
func (s *Screen) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.monitor.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	err := s.ctrl.Close(ctx)
	s.cancel()
	return err
}

// applyState installs a published state and keeps focus on a valid input.
func (s *Screen) applyState(st session.ViewState) {
	s.state = st
	if st.Err != "" {
		s.notice = ""
	}

	fields := session.Fields(st.Problems)
	if len(fields) == 0 {
		s.hasFocus = false
		return
	}
	if s.hasFocus && s.focusPage == st.CurrentPage && containsField(fields, s.focus) {
		return
	}
	f, ok := session.FirstIncompleteField(st.Problems, st.Answers)
	if !ok {
		f = fields[0]
	}
	s.setFocus(f)
}

func (s *Screen) setFocus(f session.FieldRef) {
	s.focus = f
	s.focusPage = s.state.CurrentPage
	s.hasFocus = true

	placeholder := "answer"
	switch f.Part {
	case session.PartNumerator:
		placeholder = "num"
	case session.PartDenominator:
		placeholder = "den"
	}
	s.input = components.NewTextInput(placeholder, f.Part != session.PartValue, 16)
	s.input.SetValue(session.PartText(s.state.Answer(f.Sequence), f.Part))
}

func (s *Screen) handleKey(msg tea.KeyPressMsg) (screen.Screen, tea.Cmd) {
	key := msg.String()

	if s.confirmQuit {
		switch key {
		case "y", "Y":
			return s, tea.Quit
		case "n", "N", "esc":
			s.confirmQuit = false
		}
		return s, nil
	}

	switch key {
	case "esc":
		s.confirmQuit = true
		return s, nil
	case "tab", "down", "enter":
		s.moveFocus(session.NextFocusableField)
		return s, nil
	case "shift+tab", "up":
		s.moveFocus(session.PrevFocusableField)
		return s, nil
	case "ctrl+s":
		return s.primaryAction()
	case "pgup":
		if s.state.CurrentPage > 1 && !s.state.Loading {
			return s, s.loadPage(s.state.CurrentPage - 1)
		}
		return s, nil
	case "pgdown":
		return s, s.nextPage()
	case "ctrl+r":
		return s, s.loadPage(s.state.CurrentPage)
	}

	if !s.hasFocus || !s.state.Editable() {
		return s, nil
	}

	var cmd tea.Cmd
	var changed bool
	s.input, cmd, changed = s.input.Update(msg)
	if changed {
		if err := s.ctrl.SetPart(s.focus, s.input.Value()); err != nil {
			s.notice = editError(err)
			s.input.SetValue(session.PartText(s.ctrl.State().Answer(s.focus.Sequence), s.focus.Part))
		}
	}
	return s, cmd
}

func (s *Screen) moveFocus(step func([]delivery.Problem, session.FieldRef) (session.FieldRef, bool)) {
	if len(s.state.Problems) == 0 {
		return
	}
	if f, ok := step(s.state.Problems, s.focus); ok {
		s.setFocus(f)
	}
}

// primaryAction submits the page, or finishes the session once every page
// is in.
func (s *Screen) primaryAction() (screen.Screen, tea.Cmd) {
	switch {
	case s.state.CanComplete():
		return s, s.complete()
	case s.state.CanSubmit():
		return s, s.submit()
	case s.state.Phase == session.PhaseLocked:
		s.notice = "This page is already submitted."
	}
	return s, nil
}

// nextPage moves forward to a page that has been reached already. Pages past
// the first unsubmitted one are not shown.
func (s *Screen) nextPage() tea.Cmd {
	st := s.state
	if st.Loading || st.TotalPages == 0 || st.CurrentPage >= st.TotalPages {
		return nil
	}
	if !st.Status(st.CurrentPage).Submitted {
		return nil
	}
	return s.loadPage(st.CurrentPage + 1)
}

func (s *Screen) handleSubmitted(msg submittedMsg) (screen.Screen, tea.Cmd) {
	if msg.Err != nil {
		if !ignorable(msg.Err) {
			s.logger.Warn("submit failed", zap.Int("page", msg.Page), zap.Error(msg.Err))
		}
		return s, nil
	}
	st := s.ctrl.State()
	if st.Session == session.SessionActive && st.Phase == session.PhaseUnloaded {
		return s, s.loadPage(st.CurrentPage)
	}
	return s, nil
}

func (s *Screen) handleCompleted(msg completedMsg) (screen.Screen, tea.Cmd) {
	if msg.Err != nil {
		if !ignorable(msg.Err) {
			s.logger.Warn("complete failed", zap.Error(msg.Err))
		}
		return s, nil
	}
	next := results.New(s.client, s.state.SessionID)
	return s, func() tea.Msg { return router.ReplaceScreenMsg{Screen: next} }
}

// Commands

func (s *Screen) loadPage(page int) tea.Cmd {
	ctx, ctrl := s.ctx, s.ctrl
	return func() tea.Msg {
		return loadedMsg{Page: page, Err: ctrl.LoadPage(ctx, page)}
	}
}

func (s *Screen) submit() tea.Cmd {
	ctx, ctrl, page := s.ctx, s.ctrl, s.state.CurrentPage
	return func() tea.Msg {
		return submittedMsg{Page: page, Err: ctrl.SubmitCurrentPage(ctx)}
	}
}

func (s *Screen) complete() tea.Cmd {
	ctx, ctrl := s.ctx, s.ctrl
	return func() tea.Msg {
		return completedMsg{Err: ctrl.CompleteSession(ctx)}
	}
}

func waitForState(ch <-chan session.ViewState) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-ch
		if !ok {
			return stateClosedMsg{}
		}
		return stateMsg{State: st}
	}
}

func waitForHint(ctx context.Context, ch <-chan inactivity.Hint) tea.Cmd {
	return func() tea.Msg {
		select {
		case h := <-ch:
			return hintMsg{Hint: h}
		case <-ctx.Done():
			return nil
		}
	}
}

// pushHint hands a hint to the UI loop, replacing one not yet read.
func (s *Screen) pushHint(h inactivity.Hint) {
	select {
	case <-s.hints:
	default:
	}
	select {
	case s.hints <- h:
	default:
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return timerTickMsg(t)
	})
}

// editError turns a rejected edit into a short notice.
func editError(err error) string {
	switch {
	case errors.Is(err, session.ErrPageLocked):
		return "This page is submitted and can no longer be changed."
	case errors.Is(err, session.ErrSubmitInProgress):
		return "Submitting, please wait."
	case errors.Is(err, session.ErrSessionCompleted):
		return "The session is complete."
	default:
		return err.Error()
	}
}

// ignorable reports errors the UI already reflects through state, or that
// only mean a newer action superseded this one.
func ignorable(err error) bool {
	return errors.Is(err, session.ErrStaleResponse) ||
		errors.Is(err, session.ErrSubmitInProgress) ||
		errors.Is(err, session.ErrBusy) ||
		errors.Is(err, session.ErrClosed) ||
		errors.Is(err, context.Canceled)
}

func containsField(fields []session.FieldRef, f session.FieldRef) bool {
	for _, x := range fields {
		if x == f {
			return true
		}
	}
	return false
}
