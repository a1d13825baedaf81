package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/mathdrill/internal/answer"
	"github.com/abhisek/mathdrill/internal/autosave"
	"github.com/abhisek/mathdrill/internal/delivery"
	"github.com/abhisek/mathdrill/internal/metrics"
	"github.com/abhisek/mathdrill/internal/store"
)

// DefaultFlushTimeout bounds how long a page submit or reload waits for pending
// autosaves of that page.
const DefaultFlushTimeout = 5 * time.Second

// Controller is the single owner of a session's ViewState. Every change goes
// through its methods; readers use State or Subscribe.
type Controller struct {
	mu    sync.Mutex
	state ViewState

	client    delivery.Client
	scheduler *autosave.Scheduler
	queue     *autosave.Queue

	logger    *zap.Logger
	snapshots store.SnapshotRepo

	flushTimeout time.Duration

	// loadToken identifies the newest LoadPage call; older responses are
	// discarded.
	loadToken uint64
	// loadPrev is the page phase to restore if the newest load fails.
	loadPrev PagePhase
	// loadEdits holds answers typed on the current page while a load is in
	// flight; they win over the fetched values when that page is reloaded.
	loadEdits map[int]answer.Answer

	subs    map[int]chan ViewState
	nextSub int
	done    chan struct{}
	closed  bool
}

// config collects construction options.
type config struct {
	logger       *zap.Logger
	metrics      *metrics.Metrics
	journal      store.EventRepo
	snapshots    store.SnapshotRepo
	delay        time.Duration
	retry        autosave.RetryConfig
	flushTimeout time.Duration
}

// Option customizes a Controller.
type Option func(*config)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics records autosave counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithJournal records autosave outcomes.
func WithJournal(repo store.EventRepo) Option {
	return func(c *config) { c.journal = repo }
}

// WithSnapshots persists the session position after every page change.
func WithSnapshots(repo store.SnapshotRepo) Option {
	return func(c *config) { c.snapshots = repo }
}

// WithAutosaveDelay sets the debounce quiet window.
func WithAutosaveDelay(d time.Duration) Option {
	return func(c *config) { c.delay = d }
}

// WithRetry sets the autosave retry policy.
func WithRetry(r autosave.RetryConfig) Option {
	return func(c *config) { c.retry = r }
}

// WithFlushTimeout bounds the wait for pending saves before a page submit or
// reload.
func WithFlushTimeout(d time.Duration) Option {
	return func(c *config) { c.flushTimeout = d }
}

// New creates a Controller for an existing session. No page is loaded until
// LoadPage is called.
func New(client delivery.Client, sessionID string, opts ...Option) *Controller {
	cfg := config{
		logger:       zap.NewNop(),
		delay:        autosave.DefaultDelay,
		retry:        autosave.DefaultRetryConfig(),
		flushTimeout: DefaultFlushTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Controller{
		state: ViewState{
			SessionID:   sessionID,
			CurrentPage: 1,
			Answers:     map[int]answer.Answer{},
			Statuses:    map[int]PageStatus{},
		},
		client:       client,
		logger:       cfg.logger.With(zap.String("session_id", sessionID)),
		snapshots:    cfg.snapshots,
		flushTimeout: cfg.flushTimeout,
		subs:         map[int]chan ViewState{},
		done:         make(chan struct{}),
	}

	c.queue = autosave.NewQueue(client,
		autosave.WithLockCheck(c.IsPageSubmitted),
		autosave.WithRetry(cfg.retry),
		autosave.WithLogger(c.logger),
		autosave.WithMetrics(cfg.metrics),
		autosave.WithJournal(cfg.journal),
	)
	c.scheduler = autosave.NewScheduler(cfg.delay, c.queue.Enqueue)
	return c
}

// State returns a copy of the current state.
func (c *Controller) State() ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// IsPageSubmitted reports whether page has been submitted.
func (c *Controller) IsPageSubmitted(page int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Statuses[page].Submitted
}

// LoadPage fetches page and makes it current. Previously saved answers are
// restored. Pending autosaves of an editable page are flushed and awaited
// (bounded) before the fetch, and edits made while the fetch is in flight are
// kept, so a reload never shows an older value than the one being saved.
// On failure the state is left as it was, apart from Err. If a
// newer LoadPage starts before this one returns, this one's result is
// discarded and ErrStaleResponse is returned.
func (c *Controller) LoadPage(ctx context.Context, page int) error {
	c.mu.Lock()
	if err := c.checkOpen(); err != nil {
		c.mu.Unlock()
		return err
	}
	if c.state.Phase == PhaseSubmitting {
		c.mu.Unlock()
		return ErrSubmitInProgress
	}
	if c.state.Session == SessionCompleting {
		c.mu.Unlock()
		return ErrBusy
	}
	if page < 1 || (c.state.TotalPages > 0 && page > c.state.TotalPages) {
		c.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrInvalidPage, page)
	}

	c.loadToken++
	token := c.loadToken
	if !c.state.Loading {
		c.loadPrev = c.state.Phase
	}
	c.state.Loading = true
	c.loadEdits = map[int]answer.Answer{}
	if page == c.state.CurrentPage && c.state.Phase == PhaseUnloaded {
		c.state.Phase = PhaseLoading
	}
	sessionID := c.state.SessionID
	editable := !c.state.Statuses[page].Submitted
	c.publish()
	c.mu.Unlock()

	if editable {
		c.flush(ctx, page)
	}

	resp, err := c.client.GetSessionProblems(ctx, delivery.ProblemsRequest{SessionID: sessionID, PageNumber: page})

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if token != c.loadToken {
		c.mu.Unlock()
		c.logger.Debug("discarding stale page response", zap.Int("page", page))
		return ErrStaleResponse
	}
	c.state.Loading = false

	if err != nil {
		c.state.Phase = c.loadPrev
		c.state.Err = fmt.Sprintf("Could not load page %d: %v", page, err)
		c.publish()
		c.mu.Unlock()
		c.logger.Error("load page failed", zap.Int("page", page), zap.Error(err))
		return fmt.Errorf("load page %d: %w", page, err)
	}

	leaving := c.state.CurrentPage
	c.applyPage(page, resp)
	if leaving == page {
		c.keepLoadEdits()
	}
	c.loadEdits = nil
	c.publish()
	snap := c.snapshot()
	c.mu.Unlock()

	if leaving != page {
		c.leavePage(leaving)
	}
	c.persist(snap)
	return nil
}

// applyPage installs a fetched page. Callers hold c.mu.
func (c *Controller) applyPage(page int, resp *delivery.PageResponse) {
	s := &c.state
	s.CurrentPage = page
	if resp.TotalPages > 0 {
		s.TotalPages = resp.TotalPages
	}
	s.IsLastPage = resp.IsLastPage || (s.TotalPages > 0 && page == s.TotalPages)

	s.Problems = make([]delivery.Problem, len(resp.Problems))
	copy(s.Problems, resp.Problems)
	s.Answers = make(map[int]answer.Answer, len(resp.Problems))
	for _, p := range resp.Problems {
		s.Answers[p.SequenceNumber] = answer.Denormalize(p.AnswerKind(), p.Answer)
	}

	st := s.Statuses[page]
	st.Visited = true
	st.Submitted = st.Submitted || resp.IsPageSubmitted
	st.HasAnswers = s.hasAnswers()
	s.Statuses[page] = st

	if st.Submitted {
		s.Phase = PhaseLocked
	} else {
		s.Phase = PhaseEditable
	}

	info := resp.SessionInfo
	if !info.StartedAt.IsZero() {
		s.StartedAt = info.StartedAt
	}
	if d := info.Duration(); d > 0 {
		s.Duration = d
	}

	switch {
	case info.Status == delivery.StatusCompleted:
		s.Session = SessionCompleted
	case st.Submitted && s.IsLastPage:
		s.Session = SessionReadyToComplete
	default:
		s.Session = SessionActive
	}
	s.Err = ""
}

// keepLoadEdits reapplies answers typed during the load on top of the
// fetched ones. Their autosaves are still scheduled. Callers hold c.mu.
func (c *Controller) keepLoadEdits() {
	s := &c.state
	if len(c.loadEdits) == 0 || s.Phase != PhaseEditable {
		return
	}
	for seq, a := range c.loadEdits {
		if cur, ok := s.Answers[seq]; ok && cur.Kind == a.Kind {
			s.Answers[seq] = a
		}
	}
	st := s.Statuses[s.CurrentPage]
	st.HasAnswers = s.hasAnswers()
	s.Statuses[s.CurrentPage] = st
}

// leavePage settles pending edits of a page the learner navigated away from.
// Saves still carry their own page number, so an editable page is flushed
// and a locked one is discarded.
func (c *Controller) leavePage(page int) {
	if c.IsPageSubmitted(page) {
		c.scheduler.CancelPage(page)
		return
	}
	c.scheduler.FlushPage(page)
}

// SetAnswer records the learner's answer for a problem on the current page
// and schedules its autosave. Edits on a submitted page are rejected with
// ErrPageLocked and leave the state untouched.
func (c *Controller) SetAnswer(seq int, a answer.Answer) error {
	return c.update(seq, func(answer.Answer) answer.Answer { return a })
}

// SetPart updates one input of a problem's answer. The rest of the answer is
// read under the same lock, so edits to different parts never overwrite
// each other.
func (c *Controller) SetPart(f FieldRef, v string) error {
	return c.update(f.Sequence, func(prev answer.Answer) answer.Answer {
		return WithPart(prev, f.Part, v)
	})
}

// update applies edit to the current answer of seq and schedules its
// autosave.
func (c *Controller) update(seq int, edit func(answer.Answer) answer.Answer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkOpen(); err != nil {
		return err
	}
	s := &c.state
	switch {
	case s.Phase == PhaseSubmitting:
		return ErrSubmitInProgress
	case s.Phase == PhaseLocked || s.Statuses[s.CurrentPage].Submitted:
		return ErrPageLocked
	case s.Phase != PhaseEditable:
		return ErrBusy
	}

	var problem *delivery.Problem
	for i := range s.Problems {
		if s.Problems[i].SequenceNumber == seq {
			problem = &s.Problems[i]
			break
		}
	}
	if problem == nil {
		return fmt.Errorf("%w: %d", ErrUnknownProblem, seq)
	}
	a := edit(s.Answer(seq))
	if a.Kind != problem.AnswerKind() {
		return fmt.Errorf("%w: problem %d expects %s", ErrAnswerKind, seq, problem.AnswerKind())
	}

	if prev, ok := s.Answers[seq]; ok && prev == a {
		return nil
	}
	s.Answers[seq] = a
	if s.Loading && c.loadEdits != nil {
		c.loadEdits[seq] = a
	}
	st := s.Statuses[s.CurrentPage]
	st.HasAnswers = s.hasAnswers()
	s.Statuses[s.CurrentPage] = st
	c.publish()

	// An incomplete answer still restarts the quiet window so an earlier
	// complete value for the field is not saved over it.
	wire, _ := answer.Normalize(a)
	c.scheduler.Schedule(autosave.Task{
		SessionID: s.SessionID,
		Key:       autosave.FieldKey{Page: s.CurrentPage, Sequence: seq},
		Value:     wire,
	})
	return nil
}

// SubmitCurrentPage submits and locks the current page. Pending autosaves of
// the page are flushed first. A second call while one is in flight returns
// ErrSubmitInProgress without contacting the server. On success the session
// advances to the next (unloaded) page, or on the last page becomes ready to
// complete. On failure the page is editable again and nothing is lost.
func (c *Controller) SubmitCurrentPage(ctx context.Context) error {
	c.mu.Lock()
	if err := c.checkOpen(); err != nil {
		c.mu.Unlock()
		return err
	}
	s := &c.state
	switch {
	case s.Phase == PhaseSubmitting:
		c.mu.Unlock()
		return ErrSubmitInProgress
	case s.Phase == PhaseLocked || s.Statuses[s.CurrentPage].Submitted:
		c.mu.Unlock()
		return ErrPageLocked
	case s.Loading || s.Phase != PhaseEditable || s.Session == SessionCompleting:
		c.mu.Unlock()
		return ErrBusy
	}

	page := s.CurrentPage
	sessionID := s.SessionID
	s.Phase = PhaseSubmitting
	s.Err = ""
	c.publish()
	c.mu.Unlock()

	c.flush(ctx, page)

	err := c.client.SubmitPage(ctx, delivery.SubmitPageRequest{SessionID: sessionID, PageNumber: page})

	c.mu.Lock()
	s = &c.state
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if err != nil {
		s.Phase = PhaseEditable
		s.Err = fmt.Sprintf("Could not submit page %d: %v", page, err)
		c.publish()
		c.mu.Unlock()
		c.logger.Error("submit page failed", zap.Int("page", page), zap.Error(err))
		return fmt.Errorf("submit page %d: %w", page, err)
	}

	st := s.Statuses[page]
	st.Submitted = true
	s.Statuses[page] = st

	if s.IsLastPage || (s.TotalPages > 0 && page >= s.TotalPages) {
		s.Phase = PhaseLocked
		s.Session = SessionReadyToComplete
	} else {
		s.CurrentPage = page + 1
		s.IsLastPage = s.TotalPages > 0 && s.CurrentPage == s.TotalPages
		s.Problems = nil
		s.Answers = map[int]answer.Answer{}
		s.Phase = PhaseUnloaded
	}
	c.publish()
	snap := c.snapshot()
	c.mu.Unlock()

	// Anything typed during the submit was rejected; drop leftover timers.
	c.scheduler.CancelPage(page)
	c.logger.Info("page submitted", zap.Int("page", page))
	c.persist(snap)
	return nil
}

// flush fires pending saves for page and waits, bounded, for the queue to
// drain. Autosave trouble never blocks the submit or load that follows.
func (c *Controller) flush(ctx context.Context, page int) {
	if n := c.scheduler.FlushPage(page); n > 0 {
		c.logger.Debug("flushed pending autosaves", zap.Int("page", page), zap.Int("count", n))
	}
	wctx, cancel := context.WithTimeout(ctx, c.flushTimeout)
	defer cancel()
	if err := c.queue.Wait(wctx); err != nil {
		c.logger.Warn("autosave queue did not drain", zap.Int("page", page), zap.Error(err))
	}
}

// CompleteSession finishes the session. It is accepted only when the current
// page is the last page and has been submitted; otherwise it returns
// ErrNotReadyToComplete and changes nothing. After success every operation
// returns ErrSessionCompleted.
func (c *Controller) CompleteSession(ctx context.Context) error {
	c.mu.Lock()
	if err := c.checkOpen(); err != nil {
		c.mu.Unlock()
		return err
	}
	s := &c.state
	if s.Session == SessionCompleting {
		c.mu.Unlock()
		return ErrBusy
	}
	if s.Loading || s.Phase == PhaseSubmitting {
		c.mu.Unlock()
		return ErrBusy
	}
	if s.TotalPages == 0 || s.CurrentPage != s.TotalPages || !s.Statuses[s.CurrentPage].Submitted {
		c.mu.Unlock()
		return ErrNotReadyToComplete
	}

	sessionID := s.SessionID
	s.Session = SessionCompleting
	s.Err = ""
	c.publish()
	c.mu.Unlock()

	err := c.client.CompleteSession(ctx, delivery.CompleteSessionRequest{SessionID: sessionID})

	c.mu.Lock()
	s = &c.state
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if err != nil {
		s.Session = SessionReadyToComplete
		s.Err = fmt.Sprintf("Could not complete the session: %v", err)
		c.publish()
		c.mu.Unlock()
		c.logger.Error("complete session failed", zap.Error(err))
		return fmt.Errorf("complete session: %w", err)
	}
	s.Session = SessionCompleted
	c.publish()
	snap := c.snapshot()
	c.mu.Unlock()

	c.scheduler.Close()
	c.logger.Info("session completed")
	c.persist(snap)
	return nil
}

// Close flushes pending saves of an editable page, waits for them within
// ctx, and releases timers, the queue and all subscriptions.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	page := c.state.CurrentPage
	editable := c.state.Phase == PhaseEditable
	c.mu.Unlock()

	var waitErr error
	if editable {
		c.scheduler.FlushPage(page)
	}
	if err := c.queue.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
		waitErr = fmt.Errorf("wait for autosave: %w", err)
	}

	c.scheduler.Close()
	c.queue.Close()

	c.mu.Lock()
	c.closed = true
	close(c.done)
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.mu.Unlock()
	return waitErr
}

// checkOpen rejects operations on a completed or closed session. Callers
// hold c.mu.
func (c *Controller) checkOpen() error {
	if c.closed {
		return ErrClosed
	}
	if c.state.Session == SessionCompleted {
		return ErrSessionCompleted
	}
	return nil
}

// snapshot captures the position to persist. Callers hold c.mu.
func (c *Controller) snapshot() *store.SessionSnapshot {
	if c.snapshots == nil {
		return nil
	}
	return &store.SessionSnapshot{
		SessionID:   c.state.SessionID,
		CurrentPage: c.state.CurrentPage,
		TotalPages:  c.state.TotalPages,
		Completed:   c.state.Session == SessionCompleted,
	}
}

// persist saves snap outside the state lock. Failures are logged only.
func (c *Controller) persist(snap *store.SessionSnapshot) {
	if snap == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.snapshots.Save(ctx, snap); err != nil {
		c.logger.Warn("failed to save session snapshot", zap.Error(err))
		return
	}
	if err := c.snapshots.Prune(ctx, snap.SessionID, 10); err != nil {
		c.logger.Warn("failed to prune session snapshots", zap.Error(err))
	}
}
