package delivery

import (
	"context"
	"fmt"
	"net/http"
	"sync"
)

// MockCall records one request received by a MockClient.
type MockCall struct {
	Op      string
	Request any
}

// Gate holds calls of one operation until released. Tests use it to observe
// state while a request is in flight.
type Gate struct {
	entered     chan struct{}
	release     chan struct{}
	enterOnce   sync.Once
	releaseOnce sync.Once
}

func newGate() *Gate {
	return &Gate{entered: make(chan struct{}), release: make(chan struct{})}
}

// Entered is closed once the first held call has arrived.
func (g *Gate) Entered() <-chan struct{} { return g.entered }

// Release lets every held and future call through.
func (g *Gate) Release() { g.releaseOnce.Do(func() { close(g.release) }) }

func (g *Gate) wait(ctx context.Context) error {
	g.enterOnce.Do(func() { close(g.entered) })
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type mockField struct {
	page int
	seq  int
}

// MockClient is a deterministic in-memory Client for testing.
//
// It serves the pages it was given, remembers saved answers and submitted
// pages, returns queued errors in FIFO order per operation and records all
// requests. Like every Client it validates requests before anything else;
// rejected requests are recorded but never reach the queued errors.
type MockClient struct {
	mu        sync.Mutex
	pages     map[int]*PageResponse
	details   *SessionDetails
	sessionID string
	errs      map[string][]error
	gates     map[string]*Gate
	saved     map[mockField]string
	submitted map[int]bool
	completed bool
	calls     []MockCall
}

var _ Client = (*MockClient)(nil)

// NewMockClient creates a MockClient serving pages keyed by page number.
func NewMockClient(pages map[int]*PageResponse) *MockClient {
	if pages == nil {
		pages = map[int]*PageResponse{}
	}
	return &MockClient{
		pages:     pages,
		sessionID: "mock-session",
		errs:      map[string][]error{},
		gates:     map[string]*Gate{},
		saved:     map[mockField]string{},
		submitted: map[int]bool{},
	}
}

// SetPage replaces the page served for pageNumber.
func (m *MockClient) SetPage(pageNumber int, resp *PageResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[pageNumber] = resp
}

// SetDetails sets the results payload.
func (m *MockClient) SetDetails(d *SessionDetails) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.details = d
}

// FailNext queues err as the result of the next call of op.
func (m *MockClient) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[op] = append(m.errs[op], err)
}

// Hold makes every call of op block until the returned gate is released or
// the call's context ends.
func (m *MockClient) Hold(op string) *Gate {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := newGate()
	m.gates[op] = g
	return g
}

// Calls returns a copy of the recorded requests.
func (m *MockClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns the number of calls made for op.
func (m *MockClient) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Saved returns the last answer saved for a field.
func (m *MockClient) Saved(page, seq int) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.saved[mockField{page, seq}]
	return v, ok
}

// PageSubmitted reports whether SubmitPage succeeded for page.
func (m *MockClient) PageSubmitted(page int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submitted[page]
}

// Completed reports whether CompleteSession succeeded.
func (m *MockClient) Completed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.completed
}

// begin validates and records the call, waits on any gate and pops a queued
// error.
func (m *MockClient) begin(ctx context.Context, op string, req any) error {
	if err := Validate(op, req); err != nil {
		m.mu.Lock()
		m.calls = append(m.calls, MockCall{Op: op, Request: req})
		m.mu.Unlock()
		return err
	}

	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Op: op, Request: req})
	gate := m.gates[op]
	m.mu.Unlock()

	if gate != nil {
		if err := gate.wait(ctx); err != nil {
			return &UnavailableError{Op: op, Err: err}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if q := m.errs[op]; len(q) > 0 {
		m.errs[op] = q[1:]
		return q[0]
	}
	return nil
}

func (m *MockClient) GetSessionProblems(ctx context.Context, req ProblemsRequest) (*PageResponse, error) {
	if err := m.begin(ctx, OpGetSessionProblems, req); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	page, ok := m.pages[req.PageNumber]
	if !ok {
		return nil, &StatusError{Op: OpGetSessionProblems, StatusCode: http.StatusNotFound, Message: fmt.Sprintf("page %d not found", req.PageNumber)}
	}

	out := *page
	out.Problems = make([]Problem, len(page.Problems))
	copy(out.Problems, page.Problems)
	for i, p := range out.Problems {
		if v, ok := m.saved[mockField{req.PageNumber, p.SequenceNumber}]; ok {
			out.Problems[i].Answer = v
		}
	}
	if m.submitted[req.PageNumber] {
		out.IsPageSubmitted = true
	}
	if out.SessionInfo.SessionID == "" {
		out.SessionInfo.SessionID = req.SessionID
	}
	return &out, nil
}

func (m *MockClient) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) error {
	if err := m.begin(ctx, OpSubmitAnswer, req); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitted[req.PageNumber] {
		return &StatusError{Op: OpSubmitAnswer, StatusCode: http.StatusConflict, Message: "page already submitted"}
	}
	m.saved[mockField{req.PageNumber, req.SequenceNumber}] = req.Answer
	return nil
}

func (m *MockClient) SubmitPage(ctx context.Context, req SubmitPageRequest) error {
	if err := m.begin(ctx, OpSubmitPage, req); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted[req.PageNumber] = true
	return nil
}

func (m *MockClient) CompleteSession(ctx context.Context, req CompleteSessionRequest) error {
	if err := m.begin(ctx, OpCompleteSession, req); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = true
	return nil
}

func (m *MockClient) GetSessionDetails(ctx context.Context, req DetailsRequest) (*SessionDetails, error) {
	if err := m.begin(ctx, OpGetSessionDetails, req); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.details == nil {
		return nil, &StatusError{Op: OpGetSessionDetails, StatusCode: http.StatusNotFound, Message: "session not found"}
	}
	d := *m.details
	return &d, nil
}

func (m *MockClient) CreateSession(ctx context.Context, req CreateSessionRequest) (*CreateSessionResponse, error) {
	if err := m.begin(ctx, OpCreateSession, req); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return &CreateSessionResponse{SessionID: m.sessionID}, nil
}
