package devserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/mathdrill/internal/answer"
	"github.com/abhisek/mathdrill/internal/autosave"
	"github.com/abhisek/mathdrill/internal/delivery"
	"github.com/abhisek/mathdrill/internal/metrics"
	"github.com/abhisek/mathdrill/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *delivery.HTTPClient) {
	t.Helper()
	srv := New(opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	c, err := delivery.NewHTTPClient(delivery.Config{BaseURL: ts.URL, Token: "secret", Timeout: 2 * time.Second})
	require.NoError(t, err)
	return srv, c
}

func createSession(t *testing.T, c delivery.Client) string {
	t.Helper()
	resp, err := c.CreateSession(context.Background(), delivery.CreateSessionRequest{
		ConceptIDs:       []string{"fractions"},
		StudyTimeMinutes: 10,
		GradeLevel:       4,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.SessionID)
	return resp.SessionID
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var se *delivery.StatusError
	require.True(t, errors.As(err, &se), "want *StatusError, got %v", err)
	return se.StatusCode
}

func TestCreateAndFetchPage(t *testing.T) {
	started := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	_, c := newTestServer(t, WithPages(2), WithProblemsPerPage(3), WithClock(func() time.Time { return started }))
	id := createSession(t, c)

	page, err := c.GetSessionProblems(context.Background(), delivery.ProblemsRequest{SessionID: id, PageNumber: 1})
	require.NoError(t, err)
	assert.Len(t, page.Problems, 3)
	assert.Equal(t, 2, page.TotalPages)
	assert.False(t, page.IsLastPage)
	assert.False(t, page.IsPageSubmitted)
	assert.Equal(t, id, page.SessionInfo.SessionID)
	assert.Equal(t, 10, page.SessionInfo.StudyTimeMinutes)
	assert.Equal(t, 1, page.SessionInfo.CurrentPage)
	assert.True(t, page.SessionInfo.StartedAt.Equal(started))
	assert.Equal(t, answer.KindFraction, page.Problems[1].AnswerKind())

	last, err := c.GetSessionProblems(context.Background(), delivery.ProblemsRequest{SessionID: id, PageNumber: 2})
	require.NoError(t, err)
	assert.True(t, last.IsLastPage)
}

func TestUnknownSessionAndPage(t *testing.T) {
	_, c := newTestServer(t, WithPages(1))
	ctx := context.Background()

	_, err := c.GetSessionProblems(ctx, delivery.ProblemsRequest{SessionID: "nope", PageNumber: 1})
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))

	id := createSession(t, c)
	_, err = c.GetSessionProblems(ctx, delivery.ProblemsRequest{SessionID: id, PageNumber: 2})
	assert.Equal(t, http.StatusNotFound, statusOf(t, err))
}

func TestSavedAnswersComeBackWithPage(t *testing.T) {
	_, c := newTestServer(t)
	ctx := context.Background()
	id := createSession(t, c)

	require.NoError(t, c.SubmitAnswer(ctx, delivery.SubmitAnswerRequest{SessionID: id, PageNumber: 1, SequenceNumber: 2, Answer: "2/4"}))
	require.NoError(t, c.SubmitAnswer(ctx, delivery.SubmitAnswerRequest{SessionID: id, PageNumber: 1, SequenceNumber: 2, Answer: "1/2"}))

	page, err := c.GetSessionProblems(ctx, delivery.ProblemsRequest{SessionID: id, PageNumber: 1})
	require.NoError(t, err)
	assert.Equal(t, "1/2", page.Problems[1].Answer)
	assert.Empty(t, page.Problems[0].Answer)
}

func TestSubmittedPageRejectsAnswers(t *testing.T) {
	_, c := newTestServer(t)
	ctx := context.Background()
	id := createSession(t, c)

	require.NoError(t, c.SubmitPage(ctx, delivery.SubmitPageRequest{SessionID: id, PageNumber: 1}))

	err := c.SubmitAnswer(ctx, delivery.SubmitAnswerRequest{SessionID: id, PageNumber: 1, SequenceNumber: 1, Answer: "15"})
	assert.Equal(t, http.StatusConflict, statusOf(t, err))
	assert.False(t, delivery.IsRetryable(err))

	err = c.SubmitPage(ctx, delivery.SubmitPageRequest{SessionID: id, PageNumber: 1})
	assert.Equal(t, http.StatusConflict, statusOf(t, err))

	page, err := c.GetSessionProblems(ctx, delivery.ProblemsRequest{SessionID: id, PageNumber: 1})
	require.NoError(t, err)
	assert.True(t, page.IsPageSubmitted)
	assert.Equal(t, 2, page.SessionInfo.CurrentPage)
}

func TestPagesSubmitInOrder(t *testing.T) {
	_, c := newTestServer(t, WithPages(3))
	ctx := context.Background()
	id := createSession(t, c)

	err := c.SubmitPage(ctx, delivery.SubmitPageRequest{SessionID: id, PageNumber: 2})
	assert.Equal(t, http.StatusConflict, statusOf(t, err))
}

func TestCompleteRequiresAllPages(t *testing.T) {
	_, c := newTestServer(t, WithPages(2))
	ctx := context.Background()
	id := createSession(t, c)

	err := c.CompleteSession(ctx, delivery.CompleteSessionRequest{SessionID: id})
	assert.Equal(t, http.StatusConflict, statusOf(t, err))

	require.NoError(t, c.SubmitPage(ctx, delivery.SubmitPageRequest{SessionID: id, PageNumber: 1}))
	require.NoError(t, c.SubmitPage(ctx, delivery.SubmitPageRequest{SessionID: id, PageNumber: 2}))
	require.NoError(t, c.CompleteSession(ctx, delivery.CompleteSessionRequest{SessionID: id}))

	page, err := c.GetSessionProblems(ctx, delivery.ProblemsRequest{SessionID: id, PageNumber: 2})
	require.NoError(t, err)
	assert.Equal(t, delivery.StatusCompleted, page.SessionInfo.Status)
}

func TestDetailsScoreAnswers(t *testing.T) {
	_, c := newTestServer(t, WithPages(1), WithProblemsPerPage(4))
	ctx := context.Background()
	id := createSession(t, c)

	// Bank order: 7+8, 1/4+1/4, 63-27, 6x7.
	for seq, a := range map[int]string{1: "15", 2: "2/4", 3: "35"} {
		require.NoError(t, c.SubmitAnswer(ctx, delivery.SubmitAnswerRequest{SessionID: id, PageNumber: 1, SequenceNumber: seq, Answer: a}))
	}

	d, err := c.GetSessionDetails(ctx, delivery.DetailsRequest{SessionID: id})
	require.NoError(t, err)
	require.Len(t, d.Problems, 4)
	assert.True(t, d.Problems[0].IsCorrect)
	assert.True(t, d.Problems[1].IsCorrect, "equivalent fraction")
	assert.False(t, d.Problems[2].IsCorrect)
	assert.False(t, d.Problems[3].IsCorrect, "unanswered")
	assert.Equal(t, "36", d.Problems[2].CorrectAnswer)
	assert.Equal(t, "35", d.Problems[2].UserAnswer)
	assert.Equal(t, delivery.Score{Correct: 2, Total: 4, Percentage: 50}, d.Score)
	assert.Equal(t, "bronze", d.Celebration.Level)
}

func TestAuthRequiresToken(t *testing.T) {
	srv := New(WithToken("secret"))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	anon, err := delivery.NewHTTPClient(delivery.Config{BaseURL: ts.URL})
	require.NoError(t, err)
	_, err = anon.CreateSession(context.Background(), delivery.CreateSessionRequest{ConceptIDs: []string{"a"}, StudyTimeMinutes: 5, GradeLevel: 3})
	assert.Equal(t, http.StatusUnauthorized, statusOf(t, err))

	authed, err := delivery.NewHTTPClient(delivery.Config{BaseURL: ts.URL, Token: "secret"})
	require.NoError(t, err)
	createSession(t, authed)
}

func TestBadBodyIsRejected(t *testing.T) {
	srv := New()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(`{"conceptIds":[]}`))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error"`)
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	_, c := newTestServer(t, WithMetrics(m))
	createSession(t, c)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues(http.MethodPost, "/api/sessions", "201")))

	srv := New(WithMetrics(m))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mathdrill_devserver_http_requests_total")
}

func TestIsCorrect(t *testing.T) {
	tests := []struct {
		kind  answer.Kind
		given string
		want  string
		ok    bool
	}{
		{answer.KindScalar, "15", "15", true},
		{answer.KindScalar, "015", "15", true},
		{answer.KindScalar, "3.50", "3.5", true},
		{answer.KindScalar, " Seventeen ", "seventeen", true},
		{answer.KindScalar, "14", "15", false},
		{answer.KindScalar, "", "15", false},
		{answer.KindFraction, "2/4", "1/2", true},
		{answer.KindFraction, "-1/-2", "1/2", true},
		{answer.KindFraction, "1/0", "1/2", false},
		{answer.KindFraction, "half", "1/2", false},
	}
	for _, tt := range tests {
		t.Run(tt.given+"="+tt.want, func(t *testing.T) {
			assert.Equal(t, tt.ok, isCorrect(tt.kind, tt.given, tt.want))
		})
	}
}

// TestControllerEndToEnd drives a whole session through the controller and
// the HTTP client against the in-memory server.
func TestControllerEndToEnd(t *testing.T) {
	_, c := newTestServer(t, WithPages(2), WithProblemsPerPage(2))
	id := createSession(t, c)
	ctx := context.Background()

	ctrl := session.New(c, id,
		session.WithAutosaveDelay(10*time.Millisecond),
		session.WithRetry(autosave.RetryConfig{MaxAttempts: 1}),
	)
	t.Cleanup(func() { _ = ctrl.Close(context.Background()) })

	require.NoError(t, ctrl.LoadPage(ctx, 1))
	require.NoError(t, ctrl.SetAnswer(1, answer.Scalar("15")))
	require.NoError(t, ctrl.SetAnswer(2, answer.Fraction("1", "2")))
	require.NoError(t, ctrl.SubmitCurrentPage(ctx))

	require.NoError(t, ctrl.LoadPage(ctx, 2))
	require.NoError(t, ctrl.SetAnswer(1, answer.Scalar("36")))
	require.NoError(t, ctrl.SubmitCurrentPage(ctx))
	assert.Equal(t, session.SessionReadyToComplete, ctrl.State().Session)

	require.NoError(t, ctrl.CompleteSession(ctx))
	assert.Equal(t, session.SessionCompleted, ctrl.State().Session)

	d, err := c.GetSessionDetails(ctx, delivery.DetailsRequest{SessionID: id})
	require.NoError(t, err)
	assert.Equal(t, 3, d.Score.Correct)
	assert.Equal(t, 4, d.Score.Total)

	// Saves pending at submit time reached the server before the lock.
	require.Len(t, d.Problems, 4)
	assert.Equal(t, "1/2", d.Problems[1].UserAnswer)
}
