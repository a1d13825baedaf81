// Package devserver is an in-memory implementation of the delivery API for
// local practice runs and client tests. It serves a fixed problem bank and
// keeps every session in memory.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/abhisek/mathdrill/internal/answer"
	"github.com/abhisek/mathdrill/internal/delivery"
	"github.com/abhisek/mathdrill/internal/metrics"
)

// Defaults used when the corresponding option is zero.
const (
	DefaultPages           = 3
	DefaultProblemsPerPage = 4
)

type page struct {
	problems  []delivery.Problem
	submitted bool
}

type practiceSession struct {
	id           string
	conceptIDs   []string
	gradeLevel   int
	studyMinutes int
	startedAt    time.Time
	pages        []*page
	completed    bool
}

// currentPage is the first unsubmitted page, or the last page once all are
// submitted.
func (s *practiceSession) currentPage() int {
	for i, p := range s.pages {
		if !p.submitted {
			return i + 1
		}
	}
	return len(s.pages)
}

func (s *practiceSession) allSubmitted() bool {
	for _, p := range s.pages {
		if !p.submitted {
			return false
		}
	}
	return true
}

func (s *practiceSession) info() delivery.SessionInfo {
	status := delivery.StatusInProgress
	if s.completed {
		status = delivery.StatusCompleted
	}
	return delivery.SessionInfo{
		SessionID:        s.id,
		StartedAt:        s.startedAt,
		StudyTimeMinutes: s.studyMinutes,
		CurrentPage:      s.currentPage(),
		Status:           status,
	}
}

// Server holds the in-memory sessions and the gin engine serving them.
type Server struct {
	mu       sync.Mutex
	sessions map[string]*practiceSession

	pages   int
	perPage int
	token   string
	logger  *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	now     func() time.Time

	engine *gin.Engine
}

// Option customizes a Server.
type Option func(*Server)

// WithPages sets the number of pages in each new session.
func WithPages(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.pages = n
		}
	}
}

// WithProblemsPerPage sets the number of problems on each page.
func WithProblemsPerPage(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.perPage = n
		}
	}
}

// WithToken requires "Authorization: Bearer <token>" on every request.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithLogger logs one line per request.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records request counters and serves them on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithClock overrides the session start clock.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New builds a Server and its routes.
func New(opts ...Option) *Server {
	s := &Server{
		sessions: make(map[string]*practiceSession),
		pages:    DefaultPages,
		perPage:  DefaultProblemsPerPage,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer("github.com/abhisek/mathdrill/internal/devserver"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler serving the delivery API.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.tracing(), s.requestLogger(), s.observe())

	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.Use(s.auth())
	{
		api.POST("/sessions", s.createSession)
		api.GET("/sessions/:id", s.sessionDetails)
		api.GET("/sessions/:id/pages/:page", s.sessionPage)
		api.POST("/sessions/:id/answers", s.submitAnswer)
		api.POST("/sessions/:id/pages/:page/submit", s.submitPage)
		api.POST("/sessions/:id/complete", s.completeSession)
	}
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("devserver listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("devserver listen: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("devserver shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("devserver shutdown: %w", err)
	}
	return nil
}

// Middleware

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

func (s *Server) auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.token == "" {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		if header == "" {
			abort(c, http.StatusUnauthorized, "authorization header required")
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header || token != s.token {
			abort(c, http.StatusUnauthorized, "invalid token")
			return
		}
		c.Next()
	}
}

func (s *Server) tracing() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := s.tracer.Start(ctx, c.Request.Method+" "+c.FullPath(),
			trace.WithAttributes(attribute.String("request_id", c.GetHeader("X-Request-ID"))))
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
		span.SetAttributes(attribute.Int("status_code", c.Writer.Status()))
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetHeader("X-Request-ID")),
		)
	}
}

func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		s.metrics.ObserveHTTP(c.Request.Method, endpoint, c.Writer.Status(), time.Since(start))
	}
}

// Request bodies

type createSessionBody struct {
	ConceptIDs       []string `json:"conceptIds" binding:"required,min=1,dive,required"`
	StudyTimeMinutes int      `json:"studyTimeMinutes" binding:"required,gte=1"`
	GradeLevel       int      `json:"gradeLevel" binding:"required,gte=1"`
}

type submitAnswerBody struct {
	SessionID      string `json:"sessionId" binding:"required"`
	PageNumber     int    `json:"pageNumber" binding:"required,gte=1"`
	SequenceNumber int    `json:"sequenceNumber" binding:"required,gte=1"`
	Answer         string `json:"answer" binding:"required"`
}

type submitPageBody struct {
	SessionID  string `json:"sessionId" binding:"required"`
	PageNumber int    `json:"pageNumber" binding:"required,gte=1"`
}

type completeSessionBody struct {
	SessionID string `json:"sessionId" binding:"required"`
}

// Handlers

func (s *Server) createSession(c *gin.Context) {
	var body createSessionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}

	sess := &practiceSession{
		id:           uuid.NewString(),
		conceptIDs:   body.ConceptIDs,
		gradeLevel:   body.GradeLevel,
		studyMinutes: body.StudyTimeMinutes,
		startedAt:    s.now().UTC(),
		pages:        make([]*page, s.pages),
	}
	for i := range sess.pages {
		sess.pages[i] = &page{problems: buildPage(i+1, s.perPage)}
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.logger.Info("session created",
		zap.String("session_id", sess.id),
		zap.Strings("concepts", sess.conceptIDs),
		zap.Int("grade", sess.gradeLevel),
	)
	c.JSON(http.StatusCreated, delivery.CreateSessionResponse{SessionID: sess.id})
}

// lookup returns the session named in the path. The caller holds s.mu.
func (s *Server) lookup(c *gin.Context) (*practiceSession, bool) {
	sess, ok := s.sessions[c.Param("id")]
	if !ok {
		abort(c, http.StatusNotFound, "session not found")
		return nil, false
	}
	return sess, true
}

// pageParam parses the :page path segment against the session's range.
func pageParam(c *gin.Context, sess *practiceSession) (int, bool) {
	n, err := strconv.Atoi(c.Param("page"))
	if err != nil || n < 1 {
		abort(c, http.StatusBadRequest, "invalid page number")
		return 0, false
	}
	if n > len(sess.pages) {
		abort(c, http.StatusNotFound, fmt.Sprintf("page %d not found", n))
		return 0, false
	}
	return n, true
}

func (s *Server) sessionPage(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	n, ok := pageParam(c, sess)
	if !ok {
		return
	}

	p := sess.pages[n-1]
	problems := make([]delivery.Problem, len(p.problems))
	copy(problems, p.problems)

	c.JSON(http.StatusOK, delivery.PageResponse{
		Problems:        problems,
		TotalPages:      len(sess.pages),
		IsLastPage:      n == len(sess.pages),
		IsPageSubmitted: p.submitted,
		SessionInfo:     sess.info(),
	})
}

func (s *Server) submitAnswer(c *gin.Context) {
	var body submitAnswerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	if body.SessionID != sess.id {
		abort(c, http.StatusBadRequest, "sessionId does not match path")
		return
	}
	if body.PageNumber > len(sess.pages) {
		abort(c, http.StatusNotFound, fmt.Sprintf("page %d not found", body.PageNumber))
		return
	}
	p := sess.pages[body.PageNumber-1]
	if body.SequenceNumber > len(p.problems) {
		abort(c, http.StatusNotFound, fmt.Sprintf("problem %d not found", body.SequenceNumber))
		return
	}
	if sess.completed {
		abort(c, http.StatusConflict, "session already completed")
		return
	}
	if p.submitted {
		abort(c, http.StatusConflict, "page already submitted")
		return
	}

	p.problems[body.SequenceNumber-1].Answer = body.Answer
	c.JSON(http.StatusOK, delivery.Ack{Success: true})
}

func (s *Server) submitPage(c *gin.Context) {
	var body submitPageBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	n, ok := pageParam(c, sess)
	if !ok {
		return
	}
	if body.SessionID != sess.id || body.PageNumber != n {
		abort(c, http.StatusBadRequest, "body does not match path")
		return
	}
	if sess.pages[n-1].submitted {
		abort(c, http.StatusConflict, "page already submitted")
		return
	}
	if n != sess.currentPage() {
		abort(c, http.StatusConflict, fmt.Sprintf("page %d must be submitted first", sess.currentPage()))
		return
	}

	sess.pages[n-1].submitted = true
	s.logger.Info("page submitted", zap.String("session_id", sess.id), zap.Int("page", n))
	c.JSON(http.StatusOK, delivery.Ack{Success: true})
}

func (s *Server) completeSession(c *gin.Context) {
	var body completeSessionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.lookup(c)
	if !ok {
		return
	}
	if body.SessionID != sess.id {
		abort(c, http.StatusBadRequest, "sessionId does not match path")
		return
	}
	if !sess.allSubmitted() {
		abort(c, http.StatusConflict, "all pages must be submitted before completing")
		return
	}

	sess.completed = true
	s.logger.Info("session completed", zap.String("session_id", sess.id))
	c.JSON(http.StatusOK, delivery.Ack{Success: true, Message: "session completed"})
}

func (s *Server) sessionDetails(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.lookup(c)
	if !ok {
		return
	}

	results := make([]delivery.ProblemResult, 0, len(sess.pages)*s.perPage)
	for i, p := range sess.pages {
		for _, prob := range p.problems {
			want := bankAt(i+1, prob.SequenceNumber, s.perPage).Answer
			results = append(results, delivery.ProblemResult{
				Problem:       prob,
				PageNumber:    i + 1,
				UserAnswer:    prob.Answer,
				CorrectAnswer: want,
				IsCorrect:     isCorrect(answer.KindForSubcategory(prob.Subcategory), prob.Answer, want),
			})
		}
	}
	score := scoreOf(results)
	c.JSON(http.StatusOK, delivery.SessionDetails{
		SessionID:   sess.id,
		Problems:    results,
		Score:       score,
		Celebration: celebrationFor(score),
	})
}
