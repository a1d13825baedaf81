package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/abhisek/mathdrill/internal/metrics"
)

// Operation names, used in errors, spans, metrics and the journal.
const (
	OpGetSessionProblems = "getSessionProblems"
	OpSubmitAnswer       = "submitAnswer"
	OpSubmitPage         = "submitPage"
	OpCompleteSession    = "completeSession"
	OpGetSessionDetails  = "getSessionDetails"
	OpCreateSession      = "createSession"
)

// Client is the network boundary of a practice session.
//
// Every implementation validates the required fields of a request before doing
// anything else and fails with a *ValidationError when one is missing.
type Client interface {
	GetSessionProblems(ctx context.Context, req ProblemsRequest) (*PageResponse, error)
	SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) error
	SubmitPage(ctx context.Context, req SubmitPageRequest) error
	CompleteSession(ctx context.Context, req CompleteSessionRequest) error
	GetSessionDetails(ctx context.Context, req DetailsRequest) (*SessionDetails, error)
	CreateSession(ctx context.Context, req CreateSessionRequest) (*CreateSessionResponse, error)
}

// Config configures the HTTP client.
type Config struct {
	// BaseURL is the delivery API root, e.g. "https://api.example.com".
	BaseURL string

	// Token is sent as a bearer token when non-empty.
	Token string

	// Timeout bounds a single HTTP exchange. Zero means no timeout.
	Timeout time.Duration

	// RequestsPerSecond caps outgoing traffic; <= 0 disables the limit.
	RequestsPerSecond float64
	Burst             int
}

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 4 << 20

// HTTPClient implements Client over JSON/HTTP.
type HTTPClient struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	tracer     trace.Tracer
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

var _ Client = (*HTTPClient)(nil)

// Option customizes an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.httpClient = hc }
}

// WithMetrics records per-call counters and latencies.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *HTTPClient) { c.metrics = m }
}

// WithLogger sets the logger used for request-level debug output.
func WithLogger(l *zap.Logger) Option {
	return func(c *HTTPClient) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(c *HTTPClient) { c.tracer = t }
}

// NewHTTPClient builds a client for cfg.
func NewHTTPClient(cfg Config, opts ...Option) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("delivery base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse delivery base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("delivery base URL must be http or https, got %q", cfg.BaseURL)
	}

	limit := rate.Inf
	burst := cfg.Burst
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}

	c := &HTTPClient{
		baseURL:    base,
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, burst),
		tracer:     otel.Tracer("github.com/abhisek/mathdrill/internal/delivery"),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *HTTPClient) GetSessionProblems(ctx context.Context, req ProblemsRequest) (*PageResponse, error) {
	if err := Validate(OpGetSessionProblems, req); err != nil {
		return nil, err
	}

	var out PageResponse
	path := fmt.Sprintf("/api/sessions/%s/pages/%d", url.PathEscape(req.SessionID), req.PageNumber)
	err := c.do(ctx, call{
		op:     OpGetSessionProblems,
		method: http.MethodGet,
		path:   path,
		schema: PageSchema,
		out:    &out,
		attrs: []attribute.KeyValue{
			attribute.String("session_id", req.SessionID),
			attribute.Int("page", req.PageNumber),
		},
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) error {
	if err := Validate(OpSubmitAnswer, req); err != nil {
		return err
	}

	var ack Ack
	return c.do(ctx, call{
		op:     OpSubmitAnswer,
		method: http.MethodPost,
		path:   fmt.Sprintf("/api/sessions/%s/answers", url.PathEscape(req.SessionID)),
		body:   req,
		out:    &ack,
		attrs: []attribute.KeyValue{
			attribute.String("session_id", req.SessionID),
			attribute.Int("page", req.PageNumber),
			attribute.Int("sequence", req.SequenceNumber),
		},
	})
}

func (c *HTTPClient) SubmitPage(ctx context.Context, req SubmitPageRequest) error {
	if err := Validate(OpSubmitPage, req); err != nil {
		return err
	}

	var ack Ack
	return c.do(ctx, call{
		op:     OpSubmitPage,
		method: http.MethodPost,
		path:   fmt.Sprintf("/api/sessions/%s/pages/%d/submit", url.PathEscape(req.SessionID), req.PageNumber),
		body:   req,
		out:    &ack,
		attrs: []attribute.KeyValue{
			attribute.String("session_id", req.SessionID),
			attribute.Int("page", req.PageNumber),
		},
	})
}

func (c *HTTPClient) CompleteSession(ctx context.Context, req CompleteSessionRequest) error {
	if err := Validate(OpCompleteSession, req); err != nil {
		return err
	}

	var ack Ack
	return c.do(ctx, call{
		op:     OpCompleteSession,
		method: http.MethodPost,
		path:   fmt.Sprintf("/api/sessions/%s/complete", url.PathEscape(req.SessionID)),
		body:   req,
		out:    &ack,
		attrs:  []attribute.KeyValue{attribute.String("session_id", req.SessionID)},
	})
}

func (c *HTTPClient) GetSessionDetails(ctx context.Context, req DetailsRequest) (*SessionDetails, error) {
	if err := Validate(OpGetSessionDetails, req); err != nil {
		return nil, err
	}

	var out SessionDetails
	err := c.do(ctx, call{
		op:     OpGetSessionDetails,
		method: http.MethodGet,
		path:   "/api/sessions/" + url.PathEscape(req.SessionID),
		schema: DetailsSchema,
		out:    &out,
		attrs:  []attribute.KeyValue{attribute.String("session_id", req.SessionID)},
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) CreateSession(ctx context.Context, req CreateSessionRequest) (*CreateSessionResponse, error) {
	if err := Validate(OpCreateSession, req); err != nil {
		return nil, err
	}

	var out CreateSessionResponse
	err := c.do(ctx, call{
		op:     OpCreateSession,
		method: http.MethodPost,
		path:   "/api/sessions",
		body:   req,
		out:    &out,
		attrs: []attribute.KeyValue{
			attribute.Int("concepts", len(req.ConceptIDs)),
			attribute.Int("study_time_minutes", req.StudyTimeMinutes),
		},
	})
	if err != nil {
		return nil, err
	}
	if out.SessionID == "" {
		return nil, &InvalidResponseError{Op: OpCreateSession, Err: fmt.Errorf("missing sessionId")}
	}
	return &out, nil
}

// call describes one HTTP exchange.
type call struct {
	op     string
	method string
	path   string
	body   any
	schema *Schema
	out    any
	attrs  []attribute.KeyValue
}

// errorBody is the error envelope returned with non-2xx statuses.
type errorBody struct {
	Error string `json:"error"`
}

func (c *HTTPClient) do(ctx context.Context, cl call) (err error) {
	ctx, span := c.tracer.Start(ctx, "delivery."+cl.op, trace.WithAttributes(cl.attrs...))
	defer span.End()

	start := time.Now()
	defer func() {
		c.metrics.ObserveRequest(cl.op, time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return &UnavailableError{Op: cl.op, Err: fmt.Errorf("rate limiter wait: %w", err)}
	}

	var reqBody io.Reader
	if cl.body != nil {
		data, err := json.Marshal(cl.body)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", cl.op, err)
		}
		reqBody = bytes.NewReader(data)
	}

	target := c.baseURL.String() + cl.path
	req, err := http.NewRequestWithContext(ctx, cl.method, target, reqBody)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", cl.op, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &UnavailableError{Op: cl.op, Err: err}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("status_code", resp.StatusCode))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &UnavailableError{Op: cl.op, Err: fmt.Errorf("read body: %w", err)}
	}

	c.logger.Debug("delivery call",
		zap.String("op", cl.op),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var eb errorBody
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &eb) == nil && eb.Error != "" {
			msg = eb.Error
		}
		return &StatusError{Op: cl.op, StatusCode: resp.StatusCode, Message: msg}
	}

	if cl.out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	if err := validatePayload(cl.op, cl.schema, raw); err != nil {
		return err
	}
	if err := json.Unmarshal(raw, cl.out); err != nil {
		return &InvalidResponseError{Op: cl.op, Err: fmt.Errorf("decode: %w", err)}
	}
	return nil
}
