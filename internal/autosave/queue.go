package autosave

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/abhisek/mathdrill/internal/delivery"
	"github.com/abhisek/mathdrill/internal/metrics"
	"github.com/abhisek/mathdrill/internal/store"
)

// Sender delivers one answer. delivery.Client satisfies it.
type Sender interface {
	SubmitAnswer(ctx context.Context, req delivery.SubmitAnswerRequest) error
}

// errPageLocked aborts a send whose page was submitted in the meantime.
var errPageLocked = errors.New("page already submitted")

// Queue is a FIFO of save tasks holding at most one task per field. A single
// drain goroutine sends tasks in order; a newer task for a field replaces the
// queued one in place of appending a second.
type Queue struct {
	mu       sync.Mutex
	tasks    []Task
	draining bool
	idle     chan struct{}
	closed   bool

	sender   Sender
	isLocked func(page int) bool
	retry    RetryConfig
	logger   *zap.Logger
	metrics  *metrics.Metrics
	journal  store.EventRepo

	ctx    context.Context
	cancel context.CancelFunc
}

// QueueOption customizes a Queue.
type QueueOption func(*Queue)

// WithLockCheck drops tasks whose page is reported locked, both before the
// first send and between retries.
func WithLockCheck(fn func(page int) bool) QueueOption {
	return func(q *Queue) { q.isLocked = fn }
}

// WithRetry sets the per-task retry policy.
func WithRetry(cfg RetryConfig) QueueOption {
	return func(q *Queue) { q.retry = cfg }
}

// WithLogger sets the logger used for send failures.
func WithLogger(l *zap.Logger) QueueOption {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithMetrics records queue counters.
func WithMetrics(m *metrics.Metrics) QueueOption {
	return func(q *Queue) { q.metrics = m }
}

// WithJournal appends the outcome of every task to repo.
func WithJournal(repo store.EventRepo) QueueOption {
	return func(q *Queue) { q.journal = repo }
}

// NewQueue creates a Queue that delivers through sender.
func NewQueue(sender Sender, opts ...QueueOption) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	closedIdle := make(chan struct{})
	close(closedIdle)

	q := &Queue{
		idle:     closedIdle,
		sender:   sender,
		isLocked: func(int) bool { return false },
		retry:    DefaultRetryConfig(),
		logger:   zap.NewNop(),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.retry.MaxAttempts < 1 {
		q.retry.MaxAttempts = 1
	}
	return q
}

// Enqueue adds t, replacing any queued task for the same field, and starts a
// drain if none is running. Empty values are ignored.
func (q *Queue) Enqueue(t Task) {
	if t.empty() {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}

	for i, queued := range q.tasks {
		if queued.Key == t.Key {
			q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)
			q.metrics.IncReplaced()
			break
		}
	}
	q.tasks = append(q.tasks, t)
	q.metrics.IncEnqueued()

	if !q.draining {
		q.draining = true
		q.idle = make(chan struct{})
		go q.drain()
	}
}

// drain sends tasks until the queue is empty. Only one drain runs at a time.
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 || q.closed {
			q.draining = false
			close(q.idle)
			q.mu.Unlock()
			return
		}
		t := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		q.send(t)
	}
}

// send delivers t, retrying transient failures, and records the outcome.
// Failures are never returned: the learner's flow must not block on a save.
func (q *Queue) send(t Task) {
	if q.isLocked(t.Key.Page) {
		q.finish(t, store.OutcomeDropped, 0, nil)
		return
	}

	req := delivery.SubmitAnswerRequest{
		SessionID:      t.SessionID,
		PageNumber:     t.Key.Page,
		SequenceNumber: t.Key.Sequence,
		Answer:         t.Value,
	}

	attempts := 0
	operation := func() error {
		if attempts > 0 && q.isLocked(t.Key.Page) {
			return backoff.Permanent(errPageLocked)
		}
		attempts++

		err := q.sender.SubmitAnswer(q.ctx, req)
		if err == nil {
			return nil
		}
		if !delivery.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		q.logger.Warn("autosave attempt failed",
			zap.String("session_id", t.SessionID),
			zap.Int("page", t.Key.Page),
			zap.Int("sequence", t.Key.Sequence),
			zap.Int("attempt", attempts),
			zap.Error(err),
		)
		return err
	}

	err := backoff.Retry(operation, q.backoff())
	switch {
	case err == nil:
		q.finish(t, store.OutcomeSent, attempts, nil)
	case errors.Is(err, errPageLocked):
		q.finish(t, store.OutcomeDropped, attempts, nil)
	default:
		q.finish(t, store.OutcomeFailed, attempts, err)
	}
}

func (q *Queue) backoff() backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	if q.retry.InitialWait > 0 {
		exp.InitialInterval = q.retry.InitialWait
	}
	if q.retry.MaxWait > 0 {
		exp.MaxInterval = q.retry.MaxWait
	}
	if q.retry.Multiplier > 1 {
		exp.Multiplier = q.retry.Multiplier
	}
	exp.RandomizationFactor = 0.2
	exp.MaxElapsedTime = 0
	exp.Reset()

	return backoff.WithContext(
		backoff.WithMaxRetries(exp, uint64(q.retry.MaxAttempts-1)),
		q.ctx,
	)
}

// finish records the terminal state of a task.
func (q *Queue) finish(t Task, outcome store.AutosaveOutcome, attempts int, err error) {
	switch outcome {
	case store.OutcomeSent:
		q.metrics.IncSent()
	case store.OutcomeDropped:
		q.metrics.IncDropped()
		q.logger.Debug("autosave dropped for submitted page",
			zap.String("session_id", t.SessionID),
			zap.Int("page", t.Key.Page),
			zap.Int("sequence", t.Key.Sequence),
		)
	case store.OutcomeFailed:
		q.metrics.IncFailed()
		q.logger.Warn("autosave discarded",
			zap.String("session_id", t.SessionID),
			zap.Int("page", t.Key.Page),
			zap.Int("sequence", t.Key.Sequence),
			zap.Int("attempt", attempts),
			zap.Error(err),
		)
	}

	if q.journal == nil {
		return
	}
	data := store.AutosaveEventData{
		SessionID:      t.SessionID,
		PageNumber:     t.Key.Page,
		SequenceNumber: t.Key.Sequence,
		Value:          t.Value,
		Outcome:        outcome,
		Attempts:       attempts,
	}
	if err != nil {
		data.ErrorMessage = err.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if jerr := q.journal.AppendAutosave(ctx, data); jerr != nil {
		q.logger.Warn("failed to journal autosave outcome", zap.Error(jerr))
	}
}

// Len returns the number of queued tasks, excluding one in flight.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Busy reports whether a drain is running.
func (q *Queue) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.draining
}

// Wait blocks until the queue is empty and no send is in flight, or ctx ends.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close discards queued tasks and cancels the in-flight send.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.tasks = nil
	q.mu.Unlock()
	q.cancel()
}
