package autosave

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/mathdrill/internal/delivery"
	"github.com/abhisek/mathdrill/internal/metrics"
	"github.com/abhisek/mathdrill/internal/store"
)

// fakeSender records answers and can block or fail on demand.
type fakeSender struct {
	mu      sync.Mutex
	calls   []delivery.SubmitAnswerRequest
	errs    []error
	release chan struct{}
	entered chan struct{}
}

func (f *fakeSender) SubmitAnswer(ctx context.Context, req delivery.SubmitAnswerRequest) error {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	release, entered := f.release, f.entered
	f.mu.Unlock()

	if entered != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeSender) sent() []delivery.SubmitAnswerRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]delivery.SubmitAnswerRequest, len(f.calls))
	copy(out, f.calls)
	return out
}

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond, Multiplier: 2}
}

func waitIdle(t *testing.T, q *Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.Wait(ctx))
}

func TestQueue_SendsInOrder(t *testing.T) {
	f := &fakeSender{}
	q := NewQueue(f, WithRetry(fastRetry(1)))
	defer q.Close()

	q.Enqueue(task(1, 1, "a"))
	q.Enqueue(task(1, 2, "b"))
	q.Enqueue(task(1, 3, "c"))
	waitIdle(t, q)

	sent := f.sent()
	require.Len(t, sent, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{sent[0].Answer, sent[1].Answer, sent[2].Answer})
	assert.Equal(t, "s1", sent[0].SessionID)
}

func TestQueue_DedupByField(t *testing.T) {
	f := &fakeSender{release: make(chan struct{}), entered: make(chan struct{}, 1)}
	m := metrics.New()
	q := NewQueue(f, WithRetry(fastRetry(1)), WithMetrics(m))
	defer q.Close()

	// Occupy the drain so the next tasks stay queued.
	q.Enqueue(task(1, 9, "busy"))
	<-f.entered

	q.Enqueue(task(1, 1, "3"))
	q.Enqueue(task(1, 1, "3/4"))
	assert.Equal(t, 1, q.Len())

	close(f.release)
	waitIdle(t, q)

	sent := f.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "3/4", sent[1].Answer)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AutosaveReplaced))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.AutosaveEnqueued))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AutosaveSent))
}

func TestQueue_SameSequenceDifferentPageNotDeduped(t *testing.T) {
	f := &fakeSender{release: make(chan struct{}), entered: make(chan struct{}, 1)}
	q := NewQueue(f, WithRetry(fastRetry(1)))
	defer q.Close()

	q.Enqueue(task(1, 9, "busy"))
	<-f.entered
	q.Enqueue(task(1, 1, "x"))
	q.Enqueue(task(2, 1, "y"))
	assert.Equal(t, 2, q.Len())

	close(f.release)
	waitIdle(t, q)
	assert.Len(t, f.sent(), 3)
}

func TestQueue_DropsLockedPage(t *testing.T) {
	f := &fakeSender{}
	var locked atomic.Bool
	locked.Store(true)
	m := metrics.New()
	q := NewQueue(f, WithLockCheck(func(page int) bool { return page == 1 && locked.Load() }), WithMetrics(m))
	defer q.Close()

	q.Enqueue(task(1, 1, "late"))
	q.Enqueue(task(2, 1, "fine"))
	waitIdle(t, q)

	sent := f.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, 2, sent[0].PageNumber)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AutosaveDropped))
}

func TestQueue_RetriesTransientFailure(t *testing.T) {
	f := &fakeSender{errs: []error{
		&delivery.StatusError{Op: delivery.OpSubmitAnswer, StatusCode: http.StatusServiceUnavailable},
		&delivery.UnavailableError{Op: delivery.OpSubmitAnswer, Err: errors.New("reset")},
	}}
	q := NewQueue(f, WithRetry(fastRetry(3)))
	defer q.Close()

	q.Enqueue(task(1, 1, "4"))
	waitIdle(t, q)
	assert.Len(t, f.sent(), 3)
}

func TestQueue_SingleAttemptPolicy(t *testing.T) {
	f := &fakeSender{errs: []error{&delivery.StatusError{StatusCode: http.StatusBadGateway}}}
	m := metrics.New()
	q := NewQueue(f, WithRetry(fastRetry(1)), WithMetrics(m))
	defer q.Close()

	q.Enqueue(task(1, 1, "4"))
	q.Enqueue(task(1, 2, "5"))
	waitIdle(t, q)

	// The failed task is discarded and the loop moves on.
	assert.Len(t, f.sent(), 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AutosaveFailed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AutosaveSent))
}

func TestQueue_PermanentErrorNotRetried(t *testing.T) {
	f := &fakeSender{errs: []error{&delivery.StatusError{StatusCode: http.StatusConflict}}}
	q := NewQueue(f, WithRetry(fastRetry(5)))
	defer q.Close()

	q.Enqueue(task(1, 1, "4"))
	waitIdle(t, q)
	assert.Len(t, f.sent(), 1)
}

func TestQueue_LockBetweenRetriesDrops(t *testing.T) {
	var locked atomic.Bool
	f := &fakeSender{errs: []error{&delivery.StatusError{StatusCode: http.StatusInternalServerError}}}
	m := metrics.New()
	q := NewQueue(f,
		WithRetry(RetryConfig{MaxAttempts: 3, InitialWait: 20 * time.Millisecond, MaxWait: 20 * time.Millisecond, Multiplier: 1}),
		WithLockCheck(func(int) bool { return locked.Load() }),
		WithMetrics(m),
	)
	defer q.Close()

	q.Enqueue(task(1, 1, "4"))
	require.Eventually(t, func() bool { return len(f.sent()) == 1 }, time.Second, time.Millisecond)
	locked.Store(true)
	waitIdle(t, q)

	assert.Len(t, f.sent(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AutosaveDropped))
}

func TestQueue_EmptyValueIgnored(t *testing.T) {
	f := &fakeSender{}
	q := NewQueue(f)
	defer q.Close()

	q.Enqueue(task(1, 1, " "))
	assert.Zero(t, q.Len())
	assert.False(t, q.Busy())
	waitIdle(t, q)
	assert.Empty(t, f.sent())
}

func TestQueue_WaitRespectsContext(t *testing.T) {
	f := &fakeSender{release: make(chan struct{})}
	q := NewQueue(f)
	defer q.Close()

	q.Enqueue(task(1, 1, "x"))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Wait(ctx), context.DeadlineExceeded)
	assert.True(t, q.Busy())
}

func TestQueue_CloseCancelsInFlight(t *testing.T) {
	f := &fakeSender{release: make(chan struct{}), entered: make(chan struct{}, 1)}
	q := NewQueue(f, WithRetry(fastRetry(3)))

	q.Enqueue(task(1, 1, "x"))
	<-f.entered
	q.Enqueue(task(1, 2, "y"))
	q.Close()
	waitIdle(t, q)

	assert.Len(t, f.sent(), 1)
	q.Enqueue(task(1, 3, "z"))
	assert.Zero(t, q.Len())
}

func TestQueue_JournalsOutcomes(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer st.Close()

	f := &fakeSender{errs: []error{&delivery.StatusError{StatusCode: http.StatusInternalServerError}}}
	q := NewQueue(f,
		WithRetry(fastRetry(1)),
		WithJournal(st.EventRepo()),
		WithLockCheck(func(page int) bool { return page == 3 }),
	)
	defer q.Close()

	q.Enqueue(task(1, 1, "bad"))
	q.Enqueue(task(1, 2, "good"))
	q.Enqueue(task(3, 1, "stale"))
	waitIdle(t, q)

	stats, err := st.EventRepo().AutosaveStats(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, store.AutosaveStats{Sent: 1, Failed: 1, Dropped: 1}, stats)

	unsaved, err := st.EventRepo().UnsavedFields(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, unsaved, 2)
	assert.Equal(t, "bad", unsaved[0].Value)
	assert.Contains(t, unsaved[0].ErrorMessage, "500")
}
