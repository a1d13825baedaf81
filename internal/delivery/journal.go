package delivery

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/mathdrill/internal/store"
)

// JournalingClient is a decorator that records every delivery call as an
// event in the local journal.
type JournalingClient struct {
	inner     Client
	eventRepo store.EventRepo
	logger    *zap.Logger
}

var _ Client = (*JournalingClient)(nil)

// WithJournal wraps a Client with event journaling. A nil logger discards
// journal write failures.
func WithJournal(c Client, repo store.EventRepo, logger *zap.Logger) Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JournalingClient{inner: c, eventRepo: repo, logger: logger}
}

func (j *JournalingClient) GetSessionProblems(ctx context.Context, req ProblemsRequest) (*PageResponse, error) {
	start := time.Now()
	resp, err := j.inner.GetSessionProblems(ctx, req)
	j.record(ctx, start, err, store.RequestEventData{
		Op:         OpGetSessionProblems,
		SessionID:  req.SessionID,
		PageNumber: req.PageNumber,
	})
	return resp, err
}

func (j *JournalingClient) SubmitAnswer(ctx context.Context, req SubmitAnswerRequest) error {
	start := time.Now()
	err := j.inner.SubmitAnswer(ctx, req)
	j.record(ctx, start, err, store.RequestEventData{
		Op:             OpSubmitAnswer,
		SessionID:      req.SessionID,
		PageNumber:     req.PageNumber,
		SequenceNumber: req.SequenceNumber,
	})
	return err
}

func (j *JournalingClient) SubmitPage(ctx context.Context, req SubmitPageRequest) error {
	start := time.Now()
	err := j.inner.SubmitPage(ctx, req)
	j.record(ctx, start, err, store.RequestEventData{
		Op:         OpSubmitPage,
		SessionID:  req.SessionID,
		PageNumber: req.PageNumber,
	})
	return err
}

func (j *JournalingClient) CompleteSession(ctx context.Context, req CompleteSessionRequest) error {
	start := time.Now()
	err := j.inner.CompleteSession(ctx, req)
	j.record(ctx, start, err, store.RequestEventData{
		Op:        OpCompleteSession,
		SessionID: req.SessionID,
	})
	return err
}

func (j *JournalingClient) GetSessionDetails(ctx context.Context, req DetailsRequest) (*SessionDetails, error) {
	start := time.Now()
	resp, err := j.inner.GetSessionDetails(ctx, req)
	j.record(ctx, start, err, store.RequestEventData{
		Op:        OpGetSessionDetails,
		SessionID: req.SessionID,
	})
	return resp, err
}

func (j *JournalingClient) CreateSession(ctx context.Context, req CreateSessionRequest) (*CreateSessionResponse, error) {
	start := time.Now()
	resp, err := j.inner.CreateSession(ctx, req)
	data := store.RequestEventData{Op: OpCreateSession}
	if resp != nil {
		data.SessionID = resp.SessionID
	}
	j.record(ctx, start, err, data)
	return resp, err
}

// record appends the event but never fails the call if journaling fails.
func (j *JournalingClient) record(ctx context.Context, start time.Time, err error, data store.RequestEventData) {
	data.LatencyMs = time.Since(start).Milliseconds()
	data.Success = err == nil
	if err != nil {
		data.ErrorMessage = err.Error()
	}

	// The caller's context may already be cancelled; the journal write is
	// local and short, so detach from it.
	if logErr := j.eventRepo.AppendRequest(context.WithoutCancel(ctx), data); logErr != nil {
		j.logger.Warn("failed to journal delivery call",
			zap.String("op", data.Op),
			zap.Error(logErr),
		)
	}
}
