package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/abhisek/mathdrill/internal/answer"
	"github.com/abhisek/mathdrill/internal/delivery"
)

func TestViewState_Remaining(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	s := ViewState{StartedAt: start, Duration: 20 * time.Minute}

	assert.Equal(t, 15*time.Minute, s.Remaining(start.Add(5*time.Minute)))
	assert.False(t, s.Expired(start.Add(19*time.Minute)))
	assert.True(t, s.Expired(start.Add(20*time.Minute)))
	assert.Zero(t, s.Remaining(start.Add(time.Hour)))

	var unknown ViewState
	assert.Zero(t, unknown.Remaining(start))
	assert.False(t, unknown.Expired(start))
}

func TestViewState_CloneIsDeep(t *testing.T) {
	s := ViewState{
		Problems: []delivery.Problem{{SequenceNumber: 1}},
		Answers:  map[int]answer.Answer{1: answer.Scalar("1")},
		Statuses: map[int]PageStatus{1: {Visited: true}},
	}
	c := s.Clone()
	c.Problems[0].Question = "changed"
	c.Answers[1] = answer.Scalar("2")
	c.Statuses[1] = PageStatus{Submitted: true}

	assert.Empty(t, s.Problems[0].Question)
	assert.Equal(t, answer.Scalar("1"), s.Answers[1])
	assert.False(t, s.Statuses[1].Submitted)
}

func TestViewState_Counts(t *testing.T) {
	s := ViewState{
		Problems: []delivery.Problem{
			{SequenceNumber: 1, Subcategory: "addition"},
			{SequenceNumber: 2, Subcategory: "fraction_sum"},
		},
		Answers: map[int]answer.Answer{1: answer.Scalar("5")},
	}
	assert.Equal(t, 1, s.CompletedCount())
	assert.False(t, s.AllAnswered())

	s.Answers[2] = answer.Fraction("1", "2")
	assert.True(t, s.AllAnswered())
	assert.False(t, ViewState{}.AllAnswered())
}

func TestPhaseStrings(t *testing.T) {
	assert.Equal(t, "submitting", PhaseSubmitting.String())
	assert.Equal(t, "unloaded", PhaseUnloaded.String())
	assert.Equal(t, "ready_to_complete", SessionReadyToComplete.String())
	assert.Equal(t, "completed", SessionCompleted.String())
}
