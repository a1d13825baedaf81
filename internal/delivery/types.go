package delivery

import (
	"time"

	"github.com/abhisek/mathdrill/internal/answer"
)

// Problem is one question on a page, as served by the delivery API.
type Problem struct {
	// SequenceNumber identifies the problem within its page.
	SequenceNumber int `json:"sequenceNumber"`

	// Question is the prompt shown to the learner.
	Question string `json:"question"`

	// Subcategory tags the problem type and selects the answer shape.
	Subcategory string `json:"subcategory"`

	// Difficulty and DifficultyLevel are server-supplied metadata.
	Difficulty      string `json:"difficulty,omitempty"`
	DifficultyLevel int    `json:"difficultyLevel,omitempty"`

	// Answer is the previously saved wire value, empty if never saved.
	Answer string `json:"answer,omitempty"`
}

// AnswerKind returns the answer shape this problem expects.
func (p Problem) AnswerKind() answer.Kind {
	return answer.KindForSubcategory(p.Subcategory)
}

// SessionInfo describes the session a page belongs to.
type SessionInfo struct {
	SessionID        string    `json:"sessionId"`
	StartedAt        time.Time `json:"startedAt"`
	StudyTimeMinutes int       `json:"studyTimeMinutes"`
	CurrentPage      int       `json:"currentPage"`
	Status           string    `json:"status"`
}

// Duration returns the target session length.
func (s SessionInfo) Duration() time.Duration {
	return time.Duration(s.StudyTimeMinutes) * time.Minute
}

// Session status values reported in SessionInfo.Status.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// PageResponse is the result of fetching a page of problems.
type PageResponse struct {
	Problems        []Problem   `json:"problems"`
	TotalPages      int         `json:"totalPages"`
	IsLastPage      bool        `json:"isLastPage"`
	IsPageSubmitted bool        `json:"isPageSubmitted"`
	SessionInfo     SessionInfo `json:"sessionInfo"`
}

// ProblemsRequest selects a page of a session.
type ProblemsRequest struct {
	SessionID  string `json:"sessionId" validate:"required"`
	PageNumber int    `json:"pageNumber" validate:"required,gte=1"`
}

// SubmitAnswerRequest saves one answer.
type SubmitAnswerRequest struct {
	SessionID      string `json:"sessionId" validate:"required"`
	PageNumber     int    `json:"pageNumber" validate:"required,gte=1"`
	SequenceNumber int    `json:"sequenceNumber" validate:"required,gte=1"`
	Answer         string `json:"answer" validate:"required"`
}

// SubmitPageRequest submits and locks one page.
type SubmitPageRequest struct {
	SessionID  string `json:"sessionId" validate:"required"`
	PageNumber int    `json:"pageNumber" validate:"required,gte=1"`
}

// CompleteSessionRequest finishes a session.
type CompleteSessionRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
}

// DetailsRequest selects a session for the results view.
type DetailsRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
}

// CreateSessionRequest starts a new session.
type CreateSessionRequest struct {
	ConceptIDs       []string `json:"conceptIds" validate:"required,min=1,dive,required"`
	StudyTimeMinutes int      `json:"studyTimeMinutes" validate:"required,gte=1"`
	GradeLevel       int      `json:"gradeLevel" validate:"required,gte=1"`
}

// CreateSessionResponse carries the server-assigned session id.
type CreateSessionResponse struct {
	SessionID string `json:"sessionId"`
}

// Ack is the acknowledgement returned by mutating calls.
type Ack struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ProblemResult is a problem annotated with the learner's outcome.
type ProblemResult struct {
	Problem
	PageNumber    int    `json:"pageNumber"`
	UserAnswer    string `json:"userAnswer"`
	CorrectAnswer string `json:"correctAnswer"`
	IsCorrect     bool   `json:"isCorrect"`
}

// Score summarizes correctness across the session.
type Score struct {
	Correct    int     `json:"correct"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

// Celebration is presentation metadata for the results view.
type Celebration struct {
	Level   string `json:"level"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// SessionDetails is the results payload for a finished session.
type SessionDetails struct {
	SessionID   string          `json:"sessionId"`
	Problems    []ProblemResult `json:"problems"`
	Score       Score           `json:"score"`
	Celebration Celebration     `json:"celebration"`
}
