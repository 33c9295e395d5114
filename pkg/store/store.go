// Package store persists interviews, their question/answer transcript, and
// post-interview feedback.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrFeedbackExists is returned when feedback was already saved for an
// interview. Feedback is write-once.
var ErrFeedbackExists = errors.New("feedback already exists for interview")

// InterviewStatus tracks an interview through its lifecycle.
type InterviewStatus string

const (
	StatusCreated    InterviewStatus = "CREATED"
	StatusInProgress InterviewStatus = "IN_PROGRESS"
	StatusCompleted  InterviewStatus = "COMPLETED"
)

// Interview is one scheduled or completed interview.
type Interview struct {
	ID         string
	UserID     string
	Topic      string
	Duration   int // minutes
	Difficulty string
	Seniority  string
	Concept    string
	// SilenceTime is the end-of-turn silence threshold in seconds.
	SilenceTime float64
	Status      InterviewStatus
	StartTime   *time.Time
	EndTime     *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Question is one agent question and the candidate's answer (if any).
type Question struct {
	ID          string
	InterviewID string
	Question    string
	UserAnswer  string
	CreatedAt   time.Time
}

// Feedback is the post-interview evaluation. One record per interview.
type Feedback struct {
	ID                 string
	InterviewID        string
	Rating             int
	EnglishScore       int
	TechnicalScore     int
	CommunicationScore int
	FeedbackText       string
	CreatedAt          time.Time
}

// Store defines the persistence operations the server depends on.
type Store interface {
	// CreateInterview inserts a new interview, assigning its ID.
	CreateInterview(ctx context.Context, iv *Interview) error

	// GetInterview retrieves an interview by ID. Returns (nil, nil) when
	// no interview exists.
	GetInterview(ctx context.Context, id string) (*Interview, error)

	// ListInterviews retrieves all interviews for a user, newest first.
	ListInterviews(ctx context.Context, userID string) ([]*Interview, error)

	// MarkStarted records the interview's start on first connect and moves
	// it to IN_PROGRESS. Idempotent: the stored start time is returned, so
	// a retried connect keeps the original clock.
	MarkStarted(ctx context.Context, id string, now time.Time) (time.Time, error)

	// MarkConcluded moves the interview to COMPLETED and stamps its end.
	MarkConcluded(ctx context.Context, id string) error

	// AppendQuestion records a new agent question.
	AppendQuestion(ctx context.Context, interviewID, text string) error

	// RecordAnswer sets the candidate's answer on the latest question.
	RecordAnswer(ctx context.Context, interviewID, text string) error

	// AppendAnswer appends trailing speech to the latest question's answer.
	AppendAnswer(ctx context.Context, interviewID, text string) error

	// ListQuestions retrieves the interview's transcript in asked order.
	ListQuestions(ctx context.Context, interviewID string) ([]*Question, error)

	// SaveFeedback inserts the feedback record. Returns ErrFeedbackExists
	// when the interview already has one.
	SaveFeedback(ctx context.Context, fb *Feedback) error

	// GetFeedback retrieves feedback by interview ID. Returns (nil, nil)
	// when none exists.
	GetFeedback(ctx context.Context, interviewID string) (*Feedback, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
