package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestInterview(userID string) *Interview {
	return &Interview{
		UserID:      userID,
		Topic:       "Go backend development",
		Duration:    10,
		Difficulty:  "medium",
		Seniority:   "senior",
		Concept:     "concurrency",
		SilenceTime: 3.0,
	}
}

func TestCreateAndGetInterview(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	iv := newTestInterview("user-1")
	if err := s.CreateInterview(ctx, iv); err != nil {
		t.Fatalf("CreateInterview: %v", err)
	}
	if iv.ID == "" {
		t.Fatal("CreateInterview must assign an ID")
	}
	if iv.Status != StatusCreated {
		t.Fatalf("status = %s, want CREATED", iv.Status)
	}

	got, err := s.GetInterview(ctx, iv.ID)
	if err != nil {
		t.Fatalf("GetInterview: %v", err)
	}
	if got == nil {
		t.Fatal("GetInterview returned nil for existing interview")
	}
	if got.Topic != iv.Topic || got.Duration != 10 || got.Seniority != "senior" {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
	if got.SilenceTime != 3.0 {
		t.Fatalf("silence time = %v, want 3.0", got.SilenceTime)
	}
	if got.StartTime != nil || got.EndTime != nil {
		t.Fatal("fresh interview must have no start/end time")
	}
}

func TestGetInterviewAbsent(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetInterview(context.Background(), "no-such-id")
	if err != nil {
		t.Fatalf("GetInterview: %v", err)
	}
	if got != nil {
		t.Fatalf("want nil for absent interview, got %+v", got)
	}
}

func TestListInterviewsByUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.CreateInterview(ctx, newTestInterview("user-a")); err != nil {
			t.Fatalf("CreateInterview: %v", err)
		}
	}
	if err := s.CreateInterview(ctx, newTestInterview("user-b")); err != nil {
		t.Fatalf("CreateInterview: %v", err)
	}

	list, err := s.ListInterviews(ctx, "user-a")
	if err != nil {
		t.Fatalf("ListInterviews: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("got %d interviews for user-a, want 3", len(list))
	}
	for _, iv := range list {
		if iv.UserID != "user-a" {
			t.Fatalf("interview %s belongs to %s", iv.ID, iv.UserID)
		}
	}
}

func TestMarkStartedIsAnchored(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	iv := newTestInterview("user-1")
	if err := s.CreateInterview(ctx, iv); err != nil {
		t.Fatalf("CreateInterview: %v", err)
	}

	first := time.Now().Add(-time.Minute).Truncate(time.Second)
	got, err := s.MarkStarted(ctx, iv.ID, first)
	if err != nil {
		t.Fatalf("MarkStarted: %v", err)
	}
	if !got.Equal(first) {
		t.Fatalf("first start = %v, want %v", got, first)
	}

	// A reconnect attempt must not move the anchor.
	again, err := s.MarkStarted(ctx, iv.ID, time.Now())
	if err != nil {
		t.Fatalf("MarkStarted again: %v", err)
	}
	if !again.Equal(first) {
		t.Fatalf("second start = %v, want original %v", again, first)
	}

	stored, err := s.GetInterview(ctx, iv.ID)
	if err != nil {
		t.Fatalf("GetInterview: %v", err)
	}
	if stored.Status != StatusInProgress {
		t.Fatalf("status = %s, want IN_PROGRESS", stored.Status)
	}
}

func TestMarkStartedUnknownInterview(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.MarkStarted(context.Background(), "no-such-id", time.Now()); err == nil {
		t.Fatal("MarkStarted must fail for an unknown interview")
	}
}

func TestMarkConcluded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	iv := newTestInterview("user-1")
	if err := s.CreateInterview(ctx, iv); err != nil {
		t.Fatalf("CreateInterview: %v", err)
	}
	if err := s.MarkConcluded(ctx, iv.ID); err != nil {
		t.Fatalf("MarkConcluded: %v", err)
	}

	got, err := s.GetInterview(ctx, iv.ID)
	if err != nil {
		t.Fatalf("GetInterview: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", got.Status)
	}
	if got.EndTime == nil {
		t.Fatal("concluded interview must have an end time")
	}

	// Idempotent: the original end time survives a second call.
	end := *got.EndTime
	if err := s.MarkConcluded(ctx, iv.ID); err != nil {
		t.Fatalf("MarkConcluded again: %v", err)
	}
	got, _ = s.GetInterview(ctx, iv.ID)
	if !got.EndTime.Equal(end) {
		t.Fatalf("end time moved from %v to %v", end, got.EndTime)
	}
}

func TestQuestionAnswerLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	iv := newTestInterview("user-1")
	if err := s.CreateInterview(ctx, iv); err != nil {
		t.Fatalf("CreateInterview: %v", err)
	}

	if err := s.AppendQuestion(ctx, iv.ID, "Tell me about yourself."); err != nil {
		t.Fatalf("AppendQuestion: %v", err)
	}
	if err := s.RecordAnswer(ctx, iv.ID, "I am a backend engineer."); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	if err := s.AppendQuestion(ctx, iv.ID, "What is a goroutine?"); err != nil {
		t.Fatalf("AppendQuestion: %v", err)
	}
	if err := s.RecordAnswer(ctx, iv.ID, "A lightweight thread."); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	// Trailing speech after the connection drops.
	if err := s.AppendAnswer(ctx, iv.ID, "Managed by the runtime."); err != nil {
		t.Fatalf("AppendAnswer: %v", err)
	}

	qs, err := s.ListQuestions(ctx, iv.ID)
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if len(qs) != 2 {
		t.Fatalf("got %d questions, want 2", len(qs))
	}
	if qs[0].Question != "Tell me about yourself." || qs[0].UserAnswer != "I am a backend engineer." {
		t.Fatalf("first question mismatch: %+v", qs[0])
	}
	if qs[1].UserAnswer != "A lightweight thread. Managed by the runtime." {
		t.Fatalf("appended answer = %q", qs[1].UserAnswer)
	}
}

func TestAppendAnswerOntoEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	iv := newTestInterview("user-1")
	if err := s.CreateInterview(ctx, iv); err != nil {
		t.Fatalf("CreateInterview: %v", err)
	}
	if err := s.AppendQuestion(ctx, iv.ID, "Any questions for me?"); err != nil {
		t.Fatalf("AppendQuestion: %v", err)
	}
	if err := s.AppendAnswer(ctx, iv.ID, "No, thank you."); err != nil {
		t.Fatalf("AppendAnswer: %v", err)
	}

	qs, err := s.ListQuestions(ctx, iv.ID)
	if err != nil {
		t.Fatalf("ListQuestions: %v", err)
	}
	if qs[0].UserAnswer != "No, thank you." {
		t.Fatalf("answer = %q, want no leading separator", qs[0].UserAnswer)
	}
}

func TestSaveFeedbackWriteOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	iv := newTestInterview("user-1")
	if err := s.CreateInterview(ctx, iv); err != nil {
		t.Fatalf("CreateInterview: %v", err)
	}

	fb := &Feedback{
		InterviewID:        iv.ID,
		Rating:             8,
		EnglishScore:       7,
		TechnicalScore:     9,
		CommunicationScore: 8,
		FeedbackText:       "Strong technical depth.",
	}
	if err := s.SaveFeedback(ctx, fb); err != nil {
		t.Fatalf("SaveFeedback: %v", err)
	}

	dup := &Feedback{InterviewID: iv.ID, Rating: 1, FeedbackText: "overwrite attempt"}
	if err := s.SaveFeedback(ctx, dup); !errors.Is(err, ErrFeedbackExists) {
		t.Fatalf("second save err = %v, want ErrFeedbackExists", err)
	}

	got, err := s.GetFeedback(ctx, iv.ID)
	if err != nil {
		t.Fatalf("GetFeedback: %v", err)
	}
	if got == nil || got.Rating != 8 || got.FeedbackText != "Strong technical depth." {
		t.Fatalf("feedback = %+v, want the original record", got)
	}
}

func TestGetFeedbackAbsent(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetFeedback(context.Background(), "no-such-id")
	if err != nil {
		t.Fatalf("GetFeedback: %v", err)
	}
	if got != nil {
		t.Fatalf("want nil for absent feedback, got %+v", got)
	}
}
