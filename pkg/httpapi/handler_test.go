package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/intervox/intervox/pkg/orchestrator"
	"github.com/intervox/intervox/pkg/session"
	"github.com/intervox/intervox/pkg/store"
	"github.com/intervox/intervox/pkg/timing"
)

func newTestHandler(t *testing.T) (*Handler, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	h := New(Options{
		Store:           st,
		Registry:        session.NewRegistry(),
		Policy:          timing.Default(),
		BaseConfig:      orchestrator.Config{},
		DefaultSilence:  3 * time.Second,
		DurationAllowed: func(m int) bool { return m == 5 || m == 10 || m == 15 },
	})
	return h, st
}

func doJSON(t *testing.T, h *Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func TestCreateInterview(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/api/interview", map[string]any{
		"user_id":    "user-1",
		"topic":      "Go concurrency",
		"duration":   10,
		"difficulty": "hard",
		"seniority":  "senior",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp interviewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID == "" || resp.Status != "CREATED" {
		t.Fatalf("response = %+v", resp)
	}
	if resp.SilenceTime != 3.0 {
		t.Fatalf("silence time = %v, want the default", resp.SilenceTime)
	}
}

func TestCreateInterviewRejectsBadDuration(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/api/interview", map[string]any{
		"user_id":  "user-1",
		"topic":    "Go",
		"duration": 7,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateInterviewRequiresFields(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/api/interview", map[string]any{
		"duration": 10,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestListInterviews(t *testing.T) {
	h, st := newTestHandler(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		iv := &store.Interview{UserID: "user-1", Topic: "t", Duration: 5, Difficulty: "easy", Seniority: "junior", SilenceTime: 3}
		if err := st.CreateInterview(ctx, iv); err != nil {
			t.Fatalf("CreateInterview: %v", err)
		}
	}

	rec := doJSON(t, h, http.MethodGet, "/api/interview?user_id=user-1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var list []interviewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d interviews, want 2", len(list))
	}

	rec = doJSON(t, h, http.MethodGet, "/api/interview", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing user_id: status = %d, want 400", rec.Code)
	}
}

func TestGetInterviewDetail(t *testing.T) {
	h, st := newTestHandler(t)
	ctx := context.Background()

	iv := &store.Interview{UserID: "user-1", Topic: "APIs", Duration: 10, Difficulty: "medium", Seniority: "mid", SilenceTime: 3}
	if err := st.CreateInterview(ctx, iv); err != nil {
		t.Fatalf("CreateInterview: %v", err)
	}
	if err := st.AppendQuestion(ctx, iv.ID, "What is REST?"); err != nil {
		t.Fatalf("AppendQuestion: %v", err)
	}
	if err := st.RecordAnswer(ctx, iv.ID, "An architectural style."); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}
	if err := st.SaveFeedback(ctx, &store.Feedback{InterviewID: iv.ID, Rating: 7, FeedbackText: "good"}); err != nil {
		t.Fatalf("SaveFeedback: %v", err)
	}

	rec := doJSON(t, h, http.MethodGet, "/api/interview/"+iv.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var detail interviewDetailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(detail.Questions) != 1 || detail.Questions[0].UserAnswer != "An architectural style." {
		t.Fatalf("questions = %+v", detail.Questions)
	}
	if detail.Feedback == nil || detail.Feedback.Rating != 7 {
		t.Fatalf("feedback = %+v", detail.Feedback)
	}
}

func TestGetInterviewNotFound(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doJSON(t, h, http.MethodGet, "/api/interview/no-such-id", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestFinishInterview(t *testing.T) {
	h, st := newTestHandler(t)
	ctx := context.Background()

	iv := &store.Interview{UserID: "user-1", Topic: "t", Duration: 5, Difficulty: "easy", Seniority: "junior", SilenceTime: 3}
	if err := st.CreateInterview(ctx, iv); err != nil {
		t.Fatalf("CreateInterview: %v", err)
	}

	rec := doJSON(t, h, http.MethodPost, "/api/interview/"+iv.ID+"/finish", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp interviewResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "COMPLETED" || resp.EndTime == nil {
		t.Fatalf("response = %+v", resp)
	}
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := doJSON(t, h, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
