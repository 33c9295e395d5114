// Package httpapi exposes the interview REST API and the websocket endpoint
// that runs live conversations.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/intervox/intervox/pkg/feedback"
	"github.com/intervox/intervox/pkg/llm"
	"github.com/intervox/intervox/pkg/orchestrator"
	"github.com/intervox/intervox/pkg/session"
	"github.com/intervox/intervox/pkg/store"
	"github.com/intervox/intervox/pkg/timing"

	"github.com/intervox/intervox/pkg/adapters/stt"
	"github.com/intervox/intervox/pkg/adapters/tts"
)

// Providers constructs the per-conversation vendor adapters. STT and TTS
// connections are per conversation; the generator is stateless and shared.
type Providers struct {
	NewTranscriber func(cfg stt.Config) (stt.Transcriber, error)
	NewSynthesizer func(cfg tts.Config) (tts.Synthesizer, error)
	Generator      llm.Generator
}

type Options struct {
	Store    store.Store
	Registry *session.Registry
	Provider Providers
	Policy   timing.Policy
	// BaseConfig carries the cadence settings; prompts are filled in per
	// interview.
	BaseConfig orchestrator.Config
	Scorer     *feedback.Scorer
	// DefaultSilence applies when the interview record has no threshold.
	DefaultSilence  time.Duration
	DurationAllowed func(minutes int) bool
	Logger          *slog.Logger
}

type Handler struct {
	opts   Options
	logger *slog.Logger
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DefaultSilence <= 0 {
		opts.DefaultSilence = 3 * time.Second
	}
	if opts.DurationAllowed == nil {
		opts.DurationAllowed = func(int) bool { return true }
	}
	return &Handler{opts: opts, logger: logger}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Route("/api/interview", func(r chi.Router) {
		r.Post("/", h.createInterview)
		r.Get("/", h.listInterviews)
		r.Get("/{id}", h.getInterview)
		r.Post("/{id}/finish", h.finishInterview)
	})
	r.Get("/ws/interview", h.serveConversation)
	r.Get("/healthz", h.health)
	return r
}

type createInterviewRequest struct {
	UserID      string  `json:"user_id"`
	Topic       string  `json:"topic"`
	Duration    int     `json:"duration"`
	Difficulty  string  `json:"difficulty"`
	Seniority   string  `json:"seniority"`
	Concept     string  `json:"concept"`
	SilenceTime float64 `json:"silence_time"`
}

type interviewResponse struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	Topic       string  `json:"topic"`
	Duration    int     `json:"duration"`
	Difficulty  string  `json:"difficulty"`
	Seniority   string  `json:"seniority"`
	Concept     string  `json:"concept,omitempty"`
	SilenceTime float64 `json:"silence_time"`
	Status      string  `json:"status"`
	StartTime   *string `json:"start_time,omitempty"`
	EndTime     *string `json:"end_time,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

type questionResponse struct {
	Question   string `json:"question"`
	UserAnswer string `json:"user_answer"`
}

type feedbackResponse struct {
	Rating             int    `json:"rating"`
	EnglishScore       int    `json:"english_score"`
	TechnicalScore     int    `json:"technical_score"`
	CommunicationScore int    `json:"communication_score"`
	FeedbackText       string `json:"feedback_text"`
}

type interviewDetailResponse struct {
	interviewResponse
	Questions []questionResponse `json:"questions"`
	Feedback  *feedbackResponse  `json:"feedback,omitempty"`
}

func toInterviewResponse(iv *store.Interview) interviewResponse {
	resp := interviewResponse{
		ID:          iv.ID,
		UserID:      iv.UserID,
		Topic:       iv.Topic,
		Duration:    iv.Duration,
		Difficulty:  iv.Difficulty,
		Seniority:   iv.Seniority,
		Concept:     iv.Concept,
		SilenceTime: iv.SilenceTime,
		Status:      string(iv.Status),
		CreatedAt:   iv.CreatedAt.UTC().Format(time.RFC3339),
	}
	if iv.StartTime != nil {
		s := iv.StartTime.UTC().Format(time.RFC3339)
		resp.StartTime = &s
	}
	if iv.EndTime != nil {
		s := iv.EndTime.UTC().Format(time.RFC3339)
		resp.EndTime = &s
	}
	return resp
}

func (h *Handler) createInterview(w http.ResponseWriter, r *http.Request) {
	var req createInterviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" || req.Topic == "" {
		h.writeError(w, http.StatusBadRequest, "user_id and topic are required")
		return
	}
	if !h.opts.DurationAllowed(req.Duration) {
		h.writeError(w, http.StatusBadRequest, "duration is not an allowed interview length")
		return
	}
	if req.Difficulty == "" {
		req.Difficulty = "medium"
	}
	if req.Seniority == "" {
		req.Seniority = "mid"
	}
	if req.SilenceTime <= 0 {
		req.SilenceTime = h.opts.DefaultSilence.Seconds()
	}

	iv := &store.Interview{
		UserID:      req.UserID,
		Topic:       req.Topic,
		Duration:    req.Duration,
		Difficulty:  req.Difficulty,
		Seniority:   req.Seniority,
		Concept:     req.Concept,
		SilenceTime: req.SilenceTime,
	}
	if err := h.opts.Store.CreateInterview(r.Context(), iv); err != nil {
		h.logger.Error("create interview failed", slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, "could not create interview")
		return
	}
	h.writeJSON(w, http.StatusCreated, toInterviewResponse(iv))
}

func (h *Handler) listInterviews(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "user_id query parameter is required")
		return
	}
	list, err := h.opts.Store.ListInterviews(r.Context(), userID)
	if err != nil {
		h.logger.Error("list interviews failed", slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, "could not list interviews")
		return
	}
	out := make([]interviewResponse, 0, len(list))
	for _, iv := range list {
		out = append(out, toInterviewResponse(iv))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getInterview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	iv, err := h.opts.Store.GetInterview(r.Context(), id)
	if err != nil {
		h.logger.Error("get interview failed", slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, "could not load interview")
		return
	}
	if iv == nil {
		h.writeError(w, http.StatusNotFound, "interview not found")
		return
	}

	questions, err := h.opts.Store.ListQuestions(r.Context(), id)
	if err != nil {
		h.logger.Error("list questions failed", slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, "could not load transcript")
		return
	}
	detail := interviewDetailResponse{
		interviewResponse: toInterviewResponse(iv),
		Questions:         make([]questionResponse, 0, len(questions)),
	}
	for _, q := range questions {
		detail.Questions = append(detail.Questions, questionResponse{
			Question:   q.Question,
			UserAnswer: q.UserAnswer,
		})
	}
	if fb, err := h.opts.Store.GetFeedback(r.Context(), id); err == nil && fb != nil {
		detail.Feedback = &feedbackResponse{
			Rating:             fb.Rating,
			EnglishScore:       fb.EnglishScore,
			TechnicalScore:     fb.TechnicalScore,
			CommunicationScore: fb.CommunicationScore,
			FeedbackText:       fb.FeedbackText,
		}
	}
	h.writeJSON(w, http.StatusOK, detail)
}

func (h *Handler) finishInterview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	iv, err := h.opts.Store.GetInterview(r.Context(), id)
	if err != nil {
		h.logger.Error("get interview failed", slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, "could not load interview")
		return
	}
	if iv == nil {
		h.writeError(w, http.StatusNotFound, "interview not found")
		return
	}

	if err := h.opts.Store.MarkConcluded(r.Context(), id); err != nil {
		h.logger.Error("mark concluded failed", slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, "could not finish interview")
		return
	}
	h.scoreInBackground(id)

	iv, err = h.opts.Store.GetInterview(r.Context(), id)
	if err != nil || iv == nil {
		h.writeError(w, http.StatusInternalServerError, "could not load interview")
		return
	}
	h.writeJSON(w, http.StatusOK, toInterviewResponse(iv))
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.opts.Store.Ping(r.Context()); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":               "ok",
		"active_conversations": h.opts.Registry.Len(),
	})
}

// scoreInBackground triggers deferred feedback generation. Detached from the
// request so a slow evaluation never blocks a response or a teardown.
func (h *Handler) scoreInBackground(interviewID string) {
	if h.opts.Scorer == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := h.opts.Scorer.Generate(ctx, interviewID); err != nil {
			h.logger.Warn("feedback generation failed",
				slog.String("interview_id", interviewID),
				slog.String("error", err.Error()))
		}
	}()
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Debug("response encode failed", slog.String("error", err.Error()))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}
