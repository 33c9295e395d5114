// Package feedback produces the post-interview evaluation: it rebuilds the
// transcript from the store, asks the language model to score it, and saves
// the result. Runs after the conversation ends, off the hot path.
package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/intervox/intervox/pkg/errorsx"
	"github.com/intervox/intervox/pkg/llm"
	"github.com/intervox/intervox/pkg/store"
)

const evaluationInstructions = `You are an expert interview assessor. Evaluate the interview transcript below and respond with a JSON object containing exactly these fields:
- "rating": overall performance, integer 0-10
- "englishScore": language proficiency, integer 0-10
- "technicalScore": technical accuracy and depth, integer 0-10
- "communicationScore": clarity and structure of answers, integer 0-10
- "feedbackText": 2-4 sentences of concrete, actionable feedback

Unanswered questions count against the candidate. Respond with JSON only.`

const fallbackFeedbackText = "Automated analysis failed or insufficient data. Please review the transcript manually."

type evaluation struct {
	Rating             int    `json:"rating"`
	EnglishScore       int    `json:"englishScore"`
	TechnicalScore     int    `json:"technicalScore"`
	CommunicationScore int    `json:"communicationScore"`
	FeedbackText       string `json:"feedbackText"`
}

// Scorer generates and persists feedback for concluded interviews.
type Scorer struct {
	store     store.Store
	evaluator llm.Evaluator
	logger    *slog.Logger
}

func NewScorer(st store.Store, evaluator llm.Evaluator, logger *slog.Logger) *Scorer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{store: st, evaluator: evaluator, logger: logger}
}

// Generate scores one interview and saves the feedback record. When the
// evaluation fails a placeholder record is saved instead, so the interview
// never stays unscored. A duplicate run is a no-op.
func (s *Scorer) Generate(ctx context.Context, interviewID string) error {
	logger := s.logger.With(slog.String("interview_id", interviewID))

	fb, err := s.evaluate(ctx, interviewID)
	if err != nil {
		logger.Warn("evaluation failed, saving placeholder feedback",
			slog.String("reason", string(errorsx.Reason(err))),
			slog.String("error", err.Error()))
		fb = &store.Feedback{
			InterviewID:  interviewID,
			FeedbackText: fallbackFeedbackText,
		}
	}

	if err := s.store.SaveFeedback(ctx, fb); err != nil {
		if errors.Is(err, store.ErrFeedbackExists) {
			logger.Info("feedback already exists, skipping")
			return nil
		}
		return err
	}
	logger.Info("feedback saved", slog.Int("rating", fb.Rating))
	return nil
}

func (s *Scorer) evaluate(ctx context.Context, interviewID string) (*store.Feedback, error) {
	transcript, err := s.buildTranscript(ctx, interviewID)
	if err != nil {
		return nil, err
	}

	raw, err := s.evaluator.Evaluate(ctx, evaluationInstructions, transcript)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonLLMGenerate)
	}

	var ev evaluation
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("parse evaluation: %w", err), errorsx.ReasonLLMParse)
	}

	return &store.Feedback{
		InterviewID:        interviewID,
		Rating:             clampScore(ev.Rating),
		EnglishScore:       clampScore(ev.EnglishScore),
		TechnicalScore:     clampScore(ev.TechnicalScore),
		CommunicationScore: clampScore(ev.CommunicationScore),
		FeedbackText:       ev.FeedbackText,
	}, nil
}

// buildTranscript renders the interview header and Q/A exchange as the text
// the evaluator scores.
func (s *Scorer) buildTranscript(ctx context.Context, interviewID string) (string, error) {
	iv, err := s.store.GetInterview(ctx, interviewID)
	if err != nil {
		return "", err
	}
	if iv == nil {
		return "", fmt.Errorf("interview %s not found", interviewID)
	}
	questions, err := s.store.ListQuestions(ctx, interviewID)
	if err != nil {
		return "", err
	}
	if len(questions) == 0 {
		return "", fmt.Errorf("interview %s has no transcript", interviewID)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", iv.Topic)
	fmt.Fprintf(&b, "Difficulty: %s\n", iv.Difficulty)
	fmt.Fprintf(&b, "Seniority: %s\n", iv.Seniority)
	if iv.Concept != "" {
		fmt.Fprintf(&b, "Focus concept: %s\n", iv.Concept)
	}
	b.WriteString("\n")

	for _, q := range questions {
		fmt.Fprintf(&b, "AI: %s\n", q.Question)
		answer := q.UserAnswer
		if answer == "" {
			answer = "(No Answer)"
		}
		fmt.Fprintf(&b, "Candidate: %s\n", answer)
	}
	return b.String(), nil
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}
