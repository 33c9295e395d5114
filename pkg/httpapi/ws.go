package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/intervox/intervox/pkg/adapters/stt"
	"github.com/intervox/intervox/pkg/adapters/tts"
	"github.com/intervox/intervox/pkg/channel"
	"github.com/intervox/intervox/pkg/orchestrator"
	"github.com/intervox/intervox/pkg/session"
	"github.com/intervox/intervox/pkg/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browser clients connect from the frontend origin; auth happens at the
	// interview-id level, not the origin level.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// serveConversation runs one live interview over a websocket. Rejections
// happen after the upgrade so the client receives a meaningful close code
// instead of a failed handshake.
func (h *Handler) serveConversation(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	logger := h.logger.With(slog.String("interview_id", id))
	ch := channel.NewWebSocket(conn, logger)

	iv, err := h.opts.Store.GetInterview(r.Context(), id)
	if err != nil {
		logger.Error("interview lookup failed", slog.String("error", err.Error()))
		_ = ch.Close()
		return
	}
	if iv == nil {
		_ = ch.CloseWithCode(channel.CloseNotFound, "interview not found")
		return
	}
	if iv.Status == store.StatusCompleted {
		_ = ch.CloseWithCode(channel.CloseAlreadyConcluded, "interview already concluded")
		return
	}

	// The stored start time anchors the budget, so a reconnect after a crash
	// resumes against the same clock instead of restarting it.
	startedAt, err := h.opts.Store.MarkStarted(r.Context(), id, time.Now())
	if err != nil {
		logger.Error("mark started failed", slog.String("error", err.Error()))
		_ = ch.Close()
		return
	}

	silence := h.opts.DefaultSilence
	if iv.SilenceTime > 0 {
		silence = time.Duration(iv.SilenceTime * float64(time.Second))
	}
	sess, err := h.opts.Registry.Register(id, startedAt, session.Config{
		TimeBudget:       time.Duration(iv.Duration) * time.Minute,
		SilenceThreshold: silence,
	})
	if err != nil {
		_ = ch.CloseWithCode(channel.CloseAlreadyActive, "conversation already active")
		return
	}
	defer h.opts.Registry.Unregister(id)

	transcriber, err := h.opts.Provider.NewTranscriber(stt.Config{
		ConversationID: id,
		SampleRate:     16000,
		Language:       "en",
	})
	if err != nil {
		logger.Error("transcriber init failed", slog.String("error", err.Error()))
		_ = ch.Close()
		return
	}
	synthesizer, err := h.opts.Provider.NewSynthesizer(tts.Config{
		ConversationID: id,
		SampleRate:     24000,
	})
	if err != nil {
		logger.Error("synthesizer init failed", slog.String("error", err.Error()))
		_ = ch.Close()
		return
	}

	cfg := h.opts.BaseConfig
	cfg.SeedPrompt = systemPrompt(iv)
	cfg.OpeningLine = openingLine(iv)

	orch := orchestrator.New(sess, orchestrator.Deps{
		Channel:     ch,
		Transcriber: transcriber,
		Synthesizer: synthesizer,
		Generator:   h.opts.Provider.Generator,
		Persistence: h.opts.Store,
		OnConcluded: h.scoreInBackground,
	}, h.opts.Policy, cfg, logger)

	logger.Info("conversation starting",
		slog.Int("duration_min", iv.Duration),
		slog.Duration("silence_threshold", silence))

	// The conversation outlives the request context: the channel dropping is
	// what ends it.
	if err := orch.Run(context.Background()); err != nil {
		logger.Warn("conversation ended with error", slog.String("error", err.Error()))
	}
	logger.Info("conversation finished")
}

// systemPrompt is the single SYSTEM turn that frames the whole interview.
func systemPrompt(iv *store.Interview) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a professional interviewer conducting a live spoken interview about %s. ", iv.Topic)
	fmt.Fprintf(&b, "The candidate is at %s level and the expected difficulty is %s. ", iv.Seniority, iv.Difficulty)
	if iv.Concept != "" {
		fmt.Fprintf(&b, "Focus your questions on %s. ", iv.Concept)
	}
	fmt.Fprintf(&b, "The interview lasts %d minutes. ", iv.Duration)
	b.WriteString("Ask exactly one question at a time and wait for the answer. ")
	b.WriteString("Keep every question short and conversational; your words are spoken aloud, so never use markdown, lists or code blocks. ")
	b.WriteString("Follow up on weak or incomplete answers before moving to the next topic.")
	return b.String()
}

func openingLine(iv *store.Interview) string {
	return fmt.Sprintf("Hello and welcome! Today we will be talking about %s. To get started, could you briefly introduce yourself and your experience in this area?", iv.Topic)
}
