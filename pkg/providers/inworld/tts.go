// Package inworld synthesizes speech through Inworld's bidirectional
// streaming TTS API. Each utterance runs over its own short-lived websocket,
// so cancelling one reply never disturbs the next.
package inworld

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/intervox/intervox/pkg/adapters/tts"
	"github.com/intervox/intervox/pkg/errorsx"
	"github.com/intervox/intervox/pkg/logging"
)

const streamingEndpoint = "wss://api.inworld.ai/tts/v1/voice:streamBidirectional"

type Config struct {
	// APIKey is the base64 Basic credential from the Inworld portal.
	APIKey         string
	VoiceID        string
	ModelID        string
	SampleRate     int
	ConversationID string
}

type Synthesizer struct {
	cfg    Config
	logger *slog.Logger
}

type resultMessage struct {
	Result struct {
		AudioChunk struct {
			AudioContent string `json:"audioContent"`
		} `json:"audioChunk"`
		ContextClosed *struct{} `json:"contextClosed"`
	} `json:"result"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func New(cfg Config) *Synthesizer {
	if cfg.VoiceID == "" {
		cfg.VoiceID = "Ashley"
	}
	if cfg.ModelID == "" {
		cfg.ModelID = "inworld-tts-1.5-max"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 24000
	}
	return &Synthesizer{
		cfg:    cfg,
		logger: logging.NewComponentLogger(slog.Default(), "inworld_tts"),
	}
}

func (s *Synthesizer) Name() string { return "inworld" }

// Speak synthesizes one utterance. The returned channel closes when the
// utterance is fully streamed, the context is cancelled, or the vendor closes
// the stream.
func (s *Synthesizer) Speak(ctx context.Context, text string) (<-chan tts.Chunk, error) {
	if s.cfg.APIKey == "" {
		return nil, errors.New("missing inworld api key")
	}

	dialer := websocket.Dialer{Proxy: http.ProxyFromEnvironment}
	conn, resp, err := dialer.DialContext(ctx, streamingEndpoint, http.Header{
		"Authorization": []string{"Basic " + s.cfg.APIKey},
	})
	if err != nil {
		if resp != nil {
			s.logger.Error("inworld connect refused",
				slog.String("conversation_id", s.cfg.ConversationID),
				slog.String("status", resp.Status))
		}
		return nil, errorsx.Wrap(err, errorsx.ReasonTTSConnect)
	}

	if err := s.openContext(conn, text); err != nil {
		_ = conn.Close()
		return nil, errorsx.Wrap(err, errorsx.ReasonTTSStream)
	}

	out := make(chan tts.Chunk, 8)

	// Closing the conn is what unblocks ReadMessage on cancellation.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	go func() {
		defer close(out)
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Debug("inworld stream ended",
						slog.String("conversation_id", s.cfg.ConversationID),
						slog.String("error", err.Error()))
				}
				return
			}

			var msg resultMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				s.logger.Warn("inworld unparseable message",
					slog.String("conversation_id", s.cfg.ConversationID))
				continue
			}
			if msg.Error != nil {
				s.logger.Error("inworld synthesis error",
					slog.String("conversation_id", s.cfg.ConversationID),
					slog.String("message", msg.Error.Message))
				return
			}
			if msg.Result.ContextClosed != nil {
				return
			}
			if msg.Result.AudioChunk.AudioContent == "" {
				continue
			}

			raw, err := base64.StdEncoding.DecodeString(msg.Result.AudioChunk.AudioContent)
			if err != nil {
				s.logger.Warn("inworld audio decode error",
					slog.String("conversation_id", s.cfg.ConversationID),
					slog.String("error", err.Error()))
				continue
			}

			select {
			case <-ctx.Done():
				return
			case out <- tts.Chunk{Data: wrapPCM(raw, s.cfg.SampleRate), MIME: "audio/wav"}:
			}
		}
	}()

	return out, nil
}

// openContext runs the per-utterance handshake: create the synthesis context,
// send the text, flush, and close so the vendor finalizes the stream.
func (s *Synthesizer) openContext(conn *websocket.Conn, text string) error {
	messages := []map[string]any{
		{
			"create_context": map[string]any{
				"voice_id": s.cfg.VoiceID,
				"model_id": s.cfg.ModelID,
				"audio_config": map[string]any{
					"audio_encoding":    "LINEAR16",
					"sample_rate_hertz": s.cfg.SampleRate,
				},
			},
		},
		{"send_text": map[string]any{"text": text}},
		{"flush_context": map[string]any{}},
		{"close_context": map[string]any{}},
	}
	for _, msg := range messages {
		if err := conn.WriteJSON(msg); err != nil {
			return err
		}
	}
	return nil
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
