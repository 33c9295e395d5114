// Package assemblyai streams microphone audio to AssemblyAI's v3 streaming
// API and emits transcript events at each turn boundary.
package assemblyai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/intervox/intervox/pkg/adapters/stt"
	"github.com/intervox/intervox/pkg/errorsx"
	"github.com/intervox/intervox/pkg/logging"
)

const streamingEndpoint = "wss://streaming.assemblyai.com/v3/ws"

type Config struct {
	APIKey         string
	SampleRate     int
	ConversationID string
}

type Transcriber struct {
	cfg    Config
	conn   *websocket.Conn
	out    chan stt.Result
	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex
	logger  *slog.Logger
}

// turnEvent is the subset of the v3 message stream we act on. Other event
// types (Begin, Termination) are ignored.
type turnEvent struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript"`
	EndOfTurn  bool   `json:"end_of_turn"`
}

func New(cfg Config) *Transcriber {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	return &Transcriber{
		cfg:    cfg,
		out:    make(chan stt.Result, 256),
		logger: logging.NewComponentLogger(slog.Default(), "assemblyai_stt"),
	}
}

func (t *Transcriber) Name() string { return "assemblyai" }

func (t *Transcriber) Start(ctx context.Context) error {
	if t.cfg.APIKey == "" {
		return errors.New("missing assemblyai api key")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	t.ctx, t.cancel = context.WithCancel(ctx)

	q := url.Values{}
	q.Set("sample_rate", fmt.Sprintf("%d", t.cfg.SampleRate))
	q.Set("format_turns", "true")
	endpoint := streamingEndpoint + "?" + q.Encode()

	t.logger.Debug("connecting to assemblyai",
		slog.String("conversation_id", t.cfg.ConversationID),
		slog.Int("sample_rate", t.cfg.SampleRate))

	dialer := websocket.Dialer{Proxy: http.ProxyFromEnvironment}
	conn, resp, err := dialer.DialContext(t.ctx, endpoint, http.Header{
		"Authorization": []string{t.cfg.APIKey},
	})
	if err != nil {
		if resp != nil {
			t.logger.Error("assemblyai connect refused",
				slog.String("conversation_id", t.cfg.ConversationID),
				slog.String("status", resp.Status))
		}
		return errorsx.Wrap(err, errorsx.ReasonSTTConnect)
	}
	t.conn = conn

	t.logger.Info("connected to assemblyai",
		slog.String("conversation_id", t.cfg.ConversationID))

	go t.readLoop()
	return nil
}

func (t *Transcriber) Close() error {
	if t.cancel != nil {
		t.cancel()
	}
	if t.conn != nil {
		t.writeMu.Lock()
		_ = t.conn.WriteJSON(map[string]any{"type": "Terminate"})
		_ = t.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		t.writeMu.Unlock()
		return t.conn.Close()
	}
	return nil
}

func (t *Transcriber) SendAudio(chunk []byte) error {
	if t.conn == nil {
		return errors.New("not connected")
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		return errorsx.Wrap(err, errorsx.ReasonSTTSend)
	}
	return nil
}

func (t *Transcriber) Results() <-chan stt.Result { return t.out }

func (t *Transcriber) readLoop() {
	for {
		select {
		case <-t.ctx.Done():
			return
		default:
		}

		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if t.ctx.Err() == nil {
				t.logger.Error("assemblyai read loop error",
					slog.String("conversation_id", t.cfg.ConversationID),
					slog.String("error", err.Error()))
			}
			return
		}

		var ev turnEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			t.logger.Warn("assemblyai unparseable message",
				slog.String("conversation_id", t.cfg.ConversationID))
			continue
		}
		if ev.Type != "Turn" || ev.Transcript == "" {
			continue
		}

		select {
		case t.out <- stt.Result{Text: ev.Transcript, IsFinal: ev.EndOfTurn}:
		default:
			t.logger.Warn("assemblyai out channel full",
				slog.String("conversation_id", t.cfg.ConversationID))
		}
	}
}

var _ stt.Transcriber = (*Transcriber)(nil)
