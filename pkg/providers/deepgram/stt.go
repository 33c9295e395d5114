// Package deepgram streams microphone audio to Deepgram's live transcription
// API and emits transcript events.
package deepgram

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/intervox/intervox/pkg/adapters/stt"
	"github.com/intervox/intervox/pkg/logging"
)

type Config struct {
	APIKey         string
	Model          string
	Language       string
	SampleRate     int
	ConversationID string
}

type Transcriber struct {
	cfg      Config
	dgClient *client.WSCallback
	out      chan stt.Result

	ctx        context.Context
	cancel     context.CancelFunc
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	logger     *slog.Logger
}

func New(cfg Config) *Transcriber {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	return &Transcriber{
		cfg:    cfg,
		out:    make(chan stt.Result, 256),
		logger: logging.NewComponentLogger(slog.Default(), "deepgram_stt"),
	}
}

func (t *Transcriber) Name() string { return "deepgram" }

func (t *Transcriber) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	t.ctx, t.cancel = context.WithCancel(ctx)
	t.pipeReader, t.pipeWriter = io.Pipe()

	clientOptions := &interfaces.ClientOptions{
		EnableKeepAlive: true,
	}
	transcriptOptions := &interfaces.LiveTranscriptionOptions{
		Model:          t.cfg.Model,
		Language:       t.cfg.Language,
		Encoding:       "linear16",
		SampleRate:     t.cfg.SampleRate,
		InterimResults: true,
		SmartFormat:    true,
	}

	t.logger.Info("initializing deepgram connection",
		slog.String("conversation_id", t.cfg.ConversationID),
		slog.String("model", t.cfg.Model),
		slog.Int("sample_rate", t.cfg.SampleRate))

	dgClient, err := client.NewWSUsingCallback(t.ctx, t.cfg.APIKey, clientOptions, transcriptOptions, &callback{parent: t})
	if err != nil {
		t.logger.Error("deepgram client create failed",
			slog.String("error", err.Error()),
			slog.String("conversation_id", t.cfg.ConversationID))
		return err
	}
	t.dgClient = dgClient

	if connected := t.dgClient.Connect(); !connected {
		t.logger.Error("deepgram connect failed",
			slog.String("conversation_id", t.cfg.ConversationID))
		return fmt.Errorf("deepgram connection failed")
	}

	go func() {
		if err := t.dgClient.Stream(t.pipeReader); err != nil && t.ctx.Err() == nil {
			t.logger.Error("deepgram stream error",
				slog.String("error", err.Error()),
				slog.String("conversation_id", t.cfg.ConversationID))
		}
	}()
	return nil
}

func (t *Transcriber) Close() error {
	t.logger.Info("closing deepgram connection",
		slog.String("conversation_id", t.cfg.ConversationID))
	if t.cancel != nil {
		t.cancel()
	}
	if t.pipeWriter != nil {
		_ = t.pipeWriter.Close()
	}
	if t.dgClient != nil {
		t.dgClient.Stop()
	}
	return nil
}

func (t *Transcriber) SendAudio(chunk []byte) error {
	if t.pipeWriter == nil {
		return fmt.Errorf("not started")
	}
	_, err := t.pipeWriter.Write(chunk)
	if err != nil {
		t.logger.Error("failed to send audio to deepgram",
			slog.String("error", err.Error()),
			slog.String("conversation_id", t.cfg.ConversationID))
	}
	return err
}

func (t *Transcriber) Results() <-chan stt.Result { return t.out }

type callback struct {
	parent *Transcriber
}

func (c *callback) Open(or *msginterfaces.OpenResponse) error {
	c.parent.logger.Info("deepgram connection opened",
		slog.String("conversation_id", c.parent.cfg.ConversationID))
	return nil
}

func (c *callback) Message(mr *msginterfaces.MessageResponse) error {
	if len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	transcript := mr.Channel.Alternatives[0].Transcript
	if transcript == "" {
		return nil
	}
	isFinal := mr.IsFinal || mr.SpeechFinal

	c.parent.logger.Debug("transcript received",
		slog.String("conversation_id", c.parent.cfg.ConversationID),
		slog.Bool("is_final", isFinal))

	select {
	case c.parent.out <- stt.Result{Text: transcript, IsFinal: isFinal}:
	default:
		c.parent.logger.Warn("deepgram out channel full",
			slog.String("conversation_id", c.parent.cfg.ConversationID))
	}
	return nil
}

func (c *callback) Metadata(md *msginterfaces.MetadataResponse) error {
	c.parent.logger.Debug("deepgram metadata received",
		slog.String("request_id", md.RequestID))
	return nil
}

func (c *callback) SpeechStarted(ssr *msginterfaces.SpeechStartedResponse) error { return nil }

func (c *callback) UtteranceEnd(ur *msginterfaces.UtteranceEndResponse) error { return nil }

func (c *callback) Close(cr *msginterfaces.CloseResponse) error {
	c.parent.logger.Info("deepgram connection closed",
		slog.String("conversation_id", c.parent.cfg.ConversationID))
	return nil
}

func (c *callback) Error(er *msginterfaces.ErrorResponse) error {
	c.parent.logger.Error("deepgram error",
		slog.String("conversation_id", c.parent.cfg.ConversationID),
		slog.String("error_code", er.ErrCode),
		slog.String("error_message", er.ErrMsg))
	return nil
}

func (c *callback) UnhandledEvent(byData []byte) error {
	c.parent.logger.Debug("deepgram unhandled event",
		slog.String("conversation_id", c.parent.cfg.ConversationID))
	return nil
}

var _ stt.Transcriber = (*Transcriber)(nil)
