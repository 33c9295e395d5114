package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/intervox/intervox/pkg/adapters/stt"
)

type STTConfig struct {
	// Script is replayed verbatim on the first SendAudio call.
	Script []stt.Result
}

// Transcriber is a scripted STT adapter for tests and offline runs. Events
// can come from the configured script or be injected with Emit.
type Transcriber struct {
	cfg     STTConfig
	out     chan stt.Result
	mu      sync.Mutex
	started bool
	closed  bool
	emitted bool
	audioIn int
}

func NewTranscriber(cfg STTConfig) *Transcriber {
	return &Transcriber{cfg: cfg, out: make(chan stt.Result, 32)}
}

func (t *Transcriber) Name() string { return "mock_stt" }

func (t *Transcriber) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started = true
	return nil
}

func (t *Transcriber) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.started = false
	close(t.out)
	return nil
}

func (t *Transcriber) SendAudio(chunk []byte) error {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return errors.New("not started")
	}
	t.audioIn++
	replay := !t.emitted && len(t.cfg.Script) > 0
	t.emitted = true
	t.mu.Unlock()

	if replay {
		for _, res := range t.cfg.Script {
			t.out <- res
		}
	}
	return nil
}

// Emit injects a transcription event, as if the vendor produced it.
func (t *Transcriber) Emit(text string, isFinal bool) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()
	t.out <- stt.Result{Text: text, IsFinal: isFinal}
}

// AudioFrames reports how many frames passed the forwarding gate.
func (t *Transcriber) AudioFrames() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.audioIn
}

func (t *Transcriber) Results() <-chan stt.Result { return t.out }

var _ stt.Transcriber = (*Transcriber)(nil)
