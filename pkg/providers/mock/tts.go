package mock

import (
	"context"
	"sync"
	"time"

	"github.com/intervox/intervox/pkg/adapters/tts"
)

type TTSConfig struct {
	// Chunks emitted per utterance. Defaults to one short silent chunk.
	Chunks int
	// ChunkDelay spaces the chunks out, letting tests hold synthesis open.
	ChunkDelay time.Duration
	// Err, when set, fails every Speak call.
	Err error
}

// Synthesizer is a deterministic TTS adapter: each Speak streams silent
// WAV-tagged chunks, honoring cancellation between chunks.
type Synthesizer struct {
	cfg TTSConfig

	mu    sync.Mutex
	calls int
}

func NewSynthesizer(cfg TTSConfig) *Synthesizer {
	if cfg.Chunks <= 0 {
		cfg.Chunks = 1
	}
	return &Synthesizer{cfg: cfg}
}

func (s *Synthesizer) Name() string { return "mock_tts" }

func (s *Synthesizer) Speak(ctx context.Context, text string) (<-chan tts.Chunk, error) {
	if s.cfg.Err != nil {
		return nil, s.cfg.Err
	}
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	out := make(chan tts.Chunk, 1)
	go func() {
		defer close(out)
		for i := 0; i < s.cfg.Chunks; i++ {
			if s.cfg.ChunkDelay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.cfg.ChunkDelay):
				}
			}
			select {
			case <-ctx.Done():
				return
			case out <- tts.Chunk{Data: make([]byte, 320), MIME: "audio/wav"}:
			}
		}
	}()
	return out, nil
}

// Calls reports how many synthesis tasks were started.
func (s *Synthesizer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var _ tts.Synthesizer = (*Synthesizer)(nil)
