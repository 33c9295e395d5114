package tts

import "context"

// Chunk is one piece of synthesized audio.
type Chunk struct {
	Data []byte
	MIME string
}

// Synthesizer defines the contract for any TTS vendor. Speak returns a lazy
// stream of audio chunks for one utterance; cancelling ctx stops synthesis
// mid-stream and the channel is closed. Each call is an independent task.
type Synthesizer interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Speak synthesizes text and streams audio chunks until done or cancelled.
	Speak(ctx context.Context, text string) (<-chan Chunk, error)
}

// Config contains vendor-agnostic TTS configuration.
type Config struct {
	ConversationID string
	SampleRate     int
}
