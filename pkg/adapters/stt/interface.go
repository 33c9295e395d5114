package stt

import "context"

// Result is one transcription event. IsFinal marks end-of-turn: the fragment
// is complete and will not be revised by later events.
type Result struct {
	Text    string
	IsFinal bool
}

// Transcriber defines the contract for any streaming STT vendor.
// The Results channel is infinite until Close; a closed stream is not
// restartable.
type Transcriber interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Start initializes the STT connection.
	Start(ctx context.Context) error
	// Close shuts down the STT connection and closes Results.
	Close() error
	// SendAudio forwards a raw audio frame to the STT service.
	SendAudio(chunk []byte) error
	// Results returns a channel of transcription events.
	Results() <-chan Result
}

// Config contains vendor-agnostic STT configuration.
type Config struct {
	ConversationID string
	SampleRate     int
	Language       string
}
