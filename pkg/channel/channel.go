// Package channel defines the bidirectional transport between the server and
// the human participant: JSON control messages out, raw audio frames both
// ways.
package channel

// Message types sent to the client.
const (
	TypeAIResponse     = "ai_response"
	TypeSTTPartial     = "stt_partial"
	TypeSTTFinal       = "stt_final"
	TypeAudioMeta      = "audio_meta"
	TypeAudioCancelled = "audio_cancelled"
	TypeAudioError     = "audio_error"
)

// Close codes for connections that cannot be served.
const (
	CloseNotFound         = 4004
	CloseAlreadyConcluded = 4000
	CloseAlreadyActive    = 4003
)

// Message is one outbound JSON control message.
type Message struct {
	Type        string   `json:"type"`
	Text        string   `json:"text,omitempty"`
	ReadingTime float64  `json:"reading_time,omitempty"`
	IsFinal     bool     `json:"is_final,omitempty"`
	TimeLeft    *float64 `json:"time_left,omitempty"`
	MIME        string   `json:"mime,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// ClientChannel is the transport to one connected human. Implementations
// must allow Send/SendAudio from multiple goroutines; ReadAudio is called
// from a single reader loop and unblocks with an error once the channel is
// closed from either side.
type ClientChannel interface {
	ReadAudio() ([]byte, error)
	Send(msg Message) error
	SendAudio(chunk []byte) error
	Close() error
	CloseWithCode(code int, reason string) error
}
