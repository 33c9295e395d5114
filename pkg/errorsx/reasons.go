package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonSTTConnect ReasonCode = "stt_connect"
	ReasonSTTSend    ReasonCode = "stt_send"
	ReasonSTTStream  ReasonCode = "stt_stream"

	ReasonTTSConnect ReasonCode = "tts_connect"
	ReasonTTSStream  ReasonCode = "tts_stream"

	ReasonLLMGenerate ReasonCode = "llm_generate"
	ReasonLLMParse    ReasonCode = "llm_parse"

	ReasonStoreRead  ReasonCode = "store_read"
	ReasonStoreWrite ReasonCode = "store_write"

	ReasonTransportSend  ReasonCode = "transport_send"
	ReasonTransportClose ReasonCode = "transport_close"
)
