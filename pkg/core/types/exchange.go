package types

import "time"

// RequestKind names what the caller is asking the AI backend for.
type RequestKind string

const (
	KindAnswer    RequestKind = "answer"
	KindExplain   RequestKind = "explain"
	KindCode      RequestKind = "code"
	KindSummarize RequestKind = "summarize"
)

// ContextMessage is one ordered entry of an AI request's context.
type ContextMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// AIRequest is a logical ask to the AI backend. Ephemeral; it exists only
// for the duration of one exchange.
type AIRequest struct {
	Kind     RequestKind      `json:"kind"`
	Messages []ContextMessage `json:"messages"`
	// Nonce disambiguates retries of the same logical ask.
	Nonce int64 `json:"nonce"`
}

// AIMessage is a reassembled response unit routed to an output channel.
type AIMessage struct {
	Kind      RequestKind `json:"kind"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
	// Streaming is true while tokens are still arriving.
	Streaming bool `json:"streaming"`
}
