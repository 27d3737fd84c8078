// Package protocol defines the duplex-channel wire vocabulary between the
// engine and the session backend. Frames are JSON objects carrying a "type"
// envelope; Client* frames are outbound, Server* frames inbound.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/liveassist-ai/liveassist-go/pkg/core/types"
)

const ProtocolVersion1 = "1"

// Outbound frame types.
const (
	TypeJoin               = "join"
	TypeTranscriptFragment = "transcript_fragment"
	TypeAIRequest          = "ai_request"
	TypeCaptureAdd         = "capture_add"
	TypeCaptureClear       = "capture_clear"
	TypeStatusUpdate       = "status_update"
	TypeEnd                = "end"
)

// Inbound frame types.
const (
	TypeJoined          = "joined"
	TypeTranscriptChunk = "transcript_chunk"
	TypeAIToken         = "ai_token"
	TypeAIStatus        = "ai_status"
	TypeAIResponse      = "ai_response"
	TypeCaptureState    = "capture_state"
	TypeCaptureSaved    = "capture_saved"
	TypeCaptureCleared  = "capture_cleared"
	TypeStatusChanged   = "status_changed"
	TypeError           = "error"
	TypeEnded           = "ended"
)

// Join rejection codes carried by ServerError.
const (
	CodeBadCredential   = "bad_credential"
	CodeSessionNotFound = "session_not_found"
	CodeAlreadyEnded    = "already_ended"
)

// ClientJoin opens or resumes a session on the channel.
type ClientJoin struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	SessionID       string     `json:"session_id"`
	JoinCode        string     `json:"join_code,omitempty"`
	Role            types.Role `json:"role"`
}

// ClientTranscriptFragment carries speech the engine itself transcribed.
type ClientTranscriptFragment struct {
	Type        string       `json:"type"`
	Text        string       `json:"text"`
	TimestampMS int64        `json:"timestamp_ms"`
	Source      types.Source `json:"source"`
	Interim     bool         `json:"interim,omitempty"`
}

// ClientAIRequest asks the AI backend for assistance.
type ClientAIRequest struct {
	Type     string                 `json:"type"`
	Kind     types.RequestKind      `json:"kind"`
	Messages []types.ContextMessage `json:"messages"`
	Nonce    int64                  `json:"nonce"`
}

// ClientCaptureAdd publishes a new capture to the session.
type ClientCaptureAdd struct {
	Type     string `json:"type"`
	ID       string `json:"id,omitempty"`
	ImageRef string `json:"image_ref"`
}

// ClientCaptureClear empties the session's capture set for every peer.
type ClientCaptureClear struct {
	Type string `json:"type"`
}

// ClientStatusUpdate requests a session status transition.
type ClientStatusUpdate struct {
	Type   string       `json:"type"`
	Status types.Status `json:"status"`
}

// ClientEnd explicitly ends the session.
type ClientEnd struct {
	Type string `json:"type"`
}

// Snapshot is the full current state sent on join or reconnect. It is
// authoritative: the engine replaces, never merges, local state with it.
type Snapshot struct {
	Session   types.Session       `json:"session"`
	Fragments []types.Fragment    `json:"fragments,omitempty"`
	Messages  []types.AIMessage   `json:"messages,omitempty"`
	Captures  []types.CaptureItem `json:"captures,omitempty"`
}

// ServerFrame is implemented by every inbound frame.
type ServerFrame interface {
	frameType() string
}

type ServerJoined struct {
	Type     string   `json:"type"`
	Snapshot Snapshot `json:"snapshot"`
}

type ServerTranscriptChunk struct {
	Type        string       `json:"type"`
	Text        string       `json:"text"`
	TimestampMS int64        `json:"timestamp_ms"`
	Source      types.Source `json:"source"`
	Interim     bool         `json:"interim,omitempty"`
}

type ServerAIToken struct {
	Type  string            `json:"type"`
	Kind  types.RequestKind `json:"kind"`
	Token string            `json:"token"`
}

type ServerAIStatus struct {
	Type   string            `json:"type"`
	Kind   types.RequestKind `json:"kind"`
	Status string            `json:"status"`
}

type ServerAIResponse struct {
	Type    string            `json:"type"`
	Kind    types.RequestKind `json:"kind"`
	Content string            `json:"content"`
}

type ServerCaptureState struct {
	Type  string              `json:"type"`
	Items []types.CaptureItem `json:"items"`
}

type ServerCaptureSaved struct {
	Type string            `json:"type"`
	Item types.CaptureItem `json:"item"`
}

type ServerCaptureCleared struct {
	Type string `json:"type"`
}

type ServerStatusChanged struct {
	Type   string       `json:"type"`
	Status types.Status `json:"status"`
}

type ServerError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ServerEnded struct {
	Type string `json:"type"`
}

func (ServerJoined) frameType() string          { return TypeJoined }
func (ServerTranscriptChunk) frameType() string { return TypeTranscriptChunk }
func (ServerAIToken) frameType() string         { return TypeAIToken }
func (ServerAIStatus) frameType() string        { return TypeAIStatus }
func (ServerAIResponse) frameType() string      { return TypeAIResponse }
func (ServerCaptureState) frameType() string    { return TypeCaptureState }
func (ServerCaptureSaved) frameType() string    { return TypeCaptureSaved }
func (ServerCaptureCleared) frameType() string  { return TypeCaptureCleared }
func (ServerStatusChanged) frameType() string   { return TypeStatusChanged }
func (ServerError) frameType() string           { return TypeError }
func (ServerEnded) frameType() string           { return TypeEnded }

// UnknownFrame preserves frames this engine version does not understand.
type UnknownFrame struct {
	Type string
	Raw  json.RawMessage
}

func (f UnknownFrame) frameType() string { return f.Type }

// DecodeServerFrame decodes one inbound frame by its type envelope.
func DecodeServerFrame(data []byte) (ServerFrame, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode frame envelope: %w", err)
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, fmt.Errorf("frame missing type")
	}

	decode := func(v ServerFrame) (ServerFrame, error) {
		if err := json.Unmarshal(data, v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", typ, err)
		}
		return v, nil
	}

	switch typ {
	case TypeJoined:
		frame, err := decode(&ServerJoined{})
		if err != nil {
			return nil, err
		}
		return *frame.(*ServerJoined), nil
	case TypeTranscriptChunk:
		frame, err := decode(&ServerTranscriptChunk{})
		if err != nil {
			return nil, err
		}
		return *frame.(*ServerTranscriptChunk), nil
	case TypeAIToken:
		frame, err := decode(&ServerAIToken{})
		if err != nil {
			return nil, err
		}
		return *frame.(*ServerAIToken), nil
	case TypeAIStatus:
		frame, err := decode(&ServerAIStatus{})
		if err != nil {
			return nil, err
		}
		return *frame.(*ServerAIStatus), nil
	case TypeAIResponse:
		frame, err := decode(&ServerAIResponse{})
		if err != nil {
			return nil, err
		}
		return *frame.(*ServerAIResponse), nil
	case TypeCaptureState:
		frame, err := decode(&ServerCaptureState{})
		if err != nil {
			return nil, err
		}
		return *frame.(*ServerCaptureState), nil
	case TypeCaptureSaved:
		frame, err := decode(&ServerCaptureSaved{})
		if err != nil {
			return nil, err
		}
		return *frame.(*ServerCaptureSaved), nil
	case TypeCaptureCleared:
		return ServerCaptureCleared{Type: typ}, nil
	case TypeStatusChanged:
		frame, err := decode(&ServerStatusChanged{})
		if err != nil {
			return nil, err
		}
		return *frame.(*ServerStatusChanged), nil
	case TypeError:
		frame, err := decode(&ServerError{})
		if err != nil {
			return nil, err
		}
		return *frame.(*ServerError), nil
	case TypeEnded:
		return ServerEnded{Type: typ}, nil
	default:
		return UnknownFrame{Type: typ, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}
