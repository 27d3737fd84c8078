package liveassist

import (
	"github.com/liveassist-ai/liveassist-go/pkg/core"
	"github.com/liveassist-ai/liveassist-go/pkg/core/types"
)

// Event is a typed engine event emitted on LiveSession.Events(). Any
// presentation layer or test harness can attach without the engine depending
// on a UI framework.
type Event interface {
	eventType() string
}

// ParagraphEvent reports that a visible paragraph was opened or extended.
type ParagraphEvent struct {
	Paragraph types.Paragraph
}

// PreviewEvent carries an interim STT hypothesis for a source.
type PreviewEvent struct {
	Source types.Source
	Text   string
}

// AIMessageEvent reports a streamed or finished AI message on a channel.
type AIMessageEvent struct {
	Channel string
	Message types.AIMessage
}

// RunningEvent reports a channel's running-indicator change.
type RunningEvent struct {
	Channel string
	Running bool
}

// StatusEvent reports a session status transition.
type StatusEvent struct {
	Status types.Status
}

// CaptureEvent reports a change to the capture set.
type CaptureEvent struct {
	Items []types.CaptureItem
}

// UsageEvent carries the authoritative usage totals after a flush.
type UsageEvent struct {
	Totals types.UsageTotals
}

// ErrorEvent surfaces a failure of one independent operation. The engine
// keeps running; the caller decides whether to retry the action.
type ErrorEvent struct {
	Err *core.Error
}

// EndedEvent reports remote-initiated session termination.
type EndedEvent struct{}

// DisconnectedEvent reports a transport-level drop. The engine does not
// auto-retry; call Reconnect to resume.
type DisconnectedEvent struct {
	Err error
}

func (ParagraphEvent) eventType() string    { return "paragraph" }
func (PreviewEvent) eventType() string      { return "preview" }
func (AIMessageEvent) eventType() string    { return "ai_message" }
func (RunningEvent) eventType() string      { return "running" }
func (StatusEvent) eventType() string       { return "status" }
func (CaptureEvent) eventType() string      { return "capture" }
func (UsageEvent) eventType() string        { return "usage" }
func (ErrorEvent) eventType() string        { return "error" }
func (EndedEvent) eventType() string        { return "ended" }
func (DisconnectedEvent) eventType() string { return "disconnected" }
