// Package stt consumes a streaming speech-to-text provider and turns its
// recognition events into transcript fragments. The engine never manages
// model configuration; it only consumes fragment events.
package stt

import (
	"context"

	"github.com/liveassist-ai/liveassist-go/pkg/core/types"
)

// Options configures a recognition stream.
type Options struct {
	Model      string // provider-specific model name
	Language   string // ISO language code (default "en")
	SampleRate int    // input sample rate in Hz (default 16000)
	// Source tags every emitted fragment (own microphone vs counterpart
	// audio).
	Source types.Source
}

// Provider opens streaming recognition channels.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// NewStream opens a live recognition channel. Audio is pushed with
	// SendAudio; interim and final fragments arrive on Fragments.
	NewStream(ctx context.Context, opts Options) (Stream, error)
}

// Stream is one live recognition channel.
type Stream interface {
	// SendAudio pushes raw PCM audio (s16le mono at the configured rate).
	SendAudio(data []byte) error

	// Finalize flushes buffered audio into a final fragment while keeping
	// the channel open. Call it when the speaker pauses.
	Finalize() error

	// Fragments yields interim and final transcript fragments. Closed when
	// the channel ends.
	Fragments() <-chan types.Fragment

	// Close tears the channel down.
	Close() error
}
