package types

import (
	"strconv"
	"time"
)

// Source tags where a transcript fragment came from.
type Source string

const (
	// SourceMicrophone is the user's own microphone feed.
	SourceMicrophone Source = "mic"
	// SourceCounterpart is the remote party's audio (tab/system capture).
	SourceCounterpart Source = "peer"
)

// Fragment is a raw unit of transcribed speech from the STT provider or a
// peer. Fragments are transient; the aggregator consumes them immediately.
type Fragment struct {
	Text        string `json:"text"`
	TimestampMS int64  `json:"timestamp_ms"`
	Source      Source `json:"source"`
	// Interim marks a non-final STT hypothesis. Interim fragments are
	// shown but never merged into paragraphs.
	Interim bool `json:"interim,omitempty"`
}

// Key returns the composite dedup key for at-least-once transport delivery.
func (f Fragment) Key() string {
	return f.Text + "|" + string(f.Source) + "|" + strconv.FormatInt(f.TimestampMS, 10)
}

// Time converts the fragment timestamp to a time.Time.
func (f Fragment) Time() time.Time {
	return time.UnixMilli(f.TimestampMS)
}

// Paragraph is a merged, stable transcript unit. The newest paragraph of a
// source stays mutable until the merge window elapses.
type Paragraph struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	StartedAtMS int64  `json:"started_at_ms"`
	// LastAtMS is the timestamp of the most recently merged fragment;
	// merge decisions compare against it, not StartedAtMS.
	LastAtMS int64  `json:"last_at_ms"`
	Source   Source `json:"source"`
}
