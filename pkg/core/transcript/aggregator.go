// Package transcript merges raw speech fragments into stable paragraphs.
package transcript

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/liveassist-ai/liveassist-go/pkg/core/types"
)

const (
	// DefaultMergeWindow bounds how far apart two fragments of one source
	// may be and still land in the same paragraph.
	DefaultMergeWindow = 9 * time.Second

	// dedupCap bounds the composite-key dedup map; oldest keys are
	// evicted first so memory stays flat over long sessions.
	dedupCap = 512
)

// Aggregator converts a fragment stream into paragraphs. Visible ordering is
// newest-first; the chronological fragment log is kept for billing/export.
type Aggregator struct {
	mu     sync.Mutex
	window time.Duration

	paragraphs []types.Paragraph // newest first
	fragments  []types.Fragment  // oldest first, finals only
	previews   map[types.Source]string

	seen      map[string]struct{}
	seenOrder []string
}

// New returns an aggregator using the default merge window.
func New() *Aggregator {
	return NewWithWindow(DefaultMergeWindow)
}

// NewWithWindow returns an aggregator with an explicit merge window.
func NewWithWindow(window time.Duration) *Aggregator {
	if window <= 0 {
		window = DefaultMergeWindow
	}
	return &Aggregator{
		window:   window,
		previews: make(map[types.Source]string),
		seen:     make(map[string]struct{}),
	}
}

// Ingest consumes one fragment. It returns the affected paragraph and true
// when the visible transcript changed. Duplicate fragments (same text,
// source and timestamp) are ingested at most once; interim fragments only
// update the per-source preview.
func (a *Aggregator) Ingest(f types.Fragment) (types.Paragraph, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	text := strings.TrimSpace(f.Text)
	if text == "" {
		return types.Paragraph{}, false
	}
	f.Text = text

	if f.Interim {
		a.previews[f.Source] = text
		return types.Paragraph{}, false
	}

	key := f.Key()
	if _, dup := a.seen[key]; dup {
		return types.Paragraph{}, false
	}
	a.remember(key)
	delete(a.previews, f.Source)
	a.fragments = append(a.fragments, f)

	if p := a.mergeTarget(f); p != nil {
		if !strings.HasSuffix(p.Text, text) {
			p.Text = p.Text + " " + text
		}
		p.LastAtMS = f.TimestampMS
		return *p, true
	}

	para := types.Paragraph{
		ID:          uuid.NewString(),
		Text:        text,
		StartedAtMS: f.TimestampMS,
		LastAtMS:    f.TimestampMS,
		Source:      f.Source,
	}
	a.paragraphs = append([]types.Paragraph{para}, a.paragraphs...)
	return para, true
}

// mergeTarget finds the most recent paragraph of f's source when it is
// still within the merge window. Caller holds a.mu.
func (a *Aggregator) mergeTarget(f types.Fragment) *types.Paragraph {
	for i := range a.paragraphs {
		p := &a.paragraphs[i]
		if p.Source != f.Source {
			continue
		}
		delta := f.TimestampMS - p.LastAtMS
		if delta < 0 {
			delta = -delta
		}
		if time.Duration(delta)*time.Millisecond < a.window {
			return p
		}
		return nil
	}
	return nil
}

func (a *Aggregator) remember(key string) {
	if len(a.seenOrder) >= dedupCap {
		oldest := a.seenOrder[0]
		a.seenOrder = a.seenOrder[1:]
		delete(a.seen, oldest)
	}
	a.seen[key] = struct{}{}
	a.seenOrder = append(a.seenOrder, key)
}

// Hydrate rebuilds all paragraph and dedup state from a snapshot's fragment
// list, replacing anything ingested before. Used right after (re)connect.
func (a *Aggregator) Hydrate(fragments []types.Fragment) {
	a.mu.Lock()
	a.paragraphs = nil
	a.fragments = nil
	a.previews = make(map[types.Source]string)
	a.seen = make(map[string]struct{})
	a.seenOrder = nil
	a.mu.Unlock()

	for _, f := range fragments {
		a.Ingest(f)
	}
}

// Clear drops all transcript state. Only the explicit "clear transcript"
// session action calls this.
func (a *Aggregator) Clear() {
	a.Hydrate(nil)
}

// Paragraphs returns the visible transcript, newest first.
func (a *Aggregator) Paragraphs() []types.Paragraph {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]types.Paragraph, len(a.paragraphs))
	copy(out, a.paragraphs)
	return out
}

// Chronological returns every final fragment oldest-first, for export and
// billing reconciliation.
func (a *Aggregator) Chronological() []types.Fragment {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]types.Fragment, len(a.fragments))
	copy(out, a.fragments)
	return out
}

// Recent returns at most n of the latest fragments, oldest-first, for
// building AI request context without scanning the whole history.
func (a *Aggregator) Recent(n int) []types.Fragment {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n <= 0 || len(a.fragments) == 0 {
		return nil
	}
	if n > len(a.fragments) {
		n = len(a.fragments)
	}
	out := make([]types.Fragment, n)
	copy(out, a.fragments[len(a.fragments)-n:])
	return out
}

// Preview returns the latest interim hypothesis for a source, if any.
func (a *Aggregator) Preview(source types.Source) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	text, ok := a.previews[source]
	return text, ok
}
