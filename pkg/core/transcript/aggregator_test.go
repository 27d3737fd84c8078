package transcript

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liveassist-ai/liveassist-go/pkg/core/types"
)

func frag(text string, ts int64, source types.Source) types.Fragment {
	return types.Fragment{Text: text, TimestampMS: ts, Source: source}
}

func TestIngest_MergesWithinWindow(t *testing.T) {
	t.Parallel()

	a := New()
	p1, changed := a.Ingest(frag("hi", 1000, types.SourceMicrophone))
	require.True(t, changed)

	p2, changed := a.Ingest(frag("there", 4000, types.SourceMicrophone))
	require.True(t, changed)

	assert.Equal(t, p1.ID, p2.ID)
	assert.Equal(t, "hi there", p2.Text)
	assert.Equal(t, int64(1000), p2.StartedAtMS)
	assert.Equal(t, int64(4000), p2.LastAtMS)
	assert.Len(t, a.Paragraphs(), 1)
}

func TestIngest_BreaksParagraphPastWindow(t *testing.T) {
	t.Parallel()

	a := New()
	a.Ingest(frag("hi", 1000, types.SourceMicrophone))
	a.Ingest(frag("later", 1000+DefaultMergeWindow.Milliseconds(), types.SourceMicrophone))

	paragraphs := a.Paragraphs()
	require.Len(t, paragraphs, 2)
	// newest first
	assert.Equal(t, "later", paragraphs[0].Text)
	assert.Equal(t, "hi", paragraphs[1].Text)
}

func TestIngest_SourcesNeverMerge(t *testing.T) {
	t.Parallel()

	a := New()
	a.Ingest(frag("question", 1000, types.SourceCounterpart))
	a.Ingest(frag("answer", 1500, types.SourceMicrophone))

	paragraphs := a.Paragraphs()
	require.Len(t, paragraphs, 2)
	assert.Equal(t, types.SourceMicrophone, paragraphs[0].Source)
	assert.Equal(t, types.SourceCounterpart, paragraphs[1].Source)
}

func TestIngest_WindowMeasuredFromLastFragment(t *testing.T) {
	t.Parallel()

	a := NewWithWindow(9 * time.Second)
	a.Ingest(frag("one", 0, types.SourceMicrophone))
	a.Ingest(frag("two", 8000, types.SourceMicrophone))
	// 16s after the first fragment but 8s after the last: still merges.
	a.Ingest(frag("three", 16000, types.SourceMicrophone))

	paragraphs := a.Paragraphs()
	require.Len(t, paragraphs, 1)
	assert.Equal(t, "one two three", paragraphs[0].Text)
}

func TestIngest_DuplicateFragmentDropped(t *testing.T) {
	t.Parallel()

	a := New()
	_, changed := a.Ingest(frag("hello", 1000, types.SourceMicrophone))
	require.True(t, changed)

	_, changed = a.Ingest(frag("hello", 1000, types.SourceMicrophone))
	assert.False(t, changed)

	// Same text at a different timestamp is a legitimate repetition.
	_, changed = a.Ingest(frag("hello", 30000, types.SourceMicrophone))
	assert.True(t, changed)

	assert.Len(t, a.Chronological(), 2)
}

func TestIngest_InterimOnlyUpdatesPreview(t *testing.T) {
	t.Parallel()

	a := New()
	f := frag("thinking ou", 1000, types.SourceMicrophone)
	f.Interim = true
	_, changed := a.Ingest(f)

	assert.False(t, changed)
	assert.Empty(t, a.Paragraphs())
	text, ok := a.Preview(types.SourceMicrophone)
	require.True(t, ok)
	assert.Equal(t, "thinking ou", text)

	// The matching final clears the preview.
	a.Ingest(frag("thinking out loud", 1200, types.SourceMicrophone))
	_, ok = a.Preview(types.SourceMicrophone)
	assert.False(t, ok)
}

func TestIngest_EmptyTextIgnored(t *testing.T) {
	t.Parallel()

	a := New()
	_, changed := a.Ingest(frag("   ", 1000, types.SourceMicrophone))
	assert.False(t, changed)
	assert.Empty(t, a.Paragraphs())
}

func TestIngest_EchoedTailNotDuplicated(t *testing.T) {
	t.Parallel()

	a := New()
	a.Ingest(frag("let me think", 1000, types.SourceMicrophone))
	// Recognizers sometimes re-emit the running tail with a fresh timestamp.
	a.Ingest(frag("let me think", 2000, types.SourceMicrophone))

	paragraphs := a.Paragraphs()
	require.Len(t, paragraphs, 1)
	assert.Equal(t, "let me think", paragraphs[0].Text)
	assert.Equal(t, int64(2000), paragraphs[0].LastAtMS)
}

func TestHydrate_ReplacesEverything(t *testing.T) {
	t.Parallel()

	a := New()
	a.Ingest(frag("stale", 1000, types.SourceMicrophone))

	a.Hydrate([]types.Fragment{
		frag("fresh one", 5000, types.SourceMicrophone),
		frag("fresh two", 7000, types.SourceMicrophone),
	})

	paragraphs := a.Paragraphs()
	require.Len(t, paragraphs, 1)
	assert.Equal(t, "fresh one fresh two", paragraphs[0].Text)

	// Dedup state was rebuilt too: the stale key is ingestible again.
	_, changed := a.Ingest(frag("stale", 1000, types.SourceMicrophone))
	assert.True(t, changed)
}

func TestClear_DropsState(t *testing.T) {
	t.Parallel()

	a := New()
	a.Ingest(frag("gone", 1000, types.SourceMicrophone))
	a.Clear()

	assert.Empty(t, a.Paragraphs())
	assert.Empty(t, a.Chronological())
}

func TestRecent_ReturnsLatestOldestFirst(t *testing.T) {
	t.Parallel()

	a := New()
	a.Ingest(frag("a", 1000, types.SourceMicrophone))
	a.Ingest(frag("b", 20000, types.SourceMicrophone))
	a.Ingest(frag("c", 40000, types.SourceMicrophone))

	recent := a.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].Text)
	assert.Equal(t, "c", recent[1].Text)

	assert.Nil(t, a.Recent(0))
	assert.Len(t, a.Recent(10), 3)
}

func TestIngest_DedupMapStaysBounded(t *testing.T) {
	t.Parallel()

	a := New()
	for i := 0; i < dedupCap+50; i++ {
		a.Ingest(frag("word", int64(i)*60_000, types.SourceMicrophone))
	}
	assert.LessOrEqual(t, len(a.seen), dedupCap)
	assert.Len(t, a.seen, len(a.seenOrder))
}
