package exchange

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liveassist-ai/liveassist-go/pkg/core/types"
)

func TestBuildRequest_UsesRecentParagraphsAndFreshNonce(t *testing.T) {
	t.Parallel()

	o := New()
	recent := []types.Paragraph{
		{Text: "p1", Source: types.SourceCounterpart},
		{Text: "p2", Source: types.SourceMicrophone},
		{Text: "p3", Source: types.SourceCounterpart},
		{Text: "p4", Source: types.SourceMicrophone},
		{Text: "p5", Source: types.SourceCounterpart},
	}
	req := o.BuildRequest(types.KindAnswer, recent, []types.ContextMessage{
		{Role: "user", Text: "be brief"},
	})

	assert.Equal(t, types.KindAnswer, req.Kind)
	assert.Equal(t, int64(1), req.Nonce)
	require.Len(t, req.Messages, contextParagraphs+1)
	assert.Equal(t, "transcript:mic", req.Messages[0].Role)
	assert.Equal(t, "p2", req.Messages[0].Text)
	assert.Equal(t, "be brief", req.Messages[contextParagraphs].Text)
	assert.True(t, o.Running(ChannelMain))

	req2 := o.BuildRequest(types.KindAnswer, nil, nil)
	assert.Equal(t, int64(2), req2.Nonce)
}

func TestRouting_CodeGoesToCodeChannel(t *testing.T) {
	t.Parallel()

	o := New()
	assert.Equal(t, ChannelCode, o.ChannelFor(types.KindCode))
	assert.Equal(t, ChannelMain, o.ChannelFor(types.KindAnswer))
	assert.Equal(t, ChannelMain, o.ChannelFor(types.KindExplain))
	assert.Equal(t, ChannelMain, o.ChannelFor(types.KindSummarize))
}

func TestStreaming_StatusThenTokensThenFinal(t *testing.T) {
	t.Parallel()

	o := New()
	channel, msg, changed := o.OnStatus(types.KindAnswer, "running")
	require.True(t, changed)
	assert.Equal(t, ChannelMain, channel)
	assert.True(t, msg.Streaming)
	assert.True(t, o.Running(ChannelMain))

	_, msg, _ = o.OnToken(types.KindAnswer, "a")
	assert.Equal(t, "a", msg.Content)
	_, msg, _ = o.OnToken(types.KindAnswer, "b")
	assert.Equal(t, "ab", msg.Content)

	_, final, changed := o.OnFinal(types.KindAnswer, "ab")
	require.True(t, changed)
	assert.Equal(t, "ab", final.Content)
	assert.False(t, final.Streaming)
	assert.False(t, o.Running(ChannelMain))

	messages := o.Messages(ChannelMain)
	require.Len(t, messages, 1)
	assert.Equal(t, "ab", messages[0].Content)
}

func TestTokens_WithoutStatusOpenMessage(t *testing.T) {
	t.Parallel()

	o := New()
	_, msg, changed := o.OnToken(types.KindExplain, "hello")
	require.True(t, changed)
	assert.True(t, msg.Streaming)
	assert.True(t, o.Running(ChannelMain))
	assert.Len(t, o.Messages(ChannelMain), 1)
}

func TestStatus_RunningTwiceKeepsSingleOpenSlot(t *testing.T) {
	t.Parallel()

	o := New()
	o.OnStatus(types.KindAnswer, "running")
	_, _, opened := o.OnStatus(types.KindAnswer, "running")
	assert.False(t, opened)
	assert.Len(t, o.Messages(ChannelMain), 1)
}

func TestFinal_DuplicateContentDropped(t *testing.T) {
	t.Parallel()

	o := New()
	_, _, changed := o.OnFinal(types.KindAnswer, "use a mutex")
	require.True(t, changed)

	// Whitespace-normalized repeat of resolved content.
	_, _, changed = o.OnFinal(types.KindAnswer, "use  a\nmutex")
	assert.False(t, changed)
	assert.Len(t, o.Messages(ChannelMain), 1)
}

func TestFinal_DuplicateRemovesRedundantOpenPlaceholder(t *testing.T) {
	t.Parallel()

	o := New()
	o.OnFinal(types.KindAnswer, "done already")

	// A retried exchange streams the same content again.
	o.OnStatus(types.KindAnswer, "running")
	o.OnToken(types.KindAnswer, "done already")
	_, _, changed := o.OnFinal(types.KindAnswer, "done already")

	assert.False(t, changed)
	assert.False(t, o.Running(ChannelMain))
	assert.Len(t, o.Messages(ChannelMain), 1)
}

func TestStop_KeepsAccumulatedContent(t *testing.T) {
	t.Parallel()

	o := New()
	o.OnToken(types.KindAnswer, "partial ans")
	channel, msg, changed := o.Stop(types.KindAnswer)

	require.True(t, changed)
	assert.Equal(t, ChannelMain, channel)
	assert.Equal(t, "partial ans", msg.Content)
	assert.False(t, msg.Streaming)
	assert.False(t, o.Running(ChannelMain))

	// A later final with the stopped content is treated as already seen.
	_, _, changed = o.OnFinal(types.KindAnswer, "partial ans")
	assert.False(t, changed)
}

func TestStop_WithoutOpenMessageIsNoop(t *testing.T) {
	t.Parallel()

	o := New()
	_, _, changed := o.Stop(types.KindCode)
	assert.False(t, changed)
}

func TestOnError_ClearsRunningOnly(t *testing.T) {
	t.Parallel()

	o := New()
	o.OnFinal(types.KindAnswer, "kept")
	o.BuildRequest(types.KindAnswer, nil, nil)
	require.True(t, o.Running(ChannelMain))

	channel := o.OnError(types.KindAnswer)
	assert.Equal(t, ChannelMain, channel)
	assert.False(t, o.Running(ChannelMain))
	assert.Len(t, o.Messages(ChannelMain), 1)
}

func TestHydrate_ReclassifiesByKind(t *testing.T) {
	t.Parallel()

	o := New()
	o.OnToken(types.KindAnswer, "local leftovers")

	o.Hydrate([]types.AIMessage{
		{Kind: types.KindAnswer, Content: "first", Streaming: true},
		{Kind: types.KindCode, Content: "func main() {}"},
	})

	main := o.Messages(ChannelMain)
	require.Len(t, main, 1)
	assert.Equal(t, "first", main[0].Content)
	assert.False(t, main[0].Streaming)

	code := o.Messages(ChannelCode)
	require.Len(t, code, 1)
	assert.Equal(t, "func main() {}", code[0].Content)

	// Hydrated content is remembered for dedup.
	_, _, changed := o.OnFinal(types.KindAnswer, "first")
	assert.False(t, changed)
}

func TestReset_ClosesOpenMessages(t *testing.T) {
	t.Parallel()

	o := New()
	o.OnToken(types.KindAnswer, "interrupted")
	o.Reset()

	assert.False(t, o.Running(ChannelMain))
	messages := o.Messages(ChannelMain)
	require.Len(t, messages, 1)
	assert.False(t, messages[0].Streaming)

	// Next exchange opens a fresh slot instead of appending to the old one.
	_, msg, _ := o.OnToken(types.KindAnswer, "new")
	assert.Equal(t, "new", msg.Content)
}

func TestAppend_EvictsOldestAndKeepsOpenIndexStable(t *testing.T) {
	t.Parallel()

	o := New()
	for i := 0; i < channelCap; i++ {
		o.OnFinal(types.KindAnswer, fmt.Sprintf("answer %d", i))
	}
	o.OnToken(types.KindAnswer, "streaming now")

	messages := o.Messages(ChannelMain)
	require.Len(t, messages, channelCap)
	assert.Equal(t, "answer 1", messages[0].Content)

	// The open message survived eviction and still accumulates.
	_, msg, _ := o.OnToken(types.KindAnswer, " more")
	assert.Equal(t, "streaming now more", msg.Content)
}

func TestCustomRoutes(t *testing.T) {
	t.Parallel()

	o := NewWithRoutes(map[types.RequestKind]string{
		types.KindSummarize: "notes",
		types.KindCode:      "  ", // blank route falls back to main
	})
	assert.Equal(t, "notes", o.ChannelFor(types.KindSummarize))
	assert.Equal(t, ChannelMain, o.ChannelFor(types.KindCode))
}
