// Package exchange sends AI assistance requests and reassembles streamed or
// atomic responses into named output channels.
package exchange

import (
	"strings"
	"sync"
	"time"

	"github.com/liveassist-ai/liveassist-go/pkg/core/types"
)

const (
	// ChannelMain receives every response kind without an explicit route.
	ChannelMain = "main"
	// ChannelCode receives code solutions.
	ChannelCode = "code"

	// channelCap bounds retained history per channel; oldest messages are
	// evicted first.
	channelCap = 12

	// dedupCap bounds the finished-message dedup map.
	dedupCap = 256

	// contextParagraphs is how many recent paragraphs seed a request.
	contextParagraphs = 4
)

// channelState holds one output channel's reassembly state. The open slot is
// a single index so at most one streaming message exists per channel.
type channelState struct {
	messages []types.AIMessage // oldest first
	open     int               // index of the streaming message, -1 when none
	running  bool
}

// Orchestrator routes AI exchanges. Safe for concurrent use; the engine's
// read loop and caller-facing methods may touch it from different goroutines.
type Orchestrator struct {
	mu       sync.Mutex
	routes   map[types.RequestKind]string
	channels map[string]*channelState

	nonce int64

	seen      map[string]struct{}
	seenOrder []string

	now func() time.Time
}

// New returns an orchestrator with the default kind routing: code solutions
// go to the code channel, everything else to main.
func New() *Orchestrator {
	return NewWithRoutes(map[types.RequestKind]string{
		types.KindCode: ChannelCode,
	})
}

// NewWithRoutes returns an orchestrator with an explicit kind -> channel
// table. Kinds without an entry route to ChannelMain.
func NewWithRoutes(routes map[types.RequestKind]string) *Orchestrator {
	r := make(map[types.RequestKind]string, len(routes))
	for kind, channel := range routes {
		if strings.TrimSpace(channel) != "" {
			r[kind] = channel
		}
	}
	return &Orchestrator{
		routes:   r,
		channels: make(map[string]*channelState),
		seen:     make(map[string]struct{}),
		now:      time.Now,
	}
}

// ChannelFor resolves the output channel a request kind routes to.
func (o *Orchestrator) ChannelFor(kind types.RequestKind) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.channelFor(kind)
}

func (o *Orchestrator) channelFor(kind types.RequestKind) string {
	if channel, ok := o.routes[kind]; ok {
		return channel
	}
	return ChannelMain
}

func (o *Orchestrator) channel(name string) *channelState {
	ch, ok := o.channels[name]
	if !ok {
		ch = &channelState{open: -1}
		o.channels[name] = ch
	}
	return ch
}

// BuildRequest assembles an AIRequest: the most recent paragraphs
// oldest-first, then the caller's messages, with a fresh nonce. The resolved
// channel's running indicator is set.
func (o *Orchestrator) BuildRequest(kind types.RequestKind, recent []types.Paragraph, extra []types.ContextMessage) types.AIRequest {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.nonce++
	messages := make([]types.ContextMessage, 0, len(recent)+len(extra))
	start := 0
	if len(recent) > contextParagraphs {
		start = len(recent) - contextParagraphs
	}
	for _, p := range recent[start:] {
		messages = append(messages, types.ContextMessage{
			Role: "transcript:" + string(p.Source),
			Text: p.Text,
		})
	}
	messages = append(messages, extra...)

	o.channel(o.channelFor(kind)).running = true

	return types.AIRequest{
		Kind:     kind,
		Messages: messages,
		Nonce:    o.nonce,
	}
}

// OnStatus handles a backend status announcement. "running" opens a
// placeholder streaming message when none is open yet, covering backends
// that announce start before the first token. Any other status clears the
// running indicator.
func (o *Orchestrator) OnStatus(kind types.RequestKind, status string) (string, types.AIMessage, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	name := o.channelFor(kind)
	ch := o.channel(name)
	if status != "running" {
		ch.running = false
		return name, types.AIMessage{}, false
	}
	ch.running = true
	if ch.open >= 0 {
		return name, ch.messages[ch.open], false
	}
	msg := types.AIMessage{
		Kind:      kind,
		Timestamp: o.now(),
		Streaming: true,
	}
	o.append(ch, msg)
	ch.open = len(ch.messages) - 1
	return name, msg, true
}

// OnToken appends one streamed token to the channel's open message, creating
// it first if the backend skipped the running announcement.
func (o *Orchestrator) OnToken(kind types.RequestKind, token string) (string, types.AIMessage, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	name := o.channelFor(kind)
	ch := o.channel(name)
	ch.running = true
	if ch.open < 0 {
		o.append(ch, types.AIMessage{
			Kind:      kind,
			Timestamp: o.now(),
			Streaming: true,
		})
		ch.open = len(ch.messages) - 1
	}
	msg := &ch.messages[ch.open]
	msg.Content += token
	return name, *msg, true
}

// OnFinal resolves the channel's open streaming message into a finished one,
// or appends a new finished message when none is open. A finished message
// whose (kind, normalized content) was already seen is dropped; only the
// running indicator is cleared.
func (o *Orchestrator) OnFinal(kind types.RequestKind, content string) (string, types.AIMessage, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	name := o.channelFor(kind)
	ch := o.channel(name)
	ch.running = false

	key := dedupKey(kind, content)
	_, dup := o.seen[key]

	if ch.open >= 0 {
		if dup {
			// The streamed accumulation already resolved this content;
			// drop the redundant open placeholder.
			ch.messages = append(ch.messages[:ch.open], ch.messages[ch.open+1:]...)
			ch.open = -1
			return name, types.AIMessage{}, false
		}
		msg := &ch.messages[ch.open]
		msg.Content = content
		msg.Streaming = false
		ch.open = -1
		o.remember(key)
		return name, *msg, true
	}

	if dup {
		return name, types.AIMessage{}, false
	}
	msg := types.AIMessage{
		Kind:      kind,
		Content:   content,
		Timestamp: o.now(),
	}
	o.append(ch, msg)
	o.remember(key)
	return name, msg, true
}

// OnError handles a backend failure for a request: clears the running
// indicator without touching already-resolved messages.
func (o *Orchestrator) OnError(kind types.RequestKind) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	name := o.channelFor(kind)
	o.channel(name).running = false
	return name
}

// Stop cancels an in-flight exchange for a kind. Accumulated streaming
// content stays visible, marked non-streaming.
func (o *Orchestrator) Stop(kind types.RequestKind) (string, types.AIMessage, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	name := o.channelFor(kind)
	ch := o.channel(name)
	ch.running = false
	if ch.open < 0 {
		return name, types.AIMessage{}, false
	}
	msg := &ch.messages[ch.open]
	msg.Streaming = false
	ch.open = -1
	if strings.TrimSpace(msg.Content) != "" {
		o.remember(dedupKey(msg.Kind, msg.Content))
	}
	return name, *msg, true
}

// Hydrate replays the backend's authoritative message list, reclassifying
// each message into its channel and replacing all local accumulation state.
func (o *Orchestrator) Hydrate(messages []types.AIMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.channels = make(map[string]*channelState)
	o.seen = make(map[string]struct{})
	o.seenOrder = nil

	for _, msg := range messages {
		msg.Streaming = false
		ch := o.channel(o.channelFor(msg.Kind))
		o.append(ch, msg)
		o.remember(dedupKey(msg.Kind, msg.Content))
	}
}

// Reset drops per-session accumulation that makes no sense to keep after a
// disconnect: open streaming messages and running indicators.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ch := range o.channels {
		if ch.open >= 0 {
			ch.messages[ch.open].Streaming = false
			ch.open = -1
		}
		ch.running = false
	}
}

// Messages returns a channel's retained history, oldest first.
func (o *Orchestrator) Messages(channel string) []types.AIMessage {
	o.mu.Lock()
	defer o.mu.Unlock()
	ch, ok := o.channels[channel]
	if !ok {
		return nil
	}
	out := make([]types.AIMessage, len(ch.messages))
	copy(out, ch.messages)
	return out
}

// Running reports whether an exchange is in flight on a channel.
func (o *Orchestrator) Running(channel string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	ch, ok := o.channels[channel]
	return ok && ch.running
}

// append adds a message to a channel, evicting the oldest entry past the
// retention cap and keeping the open index stable.
func (o *Orchestrator) append(ch *channelState, msg types.AIMessage) {
	ch.messages = append(ch.messages, msg)
	if len(ch.messages) > channelCap {
		ch.messages = ch.messages[1:]
		if ch.open > 0 {
			ch.open--
		} else if ch.open == 0 {
			ch.open = -1
		}
	}
}

func (o *Orchestrator) remember(key string) {
	if _, ok := o.seen[key]; ok {
		return
	}
	if len(o.seenOrder) >= dedupCap {
		oldest := o.seenOrder[0]
		o.seenOrder = o.seenOrder[1:]
		delete(o.seen, oldest)
	}
	o.seen[key] = struct{}{}
	o.seenOrder = append(o.seenOrder, key)
}

func dedupKey(kind types.RequestKind, content string) string {
	return string(kind) + "|" + strings.Join(strings.Fields(content), " ")
}
