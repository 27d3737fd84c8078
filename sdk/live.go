package liveassist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/liveassist-ai/liveassist-go/pkg/core"
	"github.com/liveassist-ai/liveassist-go/pkg/core/capture"
	"github.com/liveassist-ai/liveassist-go/pkg/core/exchange"
	"github.com/liveassist-ai/liveassist-go/pkg/core/ledger"
	"github.com/liveassist-ai/liveassist-go/pkg/core/transcript"
	"github.com/liveassist-ai/liveassist-go/pkg/core/types"
	"github.com/liveassist-ai/liveassist-go/pkg/engine/protocol"
)

// LiveService opens live assistance sessions over the backend's duplex
// websocket channel (/v1/live).
type LiveService struct {
	client *Client
}

// ConnectRequest configures one live session engine.
type ConnectRequest struct {
	SessionID string
	JoinCode  string
	Role      types.Role

	// MergeWindow overrides the transcript paragraph merge window.
	MergeWindow time.Duration
	// Routes overrides the AI kind -> output channel table.
	Routes map[types.RequestKind]string
}

// LiveSession owns exactly one session's channel, transcript aggregator,
// AI orchestrator, capture queue and usage ledger for its lifetime. All
// inbound events are handled on a single read loop; Close is the teardown
// handle and is safe to call any number of times.
type LiveSession struct {
	client *Client
	logger *slog.Logger

	sessionID string
	joinCode  string
	role      types.Role

	aggregator *transcript.Aggregator
	exchanges  *exchange.Orchestrator
	captures   *capture.Queue

	events   chan Event
	evMu     sync.Mutex
	evClosed bool

	writeMu   sync.Mutex
	closeOnce sync.Once

	mu         sync.Mutex
	conn       *websocket.Conn
	readerDone chan struct{}
	session    types.Session
	usage      *ledger.Ledger
	disposed   bool
	err        error
}

// Connect opens the channel, joins the session and seeds the engine from the
// backend's full-state snapshot. The returned LiveSession is live; consume
// Events() and call Close when done.
func (s *LiveService) Connect(ctx context.Context, req *ConnectRequest) (*LiveSession, error) {
	if s == nil || s.client == nil {
		return nil, core.NewInvalidRequestError("live service is not initialized")
	}
	if req == nil {
		return nil, core.NewInvalidRequestError("req must not be nil")
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return nil, core.NewInvalidRequestError("session id must not be empty")
	}
	role := req.Role
	if role == "" {
		role = types.RoleSolo
	}

	window := req.MergeWindow
	if window <= 0 {
		window = transcript.DefaultMergeWindow
	}
	orchestrator := exchange.New()
	if req.Routes != nil {
		orchestrator = exchange.NewWithRoutes(req.Routes)
	}

	session := &LiveSession{
		client:     s.client,
		logger:     s.client.logger,
		sessionID:  sessionID,
		joinCode:   strings.TrimSpace(req.JoinCode),
		role:       role,
		aggregator: transcript.NewWithWindow(window),
		exchanges:  orchestrator,
		captures:   capture.New(),
		events:     make(chan Event, 256),
	}
	session.usage = ledger.New(sessionID, s.client.Sessions, ledger.Config{
		FlushInterval: s.client.flushInterval,
		GuardWindow:   s.client.flushGuard,
		Logger:        s.client.logger,
		OnTotals: func(totals types.UsageTotals) {
			session.emit(UsageEvent{Totals: totals})
		},
	})

	if err := session.establish(ctx); err != nil {
		return nil, err
	}
	return session, nil
}

// establish dials the channel, performs the join handshake and starts the
// read loop. It serves both the initial connect and reconnects; the snapshot
// it applies replaces all local transcript/AI/capture state.
func (e *LiveSession) establish(ctx context.Context) error {
	wsURL, err := e.client.backendWebSocketEndpoint("/v1/live")
	if err != nil {
		return err
	}

	headers := make(http.Header)
	headers.Set(clientVersionHeader, clientVersionValue)
	if e.client.apiKey != "" {
		headers.Set("Authorization", "Bearer "+e.client.apiKey)
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, e.client.connectTimeout)
		defer cancel()
	}

	dialer := websocket.DefaultDialer
	if dialer == nil {
		dialer = &websocket.Dialer{}
	}
	conn, resp, err := dialer.DialContext(dialCtx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return &TransportError{Op: "GET", URL: wsURL, Err: fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)}
		}
		return &TransportError{Op: "GET", URL: wsURL, Err: err}
	}

	join := protocol.ClientJoin{
		Type:            protocol.TypeJoin,
		ProtocolVersion: protocol.ProtocolVersion1,
		SessionID:       e.sessionID,
		JoinCode:        e.joinCode,
		Role:            e.role,
	}
	if err := conn.WriteJSON(join); err != nil {
		_ = conn.Close()
		return core.NewConnectionError(fmt.Sprintf("send join: %v", err))
	}

	_ = conn.SetReadDeadline(time.Now().Add(e.client.connectTimeout))
	messageType, payload, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return core.NewConnectionError(fmt.Sprintf("read join reply: %v", err))
	}
	_ = conn.SetReadDeadline(time.Time{})
	if messageType != websocket.TextMessage {
		_ = conn.Close()
		return core.NewConnectionError(fmt.Sprintf("unexpected first frame type %d", messageType))
	}

	frame, err := protocol.DecodeServerFrame(payload)
	if err != nil {
		_ = conn.Close()
		return core.NewConnectionError(err.Error())
	}

	switch f := frame.(type) {
	case protocol.ServerJoined:
		done := make(chan struct{})
		e.mu.Lock()
		e.conn = conn
		e.readerDone = done
		e.err = nil
		e.mu.Unlock()
		e.applySnapshot(f.Snapshot)
		go e.readLoop(conn, done)
		return nil
	case protocol.ServerError:
		_ = conn.Close()
		return joinError(f)
	default:
		_ = conn.Close()
		return core.NewConnectionError(fmt.Sprintf("unexpected first frame %T", frame))
	}
}

// joinError maps join rejections onto the typed error taxonomy. None of
// these are retried internally.
func joinError(f protocol.ServerError) *core.Error {
	message := strings.TrimSpace(f.Message)
	switch f.Code {
	case protocol.CodeBadCredential:
		return core.NewAuthenticationError(message)
	case protocol.CodeSessionNotFound:
		return core.NewNotFoundError(message)
	case protocol.CodeAlreadyEnded:
		return core.NewSessionEndedError(message)
	default:
		err := core.NewConnectionError(message)
		err.Code = f.Code
		return err
	}
}

// applySnapshot seeds the engine from a full-state snapshot, replacing (not
// merging) the aggregator, orchestrator and capture queue contents.
func (e *LiveSession) applySnapshot(snap protocol.Snapshot) {
	e.aggregator.Hydrate(snap.Fragments)
	e.exchanges.Hydrate(snap.Messages)
	e.captures.Hydrate(snap.Captures)

	e.mu.Lock()
	e.session = snap.Session
	e.session.ID = e.sessionID
	usage := e.usage
	e.mu.Unlock()

	if snap.Session.Status == types.StatusInProgress {
		usage.Start()
	}
}

// Reconnect resubmits the join with the last known session id and join
// credential. The fresh snapshot is authoritative; nothing local survives
// it. A disposed session cannot reconnect.
func (e *LiveSession) Reconnect(ctx context.Context) error {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return core.NewInvalidRequestError("session engine is disposed")
	}
	conn := e.conn
	done := e.readerDone
	e.conn = nil
	e.mu.Unlock()

	// Tear down any channel that is still open before re-dialing.
	if conn != nil {
		_ = conn.Close()
	}
	if done != nil {
		<-done
	}
	return e.establish(ctx)
}

func (e *LiveSession) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			e.mu.Lock()
			dropped := !e.disposed && e.conn == conn
			if dropped {
				e.conn = nil
			}
			e.mu.Unlock()
			if dropped && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				e.setErr(core.NewConnectionError(err.Error()))
				e.emit(DisconnectedEvent{Err: err})
			} else if dropped {
				e.emit(DisconnectedEvent{})
			}
			return
		}

		frame, err := protocol.DecodeServerFrame(data)
		if err != nil {
			e.logger.Warn("undecodable frame", "session_id", e.sessionID, "error", err)
			continue
		}
		e.handleFrame(frame)
	}
}

func (e *LiveSession) handleFrame(frame protocol.ServerFrame) {
	switch f := frame.(type) {
	case protocol.ServerJoined:
		// Servers resend the snapshot mid-connection after an internal
		// resync; treat it like a reconnect snapshot.
		e.applySnapshot(f.Snapshot)

	case protocol.ServerTranscriptChunk:
		fragment := types.Fragment{
			Text:        f.Text,
			TimestampMS: f.TimestampMS,
			Source:      f.Source,
			Interim:     f.Interim,
		}
		if fragment.Interim {
			e.aggregator.Ingest(fragment)
			e.emit(PreviewEvent{Source: f.Source, Text: strings.TrimSpace(f.Text)})
			return
		}
		if para, changed := e.aggregator.Ingest(fragment); changed {
			e.emit(ParagraphEvent{Paragraph: para})
		}

	case protocol.ServerAIToken:
		if channel, msg, changed := e.exchanges.OnToken(f.Kind, f.Token); changed {
			e.emit(AIMessageEvent{Channel: channel, Message: msg})
		}

	case protocol.ServerAIStatus:
		if f.Status == "error" {
			channel := e.exchanges.OnError(f.Kind)
			e.emit(RunningEvent{Channel: channel, Running: false})
			e.emit(ErrorEvent{Err: core.NewAIExchangeError(fmt.Sprintf("backend reported failure for %s request", f.Kind))})
			return
		}
		channel, msg, changed := e.exchanges.OnStatus(f.Kind, f.Status)
		e.emit(RunningEvent{Channel: channel, Running: f.Status == "running"})
		if changed {
			e.emit(AIMessageEvent{Channel: channel, Message: msg})
		}

	case protocol.ServerAIResponse:
		// The resolved message goes out first so observers see the
		// answer before the channel reads as idle.
		channel, msg, changed := e.exchanges.OnFinal(f.Kind, f.Content)
		if changed {
			e.emit(AIMessageEvent{Channel: channel, Message: msg})
		}
		e.emit(RunningEvent{Channel: channel, Running: false})

	case protocol.ServerCaptureState:
		e.captures.Hydrate(f.Items)
		e.emit(CaptureEvent{Items: e.captures.Items()})

	case protocol.ServerCaptureSaved:
		if _, added := e.captures.Add(f.Item); added {
			e.emit(CaptureEvent{Items: e.captures.Items()})
		}

	case protocol.ServerCaptureCleared:
		e.captures.Clear()
		e.emit(CaptureEvent{})

	case protocol.ServerStatusChanged:
		e.applyStatus(f.Status)

	case protocol.ServerError:
		err := core.NewConnectionError(strings.TrimSpace(f.Message))
		err.Code = f.Code
		e.emit(ErrorEvent{Err: err})

	case protocol.ServerEnded:
		e.handleEnded()

	case protocol.UnknownFrame:
		e.logger.Debug("ignoring unknown frame", "session_id", e.sessionID, "frame_type", f.Type)
	}
}

// applyStatus moves the local status machine. Illegal edges are rejected;
// entering in-progress starts the usage ledger, entering a terminal state
// force-flushes and stops it.
func (e *LiveSession) applyStatus(next types.Status) {
	e.mu.Lock()
	prev := e.session.Status
	err := e.session.Transition(next)
	usage := e.usage
	e.mu.Unlock()

	if err != nil {
		e.logger.Warn("rejected status transition", "session_id", e.sessionID,
			"from", prev, "to", next, "error", err)
		return
	}
	if prev == next {
		return
	}

	e.emit(StatusEvent{Status: next})

	if next == types.StatusInProgress {
		usage.Start()
		return
	}
	if next.IsTerminal() {
		if err := usage.Finalize(context.Background()); err != nil {
			e.emit(ErrorEvent{Err: asCoreError(err)})
		}
		e.emit(UsageEvent{Totals: usage.Totals()})
	}
}

// handleEnded processes remote-initiated termination: the session record is
// completed, the ledger finalized, and the channel closed.
func (e *LiveSession) handleEnded() {
	e.applyStatus(types.StatusCompleted)
	e.emit(EndedEvent{})

	e.mu.Lock()
	conn := e.conn
	e.conn = nil
	e.mu.Unlock()
	if conn != nil {
		e.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
		e.writeMu.Unlock()
		_ = conn.Close()
	}
}

// Events yields typed engine events. Emission is non-blocking: a stalled
// consumer drops events rather than wedging the read loop.
func (e *LiveSession) Events() <-chan Event {
	if e == nil {
		return nil
	}
	return e.events
}

func (e *LiveSession) emit(event Event) {
	if event == nil {
		return
	}
	e.evMu.Lock()
	defer e.evMu.Unlock()
	if e.evClosed {
		return
	}
	select {
	case e.events <- event:
	default:
	}
}

func (e *LiveSession) closeEvents() {
	e.evMu.Lock()
	defer e.evMu.Unlock()
	if !e.evClosed {
		e.evClosed = true
		close(e.events)
	}
}

func (e *LiveSession) setErr(err error) {
	if err == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err == nil {
		e.err = err
	}
}

// Err returns the latched terminal connection error, if any. A successful
// Reconnect clears it.
func (e *LiveSession) Err() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

// sendJSON writes one outbound frame. Mutating frames are silently dropped
// once the session is terminal or the engine disposed; independent failures
// must not turn into surprises after a legitimately ended session.
func (e *LiveSession) sendJSON(v any) error {
	e.mu.Lock()
	conn := e.conn
	disposed := e.disposed
	e.mu.Unlock()
	if disposed {
		return nil
	}
	if conn == nil {
		return core.NewConnectionError("channel is not connected")
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if err := conn.WriteJSON(v); err != nil {
		return core.NewConnectionError(err.Error())
	}
	return nil
}

func (e *LiveSession) terminal() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disposed || e.session.Status.IsTerminal()
}

// SendFragment publishes speech the engine itself transcribed. The fragment
// is ingested locally and mirrored to the backend; composite-key dedup
// absorbs the echo.
func (e *LiveSession) SendFragment(f types.Fragment) error {
	if e.terminal() {
		return nil
	}
	if f.Interim {
		e.aggregator.Ingest(f)
		e.emit(PreviewEvent{Source: f.Source, Text: strings.TrimSpace(f.Text)})
	} else if para, changed := e.aggregator.Ingest(f); changed {
		e.emit(ParagraphEvent{Paragraph: para})
	}
	return e.sendJSON(protocol.ClientTranscriptFragment{
		Type:        protocol.TypeTranscriptFragment,
		Text:        f.Text,
		TimestampMS: f.TimestampMS,
		Source:      f.Source,
		Interim:     f.Interim,
	})
}

// Ask requests AI assistance of the given kind. Context is the most recent
// paragraphs oldest-first plus the caller's extra messages. A no-op once the
// session is terminal.
func (e *LiveSession) Ask(kind types.RequestKind, extra ...types.ContextMessage) error {
	if e.terminal() {
		e.logger.Debug("ignoring ai request on terminal session", "session_id", e.sessionID, "kind", kind)
		return nil
	}

	visible := e.aggregator.Paragraphs()
	chronological := make([]types.Paragraph, len(visible))
	for i, p := range visible {
		chronological[len(visible)-1-i] = p
	}

	req := e.exchanges.BuildRequest(kind, chronological, extra)
	e.emit(RunningEvent{Channel: e.exchanges.ChannelFor(kind), Running: true})

	err := e.sendJSON(protocol.ClientAIRequest{
		Type:     protocol.TypeAIRequest,
		Kind:     req.Kind,
		Messages: req.Messages,
		Nonce:    req.Nonce,
	})
	if err != nil {
		channel := e.exchanges.OnError(kind)
		e.emit(RunningEvent{Channel: channel, Running: false})
		return err
	}
	return nil
}

// StopExchange cancels an in-flight exchange for a kind. Accumulated
// streaming content stays visible, marked non-streaming.
func (e *LiveSession) StopExchange(kind types.RequestKind) {
	channel, msg, changed := e.exchanges.Stop(kind)
	e.emit(RunningEvent{Channel: channel, Running: false})
	if changed {
		e.emit(AIMessageEvent{Channel: channel, Message: msg})
	}
}

// AddCapture publishes a new capture to the session.
func (e *LiveSession) AddCapture(imageRef string) error {
	if e.terminal() {
		return nil
	}
	item, added := e.captures.Add(types.CaptureItem{ImageRef: imageRef, Timestamp: time.Now()})
	if !added {
		return nil
	}
	e.emit(CaptureEvent{Items: e.captures.Items()})
	return e.sendJSON(protocol.ClientCaptureAdd{
		Type:     protocol.TypeCaptureAdd,
		ID:       item.ID,
		ImageRef: item.ImageRef,
	})
}

// ClearCaptures empties the capture set and tells the backend so peers
// observing the session converge.
func (e *LiveSession) ClearCaptures() error {
	if e.terminal() {
		return nil
	}
	e.captures.Clear()
	e.emit(CaptureEvent{})
	return e.sendJSON(protocol.ClientCaptureClear{Type: protocol.TypeCaptureClear})
}

// ClearTranscript drops all local transcript state. An explicit session
// action; normal flow never calls it.
func (e *LiveSession) ClearTranscript() {
	e.aggregator.Clear()
}

// UpdateStatus asks the backend for a status transition and applies it
// locally. The backend's status_changed echo is absorbed by the idempotent
// status machine.
func (e *LiveSession) UpdateStatus(next types.Status) error {
	if e.terminal() {
		return nil
	}
	if err := e.sendJSON(protocol.ClientStatusUpdate{Type: protocol.TypeStatusUpdate, Status: next}); err != nil {
		return err
	}
	e.applyStatus(next)
	return nil
}

// End explicitly ends the session: the end frame is sent, the status machine
// reaches completed, and exactly one forced usage flush is issued.
func (e *LiveSession) End() error {
	if e.terminal() {
		return nil
	}
	err := e.sendJSON(protocol.ClientEnd{Type: protocol.TypeEnd})
	e.applyStatus(types.StatusCompleted)
	return err
}

// Close is the owned-resource handle's dispose: one forced usage flush when
// the session ever started, scheduler stopped, open streaming messages
// cleared, channel torn down. Idempotent and safe to call multiple times.
func (e *LiveSession) Close() error {
	if e == nil {
		return nil
	}
	var finalizeErr error
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.disposed = true
		conn := e.conn
		done := e.readerDone
		usage := e.usage
		e.conn = nil
		e.mu.Unlock()

		if usage != nil {
			finalizeErr = usage.Finalize(context.Background())
		}
		e.exchanges.Reset()

		if conn != nil {
			e.writeMu.Lock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
			e.writeMu.Unlock()
			_ = conn.Close()
		}
		if done != nil {
			<-done
		}
		e.closeEvents()
	})
	return finalizeErr
}

// Session returns a copy of the session record.
func (e *LiveSession) Session() types.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// Paragraphs returns the visible transcript, newest first.
func (e *LiveSession) Paragraphs() []types.Paragraph {
	return e.aggregator.Paragraphs()
}

// Transcript returns every final fragment oldest-first, for export.
func (e *LiveSession) Transcript() []types.Fragment {
	return e.aggregator.Chronological()
}

// Messages returns an AI channel's retained history, oldest first.
func (e *LiveSession) Messages(channel string) []types.AIMessage {
	return e.exchanges.Messages(channel)
}

// Running reports whether an exchange is in flight on a channel.
func (e *LiveSession) Running(channel string) bool {
	return e.exchanges.Running(channel)
}

// Captures returns the capture set in arrival order.
func (e *LiveSession) Captures() []types.CaptureItem {
	return e.captures.Items()
}

// Usage returns the last authoritative usage totals.
func (e *LiveSession) Usage() types.UsageTotals {
	e.mu.Lock()
	usage := e.usage
	e.mu.Unlock()
	return usage.Totals()
}

func asCoreError(err error) *core.Error {
	var ce *core.Error
	if errors.As(err, &ce) {
		return ce
	}
	return core.NewUsageReportError(err.Error())
}

// backendWebSocketEndpoint converts the REST base URL into the websocket
// endpoint for a path.
func (c *Client) backendWebSocketEndpoint(path string) (string, error) {
	endpoint, err := c.backendEndpoint(path)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", core.NewInvalidRequestError("invalid backend base URL")
	}
	switch strings.ToLower(strings.TrimSpace(u.Scheme)) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		// already websocket scheme.
	default:
		return "", core.NewInvalidRequestError("backend base URL must use http(s) or ws(s)")
	}
	return u.String(), nil
}
