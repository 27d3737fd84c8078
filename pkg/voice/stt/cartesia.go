package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/liveassist-ai/liveassist-go/pkg/core/types"
)

const (
	cartesiaStreamURL = "wss://api.cartesia.ai/stt/websocket"
	cartesiaVersion   = "2025-04-16"

	defaultModel      = "ink-whisper"
	defaultLanguage   = "en"
	defaultSampleRate = 16000
)

// Cartesia streams recognition over Cartesia's STT websocket.
type Cartesia struct {
	apiKey string
}

// NewCartesia creates a Cartesia recognition provider.
func NewCartesia(apiKey string) *Cartesia {
	return &Cartesia{apiKey: apiKey}
}

// Name returns the provider identifier.
func (c *Cartesia) Name() string {
	return "cartesia"
}

// NewStream opens a live recognition channel.
func (c *Cartesia) NewStream(ctx context.Context, opts Options) (Stream, error) {
	u, err := url.Parse(cartesiaStreamURL)
	if err != nil {
		return nil, fmt.Errorf("parse websocket URL: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = defaultModel
	}
	language := opts.Language
	if language == "" {
		language = defaultLanguage
	}
	sampleRate := opts.SampleRate
	if sampleRate == 0 {
		sampleRate = defaultSampleRate
	}

	q := u.Query()
	q.Set("model", model)
	q.Set("language", language)
	q.Set("encoding", "pcm_s16le")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	// Filter background noise without suppressing quiet speech; interim
	// transcripts keep flowing between silences.
	q.Set("min_volume", "0.01")
	q.Set("api_key", c.apiKey)
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("X-API-Key", c.apiKey)
	headers.Set("Cartesia-Version", cartesiaVersion)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if len(body) > 0 {
				return nil, fmt.Errorf("websocket connect (status %d): %s", resp.StatusCode, string(body))
			}
			return nil, fmt.Errorf("websocket connect: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket connect: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &cartesiaStream{
		conn:      conn,
		source:    opts.Source,
		fragments: make(chan types.Fragment, 100),
		ctx:       ctx,
		cancel:    cancel,
	}
	go s.readLoop()
	return s, nil
}

type cartesiaStream struct {
	conn      *websocket.Conn
	source    types.Source
	fragments chan types.Fragment
	closed    atomic.Bool
	writeMu   sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
}

type cartesiaResponse struct {
	Type      string  `json:"type"` // "transcript", "flush_done", "done", "error"
	Text      string  `json:"text"`
	IsFinal   bool    `json:"is_final"`
	Duration  float64 `json:"duration"`
	Language  string  `json:"language"`
	RequestID string  `json:"request_id"`
	Error     string  `json:"error"`
}

func (s *cartesiaStream) readLoop() {
	defer close(s.fragments)

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg cartesiaResponse
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "transcript":
			if msg.Text == "" {
				continue
			}
			fragment := types.Fragment{
				Text:        msg.Text,
				TimestampMS: time.Now().UnixMilli(),
				Source:      s.source,
				Interim:     !msg.IsFinal,
			}
			select {
			case s.fragments <- fragment:
			case <-s.ctx.Done():
				return
			}
		case "flush_done":
			continue
		case "done", "error":
			return
		}
	}
}

// SendAudio pushes raw PCM s16le audio.
func (s *cartesiaStream) SendAudio(data []byte) error {
	if s.closed.Load() {
		return fmt.Errorf("recognition stream closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, data)
}

// Finalize flushes buffered audio into a final fragment.
func (s *cartesiaStream) Finalize() error {
	if s.closed.Load() {
		return fmt.Errorf("recognition stream closed")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, []byte("finalize"))
}

// Fragments yields interim and final transcript fragments.
func (s *cartesiaStream) Fragments() <-chan types.Fragment {
	return s.fragments
}

// Close tears the channel down.
func (s *cartesiaStream) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.cancel()

	s.writeMu.Lock()
	_ = s.conn.WriteMessage(websocket.TextMessage, []byte("done"))
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()

	return s.conn.Close()
}
