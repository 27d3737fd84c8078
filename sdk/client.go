// Package liveassist provides the Go client for the live assistance
// platform: the session engine (duplex channel, transcript aggregation,
// AI exchange orchestration, usage accounting) and the thin REST surface of
// the session/account backend.
package liveassist

import (
	"log/slog"
	"net/http"
	"time"
)

const (
	defaultConnectTimeout = 15 * time.Second

	clientVersionHeader = "X-LiveAssist-Client"
	clientVersionValue  = "liveassist-go/1"
)

// Client is the main entry point for the SDK.
type Client struct {
	Sessions *SessionsService
	Live     *LiveService

	baseURL        string
	apiKey         string
	httpClient     *http.Client
	logger         *slog.Logger
	connectTimeout time.Duration
	flushInterval  time.Duration
	flushGuard     time.Duration
}

// NewClient creates a new client. The backend base URL is required for every
// operation; construction never fails so option wiring stays simple.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient:     newDefaultHTTPClient(),
		logger:         slog.Default(),
		connectTimeout: defaultConnectTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.Sessions = &SessionsService{client: c}
	c.Live = &LiveService{client: c}
	return c
}
