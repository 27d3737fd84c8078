package liveassist

import (
	"log/slog"
	"net/http"
	"time"
)

// ClientOption is a function that configures a Client.
type ClientOption func(*Client)

// WithBaseURL sets the session backend base URL.
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithAPIKey sets the backend API key used on REST calls and channel joins.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLogger sets the logger for the client.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithConnectTimeout bounds the websocket dial plus join handshake when the
// caller's context carries no deadline.
func WithConnectTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.connectTimeout = d
		}
	}
}

// WithFlushInterval overrides the usage ledger's periodic flush cadence.
func WithFlushInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.flushInterval = d
		}
	}
}

// WithFlushGuard overrides the ledger's duplicate-flush guard window.
func WithFlushGuard(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.flushGuard = d
		}
	}
}
