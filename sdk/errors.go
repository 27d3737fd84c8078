package liveassist

import (
	"fmt"
	"net/url"

	"github.com/liveassist-ai/liveassist-go/pkg/core"
)

// SDK-level error type that wraps core errors.
type Error = core.Error

// Error types.
const (
	ErrInvalidRequest = core.ErrInvalidRequest
	ErrAuthentication = core.ErrAuthentication
	ErrNotFound       = core.ErrNotFound
	ErrConnection     = core.ErrConnection
	ErrSessionEnded   = core.ErrSessionEnded
	ErrUsageReport    = core.ErrUsageReport
	ErrAIExchange     = core.ErrAIExchange
	ErrCapture        = core.ErrCapture
)

// Error constructors.
var (
	NewInvalidRequestError = core.NewInvalidRequestError
	NewConnectionError     = core.NewConnectionError
	NewSessionEndedError   = core.NewSessionEndedError
	NewUsageReportError    = core.NewUsageReportError
	NewAIExchangeError     = core.NewAIExchangeError
)

// TransportError represents transport-level failures (DNS, timeouts,
// connection reset, TLS handshake, websocket dial) while talking to the
// session backend.
//
// Use errors.As(err, &TransportError{}) to distinguish transport failures
// from canonical engine errors (*core.Error).
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Op != "" && e.URL != "":
		return fmt.Sprintf("transport error during %s %s: %v", e.Op, redactURLUserInfo(e.URL), e.Err)
	case e.Op != "":
		return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("transport error: %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func redactURLUserInfo(raw string) string {
	if raw == "" {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed == nil {
		return raw
	}
	parsed.User = nil
	return parsed.String()
}
