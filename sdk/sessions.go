package liveassist

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/liveassist-ai/liveassist-go/pkg/core"
	"github.com/liveassist-ai/liveassist-go/pkg/core/types"
)

// SessionsService is the thin REST surface of the session/account backend:
// session records, the usage-flush endpoint, and transcript/answer retrieval
// for export. Scheduling CRUD screens and payments live elsewhere.
type SessionsService struct {
	client *Client
}

// Get fetches one session record.
func (s *SessionsService) Get(ctx context.Context, sessionID string) (*types.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, core.NewInvalidRequestError("session id must not be empty")
	}
	var session types.Session
	if err := s.client.doJSON(ctx, http.MethodGet, "/v1/sessions/"+sessionID, nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// UpdateStatus asks the backend to move a session record along its
// lifecycle. The backend enforces legal edges; the engine mirrors them.
func (s *SessionsService) UpdateStatus(ctx context.Context, sessionID string, status types.Status) (*types.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, core.NewInvalidRequestError("session id must not be empty")
	}
	if !status.Valid() {
		return nil, core.NewInvalidRequestError("unknown session status: " + string(status))
	}
	payload := struct {
		Status types.Status `json:"status"`
	}{Status: status}
	var session types.Session
	if err := s.client.doJSON(ctx, http.MethodPatch, "/v1/sessions/"+sessionID, payload, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ReportUsage sends elapsed seconds to the billing ledger and returns the
// authoritative totals. finalize marks the session's one closing report.
// Implements the ledger's Reporter.
func (s *SessionsService) ReportUsage(ctx context.Context, sessionID string, seconds int64, finalize bool) (types.UsageTotals, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return types.UsageTotals{}, core.NewInvalidRequestError("session id must not be empty")
	}
	if seconds < 0 {
		return types.UsageTotals{}, core.NewInvalidRequestError(fmt.Sprintf("seconds must not be negative (got %d)", seconds))
	}
	payload := struct {
		Seconds  int64 `json:"seconds"`
		Finalize bool  `json:"finalize,omitempty"`
	}{Seconds: seconds, Finalize: finalize}
	var totals types.UsageTotals
	if err := s.client.doJSON(ctx, http.MethodPost, "/v1/sessions/"+sessionID+"/usage", payload, &totals); err != nil {
		return types.UsageTotals{}, err
	}
	return totals, nil
}

// ExportBundle is the backend's retained transcript and answers for one
// session, fetched for export.
type ExportBundle struct {
	Session   types.Session     `json:"session"`
	Fragments []types.Fragment  `json:"fragments"`
	Messages  []types.AIMessage `json:"messages"`
}

// Export retrieves the transcript and AI answers for a session.
func (s *SessionsService) Export(ctx context.Context, sessionID string) (*ExportBundle, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, core.NewInvalidRequestError("session id must not be empty")
	}
	var bundle ExportBundle
	if err := s.client.doJSON(ctx, http.MethodGet, "/v1/sessions/"+sessionID+"/export", nil, &bundle); err != nil {
		return nil, err
	}
	return &bundle, nil
}
