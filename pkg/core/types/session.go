// Package types defines the shared data model of the live assistance engine.
package types

import (
	"time"

	"github.com/liveassist-ai/liveassist-go/pkg/core"
)

// Status is the scheduling/execution lifecycle state of a session record.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusApproved   Status = "approved"
	StatusRejected   Status = "rejected"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusExpired    Status = "expired"
)

// statusEdges enumerates the legal transitions.
// SCHEDULED -> {APPROVED, REJECTED}; APPROVED -> IN_PROGRESS;
// IN_PROGRESS -> {COMPLETED, EXPIRED}.
var statusEdges = map[Status][]Status{
	StatusScheduled:  {StatusApproved, StatusRejected},
	StatusApproved:   {StatusInProgress},
	StatusInProgress: {StatusCompleted, StatusExpired},
}

// IsTerminal reports whether s admits no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusRejected, StatusCompleted, StatusExpired:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusApproved, StatusRejected,
		StatusInProgress, StatusCompleted, StatusExpired:
		return true
	default:
		return false
	}
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	for _, next := range statusEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Role tags the engine's relationship to the session.
type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
	// RoleSolo is a single-party console session with no remote peer.
	RoleSolo Role = "solo"
)

// Session identifies one live assistance engagement.
type Session struct {
	ID            string    `json:"id"`
	JoinCode      string    `json:"join_code,omitempty"`
	Role          Role      `json:"role"`
	Status        Status    `json:"status"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	DurationMin   int       `json:"duration_min"`
	UsedSeconds   int64     `json:"used_seconds"`
	BilledMinutes int64     `json:"billed_minutes"`
}

// Transition moves the session to next, rejecting illegal edges.
// Transitions out of a terminal state always fail.
func (s *Session) Transition(next Status) error {
	if s.Status == next {
		return nil
	}
	if !next.Valid() {
		return core.NewInvalidRequestError("unknown session status: " + string(next))
	}
	if !CanTransition(s.Status, next) {
		return core.NewInvalidRequestError(
			"illegal status transition " + string(s.Status) + " -> " + string(next))
	}
	s.Status = next
	return nil
}
