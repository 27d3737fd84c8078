package types

import "time"

// CaptureItem is one auxiliary visual capture (screen or camera snapshot)
// tied to the session. Ordered by arrival.
type CaptureItem struct {
	ID string `json:"id"`
	// ImageRef is an opaque reference to the stored image (URL or data URI).
	ImageRef  string    `json:"image_ref"`
	Timestamp time.Time `json:"timestamp"`
}

// UsageTotals is the billing service's authoritative view of a session.
type UsageTotals struct {
	TotalSeconds  int64  `json:"total_seconds"`
	BilledMinutes int64  `json:"billed_minutes"`
	Status        Status `json:"status"`
}
