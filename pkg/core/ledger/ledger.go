// Package ledger accounts elapsed seconds of an active session and
// reconciles them with the remote billing service.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/liveassist-ai/liveassist-go/pkg/core"
	"github.com/liveassist-ai/liveassist-go/pkg/core/types"
)

const (
	// DefaultFlushInterval is the periodic reconciliation cadence.
	DefaultFlushInterval = 30 * time.Second
	// DefaultGuardWindow collapses closely-spaced unforced flushes into one
	// network call.
	DefaultGuardWindow = 5 * time.Second
)

// Reporter is the remote billing endpoint. The returned totals are
// authoritative; the local delta sum never is.
type Reporter interface {
	ReportUsage(ctx context.Context, sessionID string, seconds int64, finalize bool) (types.UsageTotals, error)
}

// Config tunes a Ledger. Zero values take the defaults above.
type Config struct {
	FlushInterval time.Duration
	GuardWindow   time.Duration
	Logger        *slog.Logger
	// OnTotals observes each authoritative total applied from the remote
	// side. Optional.
	OnTotals func(types.UsageTotals)
}

// Ledger tracks one session's usage. Ticking happens on a cron schedule
// owned by the ledger; Start and the forced-flush paths are driven by the
// session status machine.
type Ledger struct {
	sessionID string
	reporter  Reporter
	interval  time.Duration
	guard     time.Duration
	logger    *slog.Logger
	onTotals  func(types.UsageTotals)
	now       func() time.Time

	// flushMu serializes report calls: an overlapping flush waits and
	// recomputes its delta from the advanced lastFlushAt instead of
	// re-reporting an interval already in flight.
	flushMu sync.Mutex

	mu            sync.Mutex
	cron          *cron.Cron
	started       bool
	stopped       bool
	finalized     bool
	lastFlushAt   time.Time
	lastCallAt    time.Time
	totalSeconds  int64
	billedMinutes int64
}

// New creates a ledger for one session.
func New(sessionID string, reporter Reporter, cfg Config) *Ledger {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.GuardWindow <= 0 {
		cfg.GuardWindow = DefaultGuardWindow
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Ledger{
		sessionID: sessionID,
		reporter:  reporter,
		interval:  cfg.FlushInterval,
		guard:     cfg.GuardWindow,
		logger:    cfg.Logger,
		onTotals:  cfg.OnTotals,
		now:       time.Now,
	}
}

// Start begins accounting. Called when the session enters in-progress;
// calling it again or after a finalize is a no-op.
func (l *Ledger) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started || l.stopped {
		return
	}
	l.started = true
	l.lastFlushAt = l.now()

	l.cron = cron.New()
	_, err := l.cron.AddFunc(fmt.Sprintf("@every %s", l.interval), func() {
		if _, err := l.Flush(context.Background(), false); err != nil {
			l.logger.Warn("usage flush failed", "session_id", l.sessionID, "error", err)
		}
	})
	if err != nil {
		l.logger.Error("usage flush schedule rejected", "session_id", l.sessionID, "error", err)
		return
	}
	l.cron.Start()
}

// Started reports whether the ledger ever began accounting.
func (l *Ledger) Started() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.started
}

// Flush reconciles elapsed seconds with the remote ledger. Unforced flushes
// inside the guard window, or with no elapsed time, are no-ops. A reporting
// failure stops the periodic schedule but keeps the unflushed interval, so a
// later forced flush can still retry it.
func (l *Ledger) Flush(ctx context.Context, force bool) (types.UsageTotals, error) {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	l.mu.Lock()
	if !l.started || l.stopped {
		totals := l.totalsLocked()
		l.mu.Unlock()
		return totals, nil
	}
	now := l.now()
	if !force && !l.lastCallAt.IsZero() && now.Sub(l.lastCallAt) < l.guard {
		totals := l.totalsLocked()
		l.mu.Unlock()
		return totals, nil
	}
	delta := int64(now.Sub(l.lastFlushAt) / time.Second)
	if delta <= 0 && !force {
		totals := l.totalsLocked()
		l.mu.Unlock()
		return totals, nil
	}
	if delta < 0 {
		delta = 0
	}
	l.lastCallAt = now
	l.mu.Unlock()

	totals, err := l.reporter.ReportUsage(ctx, l.sessionID, delta, force)
	if err != nil {
		l.stopSchedule()
		return types.UsageTotals{}, core.NewUsageReportError(err.Error())
	}

	l.mu.Lock()
	l.lastFlushAt = now
	l.totalSeconds = totals.TotalSeconds
	l.billedMinutes = totals.BilledMinutes
	l.mu.Unlock()

	if l.onTotals != nil {
		l.onTotals(totals)
	}
	return totals, nil
}

// Finalize issues the at-most-once forced flush and stops the ledger.
// Safe to call multiple times and from any exit path; only the first call
// after Start reports. The schedule stops even when the report fails.
func (l *Ledger) Finalize(ctx context.Context) error {
	l.mu.Lock()
	if l.finalized || !l.started {
		l.stopped = true
		l.mu.Unlock()
		l.stopSchedule()
		return nil
	}
	l.finalized = true
	l.mu.Unlock()

	_, err := l.Flush(ctx, true)

	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
	l.stopSchedule()
	return err
}

// Totals returns the last authoritative figures applied from the remote side.
func (l *Ledger) Totals() types.UsageTotals {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalsLocked()
}

func (l *Ledger) totalsLocked() types.UsageTotals {
	return types.UsageTotals{
		TotalSeconds:  l.totalSeconds,
		BilledMinutes: l.billedMinutes,
	}
}

func (l *Ledger) stopSchedule() {
	l.mu.Lock()
	c := l.cron
	l.cron = nil
	l.mu.Unlock()
	if c != nil {
		c.Stop()
	}
}
