package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/liveassist-ai/liveassist-go/pkg/core"
	"github.com/liveassist-ai/liveassist-go/pkg/core/types"
)

type reportCall struct {
	seconds  int64
	finalize bool
}

type fakeReporter struct {
	mu     sync.Mutex
	calls  []reportCall
	totals types.UsageTotals
	err    error
}

func (r *fakeReporter) ReportUsage(ctx context.Context, sessionID string, seconds int64, finalize bool) (types.UsageTotals, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, reportCall{seconds: seconds, finalize: finalize})
	if r.err != nil {
		return types.UsageTotals{}, r.err
	}
	return r.totals, nil
}

func (r *fakeReporter) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *fakeReporter) lastCall() reportCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

// testLedger wires a ledger to a manual clock.
func testLedger(t *testing.T, reporter Reporter, cfg Config) (*Ledger, *time.Time) {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	l := New("sess_test", reporter, cfg)
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	t.Cleanup(func() { _ = l.Finalize(context.Background()) })
	return l, &now
}

func TestFlush_ReportsElapsedSecondsAndAppliesRemoteTotals(t *testing.T) {
	t.Parallel()

	reporter := &fakeReporter{totals: types.UsageTotals{TotalSeconds: 300, BilledMinutes: 5}}
	l, now := testLedger(t, reporter, Config{})
	l.Start()

	*now = now.Add(31 * time.Second)
	totals, err := l.Flush(context.Background(), false)
	require.NoError(t, err)

	require.Equal(t, 1, reporter.callCount())
	assert.Equal(t, int64(31), reporter.lastCall().seconds)
	assert.False(t, reporter.lastCall().finalize)

	// Remote totals win even though only 31 local seconds elapsed.
	assert.Equal(t, int64(300), totals.TotalSeconds)
	assert.Equal(t, int64(5), totals.BilledMinutes)
	assert.Equal(t, totals, l.Totals())
}

func TestFlush_GuardWindowCollapsesBursts(t *testing.T) {
	t.Parallel()

	reporter := &fakeReporter{}
	l, now := testLedger(t, reporter, Config{})
	l.Start()

	*now = now.Add(10 * time.Second)
	_, err := l.Flush(context.Background(), false)
	require.NoError(t, err)

	*now = now.Add(2 * time.Second)
	_, err = l.Flush(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, reporter.callCount())

	// A forced flush ignores the guard window.
	*now = now.Add(1 * time.Second)
	_, err = l.Flush(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, reporter.callCount())
}

func TestFlush_NoElapsedTimeIsNoop(t *testing.T) {
	t.Parallel()

	reporter := &fakeReporter{}
	l, _ := testLedger(t, reporter, Config{})
	l.Start()

	_, err := l.Flush(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 0, reporter.callCount())
}

func TestFlush_BeforeStartIsNoop(t *testing.T) {
	t.Parallel()

	reporter := &fakeReporter{}
	l, _ := testLedger(t, reporter, Config{})

	totals, err := l.Flush(context.Background(), true)
	require.NoError(t, err)
	assert.Zero(t, totals.TotalSeconds)
	assert.Equal(t, 0, reporter.callCount())
}

func TestFlush_FailureKeepsUnflushedInterval(t *testing.T) {
	t.Parallel()

	reporter := &fakeReporter{err: errors.New("gateway timeout")}
	l, now := testLedger(t, reporter, Config{})
	l.Start()

	*now = now.Add(30 * time.Second)
	_, err := l.Flush(context.Background(), false)
	require.Error(t, err)
	var cerr *core.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, core.ErrUsageReport, cerr.Type)

	// The failed interval is retried in full on the next forced flush.
	reporter.mu.Lock()
	reporter.err = nil
	reporter.mu.Unlock()

	*now = now.Add(10 * time.Second)
	_, err = l.Flush(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, int64(40), reporter.lastCall().seconds)
}

// gatedReporter blocks its first report until released, so a second flush
// can be issued while the first is still in flight.
type gatedReporter struct {
	fakeReporter
	entered chan struct{}
	release chan struct{}
	gate    sync.Once
}

func (r *gatedReporter) ReportUsage(ctx context.Context, sessionID string, seconds int64, finalize bool) (types.UsageTotals, error) {
	r.gate.Do(func() {
		close(r.entered)
		<-r.release
	})
	return r.fakeReporter.ReportUsage(ctx, sessionID, seconds, finalize)
}

func TestFlush_OverlappingFinalizeDoesNotDoubleReport(t *testing.T) {
	t.Parallel()

	reporter := &gatedReporter{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	l, now := testLedger(t, reporter, Config{})
	l.Start()
	*now = now.Add(31 * time.Second)

	flushErr := make(chan error, 1)
	go func() {
		_, err := l.Flush(context.Background(), false)
		flushErr <- err
	}()
	<-reporter.entered

	// Finalize while the periodic flush holds its 31-second interval in
	// flight. It must wait it out, not re-report the same seconds.
	finalizeErr := make(chan error, 1)
	go func() { finalizeErr <- l.Finalize(context.Background()) }()
	time.Sleep(50 * time.Millisecond)
	close(reporter.release)

	require.NoError(t, <-flushErr)
	require.NoError(t, <-finalizeErr)

	reporter.mu.Lock()
	defer reporter.mu.Unlock()
	require.Len(t, reporter.calls, 2)
	var sum int64
	for _, call := range reporter.calls {
		sum += call.seconds
	}
	assert.Equal(t, int64(31), sum)
	assert.True(t, reporter.calls[1].finalize)
}

func TestFinalize_AtMostOnce(t *testing.T) {
	t.Parallel()

	reporter := &fakeReporter{}
	l, now := testLedger(t, reporter, Config{})
	l.Start()

	*now = now.Add(45 * time.Second)
	require.NoError(t, l.Finalize(context.Background()))
	require.Equal(t, 1, reporter.callCount())
	assert.True(t, reporter.lastCall().finalize)
	assert.Equal(t, int64(45), reporter.lastCall().seconds)

	// Second finalize and any later flush are silent no-ops.
	require.NoError(t, l.Finalize(context.Background()))
	*now = now.Add(1 * time.Minute)
	_, err := l.Flush(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, reporter.callCount())
}

func TestFinalize_WithoutStartReportsNothing(t *testing.T) {
	t.Parallel()

	reporter := &fakeReporter{}
	l, _ := testLedger(t, reporter, Config{})

	require.NoError(t, l.Finalize(context.Background()))
	assert.Equal(t, 0, reporter.callCount())

	// A start after finalize must not revive accounting.
	l.Start()
	assert.False(t, l.Started())
}

func TestOnTotals_ObservesEveryAppliedTotal(t *testing.T) {
	t.Parallel()

	var observed []types.UsageTotals
	var mu sync.Mutex
	reporter := &fakeReporter{totals: types.UsageTotals{TotalSeconds: 60, BilledMinutes: 1}}
	l, now := testLedger(t, reporter, Config{
		OnTotals: func(totals types.UsageTotals) {
			mu.Lock()
			observed = append(observed, totals)
			mu.Unlock()
		},
	})
	l.Start()

	*now = now.Add(time.Minute)
	_, err := l.Flush(context.Background(), false)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, observed, 1)
	assert.Equal(t, int64(60), observed[0].TotalSeconds)
}
