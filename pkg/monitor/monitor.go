// Package monitor drives the lifecycle of one submitted scheduler job:
// poll status, detect the terminal transition, trigger artifact
// collection exactly once, and surface the result.
//
// A Monitor owns one job and one transport session; watching several jobs
// means running independent Monitor instances. The watch loop is strictly
// sequential (poll, parse, maybe-collect, wait) because the remote
// transport session is not assumed safe for concurrent reuse. The only
// suspension point is a cancellable timed wait - an external stop signal
// interrupts the wait rather than merely preventing the next poll.
package monitor

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/3leaps/gridharvest/pkg/collect"
	"github.com/3leaps/gridharvest/pkg/output"
	"github.com/3leaps/gridharvest/pkg/remote"
	"github.com/3leaps/gridharvest/pkg/scheduler"
)

// Config configures monitor behavior.
type Config struct {
	// Interval is the fixed polling interval.
	// Default: 30s.
	Interval time.Duration

	// MaxConsecutiveFailures bounds transport/timeout failures tolerated
	// in a row before the watch surfaces a fatal error.
	// Default: 5.
	MaxConsecutiveFailures int

	// RateLimit is the maximum remote status queries per second.
	// Zero means unlimited (the interval is then the only pacing).
	// Default: 0.
	RateLimit float64

	// SettleDelay is an extra wait between observing a terminal state and
	// collecting, giving the remote filesystem time to flush job output.
	// Default: 0.
	SettleDelay time.Duration
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() Config {
	return Config{
		Interval:               30 * time.Second,
		MaxConsecutiveFailures: 5,
	}
}

// Collector abstracts the collection subsystem. Satisfied by
// *collect.Collector.
type Collector interface {
	// Probe checks marker presence without downloading.
	Probe(ctx context.Context, jobID string) (collect.Outcome, error)

	// Collect runs a full collection.
	Collect(ctx context.Context, jobID, testID string) (*collect.Result, error)
}

// CommandRunner executes a remote command. Satisfied by *remote.Executor.
type CommandRunner interface {
	Execute(ctx context.Context, command string) (*remote.Result, error)
}

// WatchResult is the outcome of a completed watch.
type WatchResult struct {
	// Snapshot is the final status observation. Nil when the job left the
	// queue before any poll saw it and the outcome was reconciled from
	// marker files alone.
	Snapshot *scheduler.StatusRecord

	// State is the terminal state that ended the watch.
	State scheduler.State

	// Collection is the collection result, nil only if collection itself
	// failed (see the returned error).
	Collection *collect.Result
}

// Monitor watches one scheduler job until it reaches a terminal state.
type Monitor struct {
	runner    CommandRunner
	collector Collector
	jobID     string
	testID    string
	filter    scheduler.NameFilter
	cfg       Config

	logger *zap.Logger
	writer output.Writer
	limit  *rate.Limiter

	// snapshots holds the latest observation per job id. Only this
	// monitor's job is tracked today, but the map is the single place
	// poll history lives.
	snapshots map[string]*scheduler.StatusRecord

	// collected guards the exactly-once collection per job.
	collected map[string]bool
}

// New creates a monitor for one (jobID, testID) pair.
//
// Returns an error when either identifier is missing - configuration
// problems are rejected before any remote call is attempted.
func New(runner CommandRunner, collector Collector, jobID, testID string, cfg Config) (*Monitor, error) {
	jobID = strings.TrimSpace(jobID)
	testID = strings.TrimSpace(testID)
	if jobID == "" {
		return nil, errors.New("job_id is required")
	}
	if testID == "" {
		return nil, errors.New("test_id is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = DefaultConfig().MaxConsecutiveFailures
	}

	m := &Monitor{
		runner:    runner,
		collector: collector,
		jobID:     jobID,
		testID:    testID,
		cfg:       cfg,
		logger:    zap.NewNop(),
		writer:    output.Discard{},
		snapshots: make(map[string]*scheduler.StatusRecord),
		collected: make(map[string]bool),
	}
	if cfg.RateLimit > 0 {
		m.limit = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return m, nil
}

// WithLogger sets the structured logger. Returns the monitor for chaining.
func (m *Monitor) WithLogger(logger *zap.Logger) *Monitor {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// WithWriter sets the JSONL event writer. Returns the monitor for chaining.
func (m *Monitor) WithWriter(w output.Writer) *Monitor {
	if w != nil {
		m.writer = w
	}
	return m
}

// WithNameFilter restricts status-feed rows to jobs whose name passes the
// allowlist. Returns the monitor for chaining.
func (m *Monitor) WithNameFilter(f scheduler.NameFilter) *Monitor {
	m.filter = f
	return m
}

// LastSnapshot returns the most recent successful observation for the
// monitored job, nil if none exists yet.
func (m *Monitor) LastSnapshot() *scheduler.StatusRecord {
	return m.snapshots[m.jobID]
}

// CheckStatus performs a single poll and returns the current snapshot.
//
// A nil record with a nil error means the job is absent from the active
// queue - finished and purged, or transiently dropped; CheckStatus does
// not disambiguate (Watch does, via marker reconciliation).
func (m *Monitor) CheckStatus(ctx context.Context) (*scheduler.StatusRecord, error) {
	rec, err := m.poll(ctx)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		m.snapshots[m.jobID] = rec
	}
	return rec, nil
}

// Watch polls at the configured interval until the job reaches a terminal
// state or the context is cancelled.
//
// On the terminal transition the collector fires exactly once; repeated
// terminal observations never re-collect. Transport and timeout failures
// are reported and retried on the next scheduled poll; exceeding
// MaxConsecutiveFailures returns a *FatalError carrying the last
// successful snapshot.
func (m *Monitor) Watch(ctx context.Context) (*WatchResult, error) {
	consecutive := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if m.limit != nil {
			if err := m.limit.Wait(ctx); err != nil {
				return nil, err
			}
		}

		rec, err := m.poll(ctx)
		switch {
		case err != nil && isRetryable(err):
			consecutive++
			m.logger.Warn("poll failed",
				zap.String("job_id", m.jobID),
				zap.Int("consecutive", consecutive),
				zap.Error(err))
			m.writeError(ctx, err, consecutive)
			if consecutive > m.cfg.MaxConsecutiveFailures {
				return nil, &FatalError{
					JobID:               m.jobID,
					ConsecutiveFailures: consecutive,
					LastSnapshot:        m.LastSnapshot(),
					Err:                 err,
				}
			}
			if err := m.wait(ctx, m.cfg.Interval); err != nil {
				return nil, err
			}
			continue

		case err != nil:
			// Cancellation or an internal fault; not a transport retry case.
			return nil, err

		case rec == nil:
			// Job absent from the active queue. Disambiguate "finished and
			// purged" from "row transiently dropped" with one marker check.
			state, reconciled, rerr := m.reconcile(ctx)
			if rerr != nil {
				if isRetryable(rerr) {
					consecutive++
					m.writeError(ctx, rerr, consecutive)
					if consecutive > m.cfg.MaxConsecutiveFailures {
						return nil, &FatalError{
							JobID:               m.jobID,
							ConsecutiveFailures: consecutive,
							LastSnapshot:        m.LastSnapshot(),
							Err:                 rerr,
						}
					}
					if err := m.wait(ctx, m.cfg.Interval); err != nil {
						return nil, err
					}
					continue
				}
				return nil, rerr
			}
			consecutive = 0
			m.writeStatus(ctx, nil)
			if reconciled {
				m.logger.Info("job left the queue with a terminal marker",
					zap.String("job_id", m.jobID),
					zap.String("state", state.String()))
				return m.finish(ctx, state)
			}
			m.logger.Debug("job absent from queue, no marker yet",
				zap.String("job_id", m.jobID))

		default:
			consecutive = 0
			m.snapshots[m.jobID] = rec
			m.writeStatus(ctx, rec)
			m.logger.Info("poll",
				zap.String("job_id", m.jobID),
				zap.String("state", rec.State.String()),
				zap.String("elapsed", rec.Elapsed))

			if rec.State.Terminal() {
				return m.finish(ctx, rec.State)
			}
		}

		if err := m.wait(ctx, m.cfg.Interval); err != nil {
			return nil, err
		}
	}
}

// ForceCollect runs collection immediately, regardless of observed state.
// The exactly-once guard still applies within this monitor instance.
func (m *Monitor) ForceCollect(ctx context.Context) (*collect.Result, error) {
	return m.collectOnce(ctx)
}

// poll issues one status query and returns this job's record, nil when
// the job is absent from the feed.
func (m *Monitor) poll(ctx context.Context) (*scheduler.StatusRecord, error) {
	res, err := m.runner.Execute(ctx, scheduler.QueueCommand(m.jobID))
	if err != nil {
		return nil, err
	}
	if !res.Ok() {
		// squeue exits non-zero for unknown job ids once they age out of
		// the queue; treat it like an absent row, not a failure.
		return nil, nil
	}
	records := scheduler.ParseQueue(res.Stdout, m.filter)
	return scheduler.FindJob(records, m.jobID), nil
}

// reconcile maps marker presence to a terminal state for a job missing
// from the queue. reconciled is false when no marker exists yet.
func (m *Monitor) reconcile(ctx context.Context) (scheduler.State, bool, error) {
	outcome, err := m.collector.Probe(ctx, m.jobID)
	if err != nil {
		return scheduler.StateUnknown, false, err
	}
	switch outcome {
	case collect.OutcomeSuccess:
		return scheduler.StateCompleted, true, nil
	case collect.OutcomeFailed:
		return scheduler.StateFailed, true, nil
	default:
		return scheduler.StateUnknown, false, nil
	}
}

// finish applies the settle delay, runs the exactly-once collection, and
// assembles the watch result.
func (m *Monitor) finish(ctx context.Context, state scheduler.State) (*WatchResult, error) {
	if m.cfg.SettleDelay > 0 {
		if err := m.wait(ctx, m.cfg.SettleDelay); err != nil {
			return nil, err
		}
	}

	result := &WatchResult{Snapshot: m.LastSnapshot(), State: state}
	col, err := m.collectOnce(ctx)
	if err != nil {
		return result, err
	}
	result.Collection = col
	return result, nil
}

// collectOnce fires the collector at most once per job id.
func (m *Monitor) collectOnce(ctx context.Context) (*collect.Result, error) {
	if m.collected[m.jobID] {
		m.logger.Debug("collection already fired", zap.String("job_id", m.jobID))
		return nil, nil
	}
	m.collected[m.jobID] = true

	col, err := m.collector.Collect(ctx, m.jobID, m.testID)
	if err != nil {
		// Leave the guard set: a failed collection is retried explicitly
		// by the operator (collect command), not implicitly by the loop.
		return nil, err
	}

	rec := &output.CollectionRecord{
		Outcome:        string(col.Outcome),
		LocalDir:       col.LocalDir,
		TransferErrors: col.TransferErrors,
		Details:        col.Details,
	}
	for _, f := range col.Files {
		rec.Files = append(rec.Files, f.Name)
	}
	if err := m.writer.WriteCollection(ctx, rec); err != nil {
		m.logger.Warn("failed to write collection record", zap.Error(err))
	}
	return col, nil
}

// wait sleeps for d or until the context is cancelled, whichever comes
// first. Cancellation interrupts the wait immediately.
func (m *Monitor) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// writeStatus emits a status record; a nil rec reports an off-queue poll.
func (m *Monitor) writeStatus(ctx context.Context, rec *scheduler.StatusRecord) {
	var sr output.StatusRecord
	if rec != nil {
		sr = output.StatusRecord{
			State:   rec.State.String(),
			Elapsed: rec.Elapsed,
			Nodes:   rec.Nodes,
			Reason:  rec.Reason,
			InQueue: true,
		}
	} else {
		sr = output.StatusRecord{State: scheduler.StateUnknown.String(), InQueue: false}
	}
	// Best effort - the event stream never fails the watch.
	_ = m.writer.WriteStatus(ctx, &sr)
}

// writeError emits an error record for a failed poll.
func (m *Monitor) writeError(ctx context.Context, err error, consecutive int) {
	code := output.ErrCodeInternal
	switch {
	case remote.IsTimeout(err):
		code = output.ErrCodeTimeout
	case remote.IsTransport(err):
		code = output.ErrCodeTransport
	}
	_ = m.writer.WriteError(ctx, &output.ErrorRecord{
		Code:        code,
		Message:     err.Error(),
		Consecutive: consecutive,
	})
}

// isRetryable reports whether a poll failure should be absorbed by the
// polling schedule rather than aborting the watch.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return remote.IsTimeout(err) || remote.IsTransport(err)
}
