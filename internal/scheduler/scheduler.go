// Package scheduler owns the timers. It runs the bulletin check on its own
// cadence, fires the two polling tiers, and guarantees with a run lock that
// at most one polling cycle is ever in flight.
package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/rainwatch/internal/alert"
	"github.com/couchcryptid/rainwatch/internal/batch"
	"github.com/couchcryptid/rainwatch/internal/domain"
	"github.com/couchcryptid/rainwatch/internal/observability"
	"github.com/couchcryptid/rainwatch/internal/registry"
	"github.com/jonboulle/clockwork"
)

const (
	TierFast = "fast"
	TierSlow = "slow"
)

// Options carries the scheduler's cadences.
type Options struct {
	FastInterval        time.Duration
	SlowInterval        time.Duration
	AlertActiveInterval time.Duration
	AlertIdleInterval   time.Duration
	RetentionWindow     time.Duration
}

// Scheduler drives the engine: a bulletin check loop that flips the regional
// alert state, a slow tier covering the quiet regions, and a fast tier that
// exists only while an alert is active.
type Scheduler struct {
	opts    Options
	regions *registry.Registry
	batcher *batch.Batcher
	monitor *alert.Monitor
	store   domain.ReadingStore
	bus     domain.Broadcaster

	running atomic.Bool // run lock shared by both tiers

	nextAlert time.Time
	nextSlow  time.Time
	nextFast  time.Time
	fastArmed bool

	// onCycle observes completed cycle reports. Used by tests.
	onCycle func(batch.CycleReport)

	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

func New(opts Options, regions *registry.Registry, batcher *batch.Batcher, monitor *alert.Monitor, store domain.ReadingStore, bus domain.Broadcaster, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	return &Scheduler{
		opts:    opts,
		regions: regions,
		batcher: batcher,
		monitor: monitor,
		store:   store,
		bus:     bus,
		clock:   clock,
		logger:  logger,
		metrics: metrics,
	}
}

// OnCycle registers a hook invoked after every completed cycle. Must be set
// before Run.
func (s *Scheduler) OnCycle(fn func(batch.CycleReport)) {
	s.onCycle = fn
}

// Run blocks until the context is cancelled. The first bulletin check and
// the first slow cycle fire immediately.
func (s *Scheduler) Run(ctx context.Context) error {
	now := s.clock.Now()
	s.nextAlert = now
	s.nextSlow = now

	s.logger.Info("scheduler started",
		"fast_interval", s.opts.FastInterval,
		"slow_interval", s.opts.SlowInterval,
		"alert_active_interval", s.opts.AlertActiveInterval,
		"alert_idle_interval", s.opts.AlertIdleInterval,
	)

	for {
		if wait := s.nextWake().Sub(s.clock.Now()); wait > 0 {
			timer := s.clock.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.Chan():
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}

		now := s.clock.Now()
		if !s.nextAlert.After(now) {
			s.checkAlert(ctx)
		}
		if !s.nextSlow.After(now) {
			s.nextSlow = now.Add(s.opts.SlowInterval)
			go s.runCycle(ctx, TierSlow)
		}
		if s.fastArmed && !s.nextFast.After(now) {
			s.nextFast = now.Add(s.opts.FastInterval)
			go s.runCycle(ctx, TierFast)
		}
	}
}

// nextWake is the earliest pending fire time across the three timers.
func (s *Scheduler) nextWake() time.Time {
	next := s.nextAlert
	if s.nextSlow.Before(next) {
		next = s.nextSlow
	}
	if s.fastArmed && s.nextFast.Before(next) {
		next = s.nextFast
	}
	return next
}

// checkAlert runs one bulletin check and reschedules itself. A failed check
// retries on an exponential backoff that never exceeds the idle cadence. On
// a flip to ACTIVE the fast tier starts immediately; on a flip back to IDLE
// it stops.
func (s *Scheduler) checkAlert(ctx context.Context) {
	changed, state, errored := s.monitor.CheckAndUpdate(ctx)
	now := s.clock.Now()

	switch {
	case errored:
		s.nextAlert = now.Add(s.alertBackoff(state.ConsecutiveErrors))
	case state.Level == domain.AlertActive:
		s.nextAlert = now.Add(s.opts.AlertActiveInterval)
	default:
		s.nextAlert = now.Add(s.opts.AlertIdleInterval)
	}

	if !changed {
		return
	}

	if state.Level == domain.AlertActive {
		s.fastArmed = true
		s.nextFast = now
	} else {
		s.fastArmed = false
	}

	if err := s.bus.EmitAlertState(ctx, state); err != nil {
		s.logger.Warn("alert state broadcast failed", "error", err)
	}
}

// alertBackoff doubles the active cadence per consecutive failure, capped at
// the idle cadence.
func (s *Scheduler) alertBackoff(errors int) time.Duration {
	backoff := s.opts.AlertActiveInterval
	for i := 1; i < errors; i++ {
		backoff *= 2
		if backoff >= s.opts.AlertIdleInterval {
			return s.opts.AlertIdleInterval
		}
	}
	return min(backoff, s.opts.AlertIdleInterval)
}

// runCycle executes one polling cycle under the run lock. When the lock is
// held by another cycle this invocation is skipped; the tier's next fire is
// already scheduled, so a skip only delays coverage by one interval.
func (s *Scheduler) runCycle(ctx context.Context, tier string) {
	if !s.running.CompareAndSwap(false, true) {
		s.metrics.CyclesSkipped.WithLabelValues(tier).Inc()
		s.logger.Info("cycle skipped, previous cycle still running", "tier", tier)
		return
	}
	defer s.running.Store(false)

	stations := s.scopeFor(tier)
	if len(stations) == 0 {
		return
	}

	report := s.batcher.ProcessStations(ctx, tier, stations)
	s.metrics.CyclesRun.WithLabelValues(tier).Inc()
	s.metrics.CycleDuration.WithLabelValues(tier).Observe(report.Elapsed.Seconds())

	s.logger.Info("cycle complete",
		"tier", tier,
		"stations", report.Stations,
		"cells", report.Cells,
		"realtime_calls", report.RealtimeCalls,
		"forecast_calls", report.ForecastCalls,
		"alarms", len(report.Alarms),
		"elapsed", report.Elapsed,
	)

	s.broadcast(ctx, report)

	if tier == TierSlow {
		if deleted, err := s.store.PruneOlderThan(ctx, s.opts.RetentionWindow); err != nil {
			s.logger.Warn("prune failed", "error", err)
		} else if deleted > 0 {
			s.logger.Debug("pruned old readings", "deleted", deleted)
		}
	}

	if s.onCycle != nil {
		s.onCycle(report)
	}
}

// scopeFor selects the station set for a tier from the current alert state.
// The fast tier covers the affected regions. The slow tier covers everything
// else, widening to all stations while the state is IDLE or the last
// bulletin check failed.
func (s *Scheduler) scopeFor(tier string) []domain.Station {
	state := s.monitor.State()

	if tier == TierFast {
		return s.regions.StationsByRegions(state.AffectedRegionIDs)
	}

	if state.Level == domain.AlertActive && state.ConsecutiveErrors == 0 {
		return s.regions.StationsExcludingRegions(state.AffectedRegionIDs)
	}
	return s.regions.AllStations()
}

func (s *Scheduler) broadcast(ctx context.Context, report batch.CycleReport) {
	for _, event := range report.Alarms {
		if err := s.bus.EmitAlarm(ctx, event); err != nil {
			s.logger.Warn("alarm broadcast failed", "station", event.StationID, "error", err)
		}
	}

	counts := make(map[int]int)
	for _, event := range report.Alarms {
		counts[event.RegionID]++
	}
	if err := s.bus.EmitRegionalCounts(ctx, counts); err != nil {
		s.logger.Warn("regional count broadcast failed", "error", err)
	}
}
