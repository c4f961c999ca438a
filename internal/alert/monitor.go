// Package alert maintains the regional alert state machine driven by the
// provider's warning bulletins.
package alert

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/couchcryptid/rainwatch/internal/domain"
	"github.com/couchcryptid/rainwatch/internal/observability"
	"github.com/couchcryptid/rainwatch/internal/registry"
	"github.com/jonboulle/clockwork"
)

// phenomenonHeavyRain is the bulletin category this engine reacts to.
const phenomenonHeavyRain = "HEAVY_RAIN"

// Monitor polls warning bulletins and maintains the IDLE/ACTIVE regional
// alert state. Single writer; State may be read concurrently.
type Monitor struct {
	provider domain.WeatherProvider
	resolver registry.Resolver
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu    sync.RWMutex
	state domain.RegionalAlertState
}

// NewMonitor creates a monitor starting in IDLE.
func NewMonitor(provider domain.WeatherProvider, resolver registry.Resolver, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Monitor {
	return &Monitor{
		provider: provider,
		resolver: resolver,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
		state:    domain.RegionalAlertState{Level: domain.AlertIdle},
	}
}

// State returns a copy of the current alert state.
func (m *Monitor) State() domain.RegionalAlertState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneState(m.state)
}

// CheckAndUpdate fetches the current bulletins and updates the alert state.
// changed is true only when the level flips between IDLE and ACTIVE. On a
// fetch failure the previous level and affected set are retained (fail-safe)
// and errored is true.
func (m *Monitor) CheckAndUpdate(ctx context.Context) (changed bool, state domain.RegionalAlertState, errored bool) {
	bulletins, err := m.provider.Bulletins(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.LastCheckedAt = m.clock.Now()

	if err != nil {
		m.state.ConsecutiveErrors++
		m.state.LastError = err.Error()
		m.metrics.AlertCheckErrors.Inc()
		m.logger.Warn("bulletin check failed, retaining previous alert state",
			"level", m.state.Level,
			"consecutive_errors", m.state.ConsecutiveErrors,
			"error", err,
		)
		return false, cloneState(m.state), true
	}

	affected := m.resolveAffected(bulletins)

	prevLevel := m.state.Level
	level := domain.AlertIdle
	if len(affected) > 0 {
		level = domain.AlertActive
	}

	m.state.Level = level
	m.state.AffectedRegionIDs = affected
	m.state.ConsecutiveErrors = 0
	m.state.LastError = ""

	if level == domain.AlertActive {
		m.metrics.AlertActive.Set(1)
	} else {
		m.metrics.AlertActive.Set(0)
	}

	changed = level != prevLevel
	if changed {
		m.logger.Info("alert level changed",
			"from", prevLevel, "to", level, "affected_regions", affected)
	}
	return changed, cloneState(m.state), false
}

// resolveAffected reduces the bulletin list to the affected region id set.
// Bulletins are issued independently per authority: only each authority's
// most recent bulletin counts, so one office's cancellation can never mask
// another office's active warning, and superseded warnings drop out.
func (m *Monitor) resolveAffected(bulletins []domain.Bulletin) []int {
	latest := make(map[string]domain.Bulletin)
	for _, b := range bulletins {
		if cur, ok := latest[b.Authority]; !ok || b.IssuedAt.After(cur.IssuedAt) {
			latest[b.Authority] = b
		}
	}

	ids := make(map[int]struct{})
	for _, b := range latest {
		if !qualifies(b) {
			continue
		}
		for _, name := range b.Regions {
			id, ok := m.resolver.ResolveRegion(name)
			if !ok {
				m.logger.Warn("unknown region name in bulletin",
					"authority", b.Authority, "region", name)
				continue
			}
			ids[id] = struct{}{}
		}
	}

	out := make([]int, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

// qualifies reports whether a bulletin activates regions: a currently issued
// rainfall watch or warning. Preliminary notices and cancellations do not.
func qualifies(b domain.Bulletin) bool {
	if b.Status != domain.BulletinIssued || b.Phenomenon != phenomenonHeavyRain {
		return false
	}
	return b.Level == domain.BulletinWatch || b.Level == domain.BulletinWarning
}

func cloneState(s domain.RegionalAlertState) domain.RegionalAlertState {
	out := s
	out.AffectedRegionIDs = append([]int(nil), s.AffectedRegionIDs...)
	return out
}
