// Package evaluate turns one station's resolved readings into an alarm
// decision. Realtime values come from an ordered chain of resolvers of
// decreasing fidelity; every outcome is persisted for display queries.
package evaluate

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"

	"github.com/couchcryptid/rainwatch/internal/domain"
	"github.com/couchcryptid/rainwatch/internal/observability"
	"github.com/jonboulle/clockwork"
)

// snapshotMatchToleranceKm bounds the nearest-neighbor match between a
// monitored station and the national AWS snapshot.
const snapshotMatchToleranceKm = 7.5

// Preloaded carries cell data the batcher already fetched, so evaluation
// never re-resolves the projection or re-fetches per station.
type Preloaded struct {
	Cell    domain.GridCell
	Nowcast *domain.Nowcast // nil when the cell fetch failed this cycle
}

// Result is one station's evaluation outcome.
type Result struct {
	Realtime15m float64
	ForecastMM  float64
	Alarm       bool
}

// resolver attempts to produce a realtime 15-minute rainfall value for a
// station. Resolvers are tried in priority order; the first hit wins.
type resolver func(ctx context.Context, st domain.Station, pre Preloaded) (float64, bool)

// Evaluator applies the source-fallback chain and the compound alarm
// condition to one station at a time.
type Evaluator struct {
	provider          domain.WeatherProvider
	store             domain.ReadingStore
	condition         ConditionFunc
	realtimeThreshold float64
	synthetic         bool // enable the last-resort synthetic resolver

	caches   *cycleCaches
	baseline *BaselineCache

	resolvers []resolver

	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates an evaluator. synthetic must be false in production; it admits
// the generated last-resort resolver used in mock mode.
func New(provider domain.WeatherProvider, store domain.ReadingStore, condition ConditionFunc, realtimeThresholdMM float64, synthetic bool, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Evaluator {
	e := &Evaluator{
		provider:          provider,
		store:             store,
		condition:         condition,
		realtimeThreshold: realtimeThresholdMM,
		synthetic:         synthetic,
		caches:            newCycleCaches(),
		baseline:          NewBaselineCache(),
		clock:             clock,
		logger:            logger,
		metrics:           metrics,
	}
	e.resolvers = []resolver{
		e.resolveFromSnapshot,
		e.resolveFromNowcastDelta,
		e.resolveSynthetic,
	}
	return e
}

// BeginCycle clears the per-cycle caches. The batcher calls it exactly once
// at the start of every cycle.
func (e *Evaluator) BeginCycle() {
	e.caches.reset()
}

// CycleStats reports the external calls made since BeginCycle.
func (e *Evaluator) CycleStats() (realtimeCalls, forecastCalls int) {
	e.caches.mu.Lock()
	defer e.caches.mu.Unlock()
	return e.caches.realtimeCalls, e.caches.forecastCalls
}

// CellNowcast returns the cell's nowcast, fetching at most once per cycle.
// A failed fetch is cached as absent so retries wait for the next cycle.
func (e *Evaluator) CellNowcast(ctx context.Context, cell domain.GridCell) (*domain.Nowcast, error) {
	e.caches.mu.Lock()
	if nc, ok := e.caches.nowcast[cell]; ok {
		e.caches.mu.Unlock()
		if nc == nil {
			return nil, fmt.Errorf("nowcast for cell (%d,%d): %w", cell.NX, cell.NY, domain.ErrNoData)
		}
		return nc, nil
	}
	e.caches.realtimeCalls++
	e.caches.mu.Unlock()

	nc, err := e.provider.Nowcast(ctx, cell)
	e.caches.mu.Lock()
	defer e.caches.mu.Unlock()
	if err != nil {
		e.caches.nowcast[cell] = nil
		return nil, err
	}
	e.caches.nowcast[cell] = &nc
	return &nc, nil
}

// SetBaseline records a cell's accumulation for the next cycle's delta. The
// batcher calls it only after the cell's stations have all been evaluated,
// so no station ever sees its own cycle's value as its baseline.
func (e *Evaluator) SetBaseline(cell domain.GridCell, accum float64) {
	e.baseline.Set(cell, accum)
}

// Evaluate resolves the station's realtime value, applies the two-stage
// alarm condition, and persists the reading. All upstream failures degrade
// to zero values; an absent or failed source never raises an alarm.
func (e *Evaluator) Evaluate(ctx context.Context, st domain.Station, pre Preloaded) Result {
	if pre.Cell == (domain.GridCell{}) {
		pre.Cell = domain.CellFor(st.Lat, st.Lon)
	}
	e.metrics.StationsEvaluated.Inc()

	realtime := e.resolveRealtime(ctx, st, pre)

	// Condition 1: below the realtime threshold there is nothing to alarm
	// on. Persist a zero forecast so a stale nonzero forecast cannot linger
	// once rain-triggered evaluation stops, and skip the forecast call.
	if realtime <= e.realtimeThreshold {
		e.persist(ctx, st, realtime, 0)
		return Result{Realtime15m: realtime}
	}

	forecast := e.resolveForecast(ctx, pre)

	// Condition 2: the configured compound rule makes the final call.
	alarm := e.condition(realtime, forecast)

	e.persist(ctx, st, realtime, forecast)
	return Result{Realtime15m: realtime, ForecastMM: forecast, Alarm: alarm}
}

func (e *Evaluator) resolveRealtime(ctx context.Context, st domain.Station, pre Preloaded) float64 {
	for _, resolve := range e.resolvers {
		if v, ok := resolve(ctx, st, pre); ok {
			return v
		}
	}
	return 0
}

// resolveFromSnapshot matches the station against the national AWS snapshot,
// by identifier first, then by nearest neighbor within the distance
// tolerance. Highest fidelity source; the snapshot is fetched once per cycle.
func (e *Evaluator) resolveFromSnapshot(ctx context.Context, st domain.Station, _ Preloaded) (float64, bool) {
	snapshot := e.snapshot(ctx)

	for _, obs := range snapshot {
		if obs.StationID == st.ID {
			return obs.Rain15m, true
		}
	}

	best := -1
	bestDist := snapshotMatchToleranceKm
	for i, obs := range snapshot {
		if d := domain.DistanceKm(st.Lat, st.Lon, obs.Lat, obs.Lon); d <= bestDist {
			best, bestDist = i, d
		}
	}
	if best >= 0 {
		return snapshot[best].Rain15m, true
	}
	return 0, false
}

// resolveFromNowcastDelta derives a short-interval value from the nowcast's
// rolling hourly accumulation against the previous cycle's baseline. Without
// an established baseline the delta is zero: never alarm on the first sight
// of a cell.
func (e *Evaluator) resolveFromNowcastDelta(_ context.Context, _ domain.Station, pre Preloaded) (float64, bool) {
	if pre.Nowcast == nil {
		return 0, false
	}
	if pre.Nowcast.PrecipType == domain.PrecipNone {
		// Dry right now: residual accumulation is stale, read as zero.
		return 0, true
	}

	base, ok := e.baseline.Get(pre.Cell)
	if !ok {
		return 0, true
	}
	return max(0, pre.Nowcast.Accum1h-base), true
}

// resolveSynthetic generates a stable pseudo value per station and hour.
// Admitted only outside production mode.
func (e *Evaluator) resolveSynthetic(_ context.Context, st domain.Station, _ Preloaded) (float64, bool) {
	if !e.synthetic {
		return 0, false
	}
	h := fnv.New64a()
	fmt.Fprintf(h, "synthetic|%s|%d", st.ID, e.clock.Now().Unix()/3600)
	return float64(h.Sum64()%300) / 10, true
}

// resolveForecast returns the cell's forecast in mm, fetched at most once
// per cycle per cell. A dry precipitation type overrides a nonzero figure;
// a failed fetch reads as zero.
func (e *Evaluator) resolveForecast(ctx context.Context, pre Preloaded) float64 {
	if pre.Nowcast != nil && pre.Nowcast.PrecipType == domain.PrecipNone {
		return 0
	}

	e.caches.mu.Lock()
	if mm, ok := e.caches.forecast[pre.Cell]; ok {
		e.caches.mu.Unlock()
		return mm
	}
	e.caches.forecastCalls++
	e.caches.mu.Unlock()

	mm, err := e.provider.Forecast(ctx, pre.Cell)
	if err != nil {
		e.logger.Warn("forecast fetch failed, treating as zero",
			"cell_nx", pre.Cell.NX, "cell_ny", pre.Cell.NY, "error", err)
		mm = 0
	}

	e.caches.mu.Lock()
	e.caches.forecast[pre.Cell] = mm
	e.caches.mu.Unlock()
	return mm
}

// snapshot returns the national AWS snapshot, fetching it at most once per
// cycle. A failed fetch caches an empty snapshot for the rest of the cycle.
func (e *Evaluator) snapshot(ctx context.Context) []domain.StationObservation {
	e.caches.mu.Lock()
	if e.caches.snapshotLoaded {
		defer e.caches.mu.Unlock()
		return e.caches.snapshot
	}
	e.caches.realtimeCalls++
	e.caches.mu.Unlock()

	obs, err := e.provider.StationRainfall(ctx)
	if err != nil {
		e.logger.Warn("station snapshot fetch failed for this cycle", "error", err)
		obs = nil
	}

	e.caches.mu.Lock()
	defer e.caches.mu.Unlock()
	e.caches.snapshotLoaded = true
	e.caches.snapshot = obs
	return obs
}

func (e *Evaluator) persist(ctx context.Context, st domain.Station, realtime, forecast float64) {
	now := e.clock.Now()
	if err := e.store.InsertReading(ctx, domain.Reading{
		StationID:   st.ID,
		Realtime15m: realtime,
		ForecastMM:  forecast,
		Timestamp:   now,
	}); err != nil {
		e.logger.Warn("persist reading failed", "station", st.ID, "error", err)
	}
	if err := e.store.InsertForecast(ctx, domain.ForecastRecord{
		StationID: st.ID,
		ValueMM:   forecast,
		Timestamp: now,
	}); err != nil {
		e.logger.Warn("persist forecast failed", "station", st.ID, "error", err)
	}
}
