// Package batch runs one polling cycle: it groups the monitored stations by
// forecast grid cell, fetches each cell's shared data once, and bounds the
// concurrent upstream calls by batching the cells.
package batch

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/couchcryptid/rainwatch/internal/domain"
	"github.com/couchcryptid/rainwatch/internal/evaluate"
	"github.com/couchcryptid/rainwatch/internal/observability"
	"github.com/jonboulle/clockwork"
)

// CycleReport summarizes one completed polling cycle.
type CycleReport struct {
	Tier          string
	Stations      int
	Cells         int
	RealtimeCalls int
	ForecastCalls int
	Alarms        []domain.AlarmEvent
	Elapsed       time.Duration
}

// Batcher drives the evaluator over a station list, one cycle at a time.
// It is not safe for concurrent cycles; the scheduler's run lock guarantees
// only one cycle is in flight.
type Batcher struct {
	eval      *evaluate.Evaluator
	batchSize int
	pause     time.Duration

	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

func New(eval *evaluate.Evaluator, batchSize int, pause time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Batcher {
	return &Batcher{
		eval:      eval,
		batchSize: batchSize,
		pause:     pause,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// ProcessStations runs one full cycle over the given stations. Stations
// sharing a grid cell reuse one nowcast and one forecast fetch. Cells are
// fetched in batches of batchSize concurrent calls with a pause between
// batches; a failed cell never aborts its siblings.
func (b *Batcher) ProcessStations(ctx context.Context, tier string, stations []domain.Station) CycleReport {
	start := b.clock.Now()
	b.eval.BeginCycle()

	cells := groupByCell(stations)
	order := sortedCells(cells)
	b.metrics.UniqueCells.Add(float64(len(order)))

	report := CycleReport{Tier: tier, Stations: len(stations), Cells: len(order)}

	for offset := 0; offset < len(order); offset += b.batchSize {
		if offset > 0 && !b.sleep(ctx) {
			break
		}
		if ctx.Err() != nil {
			break
		}

		batch := order[offset:min(offset+b.batchSize, len(order))]

		// One concurrent nowcast fetch per cell. A failed cell carries a
		// nil nowcast; its stations fall through to the lower-fidelity
		// resolvers.
		nowcasts := make([]*domain.Nowcast, len(batch))
		var wg sync.WaitGroup
		for i, cell := range batch {
			wg.Add(1)
			go func() {
				defer wg.Done()
				nc, err := b.eval.CellNowcast(ctx, cell)
				if err != nil {
					b.logger.Warn("cell nowcast unavailable this cycle",
						"nx", cell.NX, "ny", cell.NY, "error", err)
					return
				}
				nowcasts[i] = nc
			}()
		}
		wg.Wait()

		for i, cell := range batch {
			pre := evaluate.Preloaded{Cell: cell, Nowcast: nowcasts[i]}
			for _, st := range cells[cell] {
				res := b.eval.Evaluate(ctx, st, pre)
				if !res.Alarm {
					continue
				}
				report.Alarms = append(report.Alarms, domain.AlarmEvent{
					StationID:   st.ID,
					RegionID:    st.RegionID,
					Realtime15m: res.Realtime15m,
					ForecastMM:  res.ForecastMM,
					Timestamp:   b.clock.Now(),
				})
			}
			// A cell's accumulation becomes the next cycle's delta baseline
			// only once every one of its stations has been evaluated.
			if nowcasts[i] != nil {
				b.eval.SetBaseline(cell, nowcasts[i].Accum1h)
			}
		}
	}

	report.RealtimeCalls, report.ForecastCalls = b.eval.CycleStats()
	report.Elapsed = b.clock.Since(start)
	b.metrics.AlarmsRaised.Add(float64(len(report.Alarms)))
	return report
}

// sleep waits the inter-batch pause, returning false when the context is
// cancelled first.
func (b *Batcher) sleep(ctx context.Context) bool {
	if b.pause <= 0 {
		return true
	}
	timer := b.clock.NewTimer(b.pause)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}

func groupByCell(stations []domain.Station) map[domain.GridCell][]domain.Station {
	cells := make(map[domain.GridCell][]domain.Station)
	for _, st := range stations {
		cell := domain.CellFor(st.Lat, st.Lon)
		cells[cell] = append(cells[cell], st)
	}
	return cells
}

// sortedCells fixes the cell visit order so cycles are reproducible.
func sortedCells(cells map[domain.GridCell][]domain.Station) []domain.GridCell {
	order := make([]domain.GridCell, 0, len(cells))
	for cell := range cells {
		order = append(order, cell)
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].NX != order[j].NX {
			return order[i].NX < order[j].NX
		}
		return order[i].NY < order[j].NY
	})
	return order
}
