package evaluate

import (
	"sync"

	"github.com/couchcryptid/rainwatch/internal/domain"
)

// cycleCaches hold data valid for a single polling cycle. BeginCycle clears
// them; within one cycle at most one snapshot fetch, one nowcast fetch per
// cell, and one forecast fetch per cell reach the provider.
type cycleCaches struct {
	mu sync.Mutex

	snapshotLoaded bool
	snapshot       []domain.StationObservation

	nowcast  map[domain.GridCell]*domain.Nowcast // nil entry: fetch failed this cycle
	forecast map[domain.GridCell]float64

	realtimeCalls int
	forecastCalls int
}

func newCycleCaches() *cycleCaches {
	return &cycleCaches{
		nowcast:  make(map[domain.GridCell]*domain.Nowcast),
		forecast: make(map[domain.GridCell]float64),
	}
}

func (c *cycleCaches) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshotLoaded = false
	c.snapshot = nil
	c.nowcast = make(map[domain.GridCell]*domain.Nowcast)
	c.forecast = make(map[domain.GridCell]float64)
	c.realtimeCalls = 0
	c.forecastCalls = 0
}

// BaselineCache maps a grid cell to the accumulation observed in the last
// cycle that polled it. It is the only cache that survives cycle boundaries;
// entries are overwritten after a cell's evaluation completes, never cleared.
type BaselineCache struct {
	mu     sync.Mutex
	accums map[domain.GridCell]float64
}

// NewBaselineCache creates an empty baseline cache.
func NewBaselineCache() *BaselineCache {
	return &BaselineCache{accums: make(map[domain.GridCell]float64)}
}

// Get returns the cell's baseline accumulation, if one has been established.
func (b *BaselineCache) Get(cell domain.GridCell) (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.accums[cell]
	return v, ok
}

// Set records the cell's accumulation as the next cycle's baseline.
func (b *BaselineCache) Set(cell domain.GridCell, accum float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accums[cell] = accum
}
