package gateway

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/couchcryptid/rainwatch/internal/domain"
	"github.com/jonboulle/clockwork"
)

// MockSource is a synthetic provider for non-production mode. Values are
// hashed from the query key and the current hour, so repeated calls within an
// hour are stable and no network access occurs.
type MockSource struct {
	stations []domain.Station
	clock    clockwork.Clock
	loc      *time.Location
}

// NewMockSource creates a synthetic provider covering the given stations.
func NewMockSource(stations []domain.Station, loc *time.Location, clock clockwork.Clock) *MockSource {
	return &MockSource{stations: stations, clock: clock, loc: loc}
}

func (m *MockSource) StationRainfall(_ context.Context) ([]domain.StationObservation, error) {
	hour := m.hour()
	obs := make([]domain.StationObservation, 0, len(m.stations))
	for _, st := range m.stations {
		obs = append(obs, domain.StationObservation{
			StationID: st.ID,
			Lat:       st.Lat,
			Lon:       st.Lon,
			Rain15m:   m.rainfall("aws|"+st.ID, hour),
		})
	}
	return obs, nil
}

func (m *MockSource) Nowcast(_ context.Context, cell domain.GridCell) (domain.Nowcast, error) {
	hour := m.hour()
	accum := m.rainfall(fmt.Sprintf("nc|%d|%d", cell.NX, cell.NY), hour) * 3
	pty := domain.PrecipNone
	if accum > 0 {
		pty = 1
	}
	return domain.Nowcast{Accum1h: accum, PrecipType: pty}, nil
}

func (m *MockSource) Forecast(_ context.Context, cell domain.GridCell) (float64, error) {
	return m.rainfall(fmt.Sprintf("fc|%d|%d", cell.NX, cell.NY), m.hour()) * 4, nil
}

// Bulletins scripts a synthetic heavy-rain warning for a slice of each day so
// the fast tier and alarm path get exercised without real weather.
func (m *MockSource) Bulletins(_ context.Context) ([]domain.Bulletin, error) {
	now := m.clock.Now().In(m.loc)
	if now.Hour()%6 != 0 {
		return nil, nil
	}
	return []domain.Bulletin{{
		Authority:  "109",
		Phenomenon: "HEAVY_RAIN",
		Level:      domain.BulletinWarning,
		Status:     domain.BulletinIssued,
		Regions:    []string{"Seoul"},
		IssuedAt:   now.Truncate(time.Hour),
	}}, nil
}

func (m *MockSource) hour() int64 {
	return m.clock.Now().In(m.loc).Unix() / 3600
}

// rainfall derives a stable pseudo-random rainfall in [0, 15) mm from the key
// and hour; roughly half of all keys are dry in any given hour.
func (m *MockSource) rainfall(key string, hour int64) float64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d", key, hour)
	v := h.Sum64() % 1000
	if v < 500 {
		return 0
	}
	return float64(v-500) / 499 * 15
}

// Usage reports a synthetic unmetered budget so the ops surface stays
// identical between modes.
func (m *MockSource) Usage() domain.QuotaUsage {
	return domain.QuotaUsage{
		Date:      m.clock.Now().In(m.loc).Format("2006-01-02"),
		Limit:     -1,
		Remaining: -1,
	}
}
