package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/couchcryptid/rainwatch/internal/domain"
	"github.com/couchcryptid/rainwatch/internal/store"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_LatestReadingsPerStationWithinWindow(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, time.July, 10, 12, 0, 0, 0, time.UTC))
	s := store.NewMemory(clock)
	ctx := context.Background()

	now := clock.Now()
	require.NoError(t, s.InsertReading(ctx, domain.Reading{StationID: "a", Realtime15m: 1, Timestamp: now.Add(-30 * time.Minute)}))
	require.NoError(t, s.InsertReading(ctx, domain.Reading{StationID: "a", Realtime15m: 5, Timestamp: now.Add(-5 * time.Minute)}))
	require.NoError(t, s.InsertReading(ctx, domain.Reading{StationID: "b", Realtime15m: 2, Timestamp: now.Add(-2 * time.Hour)}))

	latest, err := s.LatestReadings(ctx, 20*time.Minute)
	require.NoError(t, err)
	require.Len(t, latest, 1, "station b is stale, station a has one fresh reading")
	assert.Equal(t, "a", latest[0].StationID)
	assert.Equal(t, 5.0, latest[0].Realtime15m)
}

func TestMemory_PruneOlderThan(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, time.July, 10, 12, 0, 0, 0, time.UTC))
	s := store.NewMemory(clock)
	ctx := context.Background()

	now := clock.Now()
	require.NoError(t, s.InsertReading(ctx, domain.Reading{StationID: "a", Timestamp: now.Add(-2 * time.Hour)}))
	require.NoError(t, s.InsertReading(ctx, domain.Reading{StationID: "a", Timestamp: now}))
	require.NoError(t, s.InsertForecast(ctx, domain.ForecastRecord{StationID: "a", Timestamp: now.Add(-3 * time.Hour)}))
	require.NoError(t, s.InsertForecast(ctx, domain.ForecastRecord{StationID: "a", Timestamp: now}))

	removed, err := s.PruneOlderThan(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	assert.Len(t, s.Readings(), 1)
	assert.Len(t, s.Forecasts(), 1)
}

func TestMemory_LatestReadingsMultipleStations(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, time.July, 10, 12, 0, 0, 0, time.UTC))
	s := store.NewMemory(clock)
	ctx := context.Background()

	now := clock.Now()
	readings := []domain.Reading{
		{StationID: "108", Realtime15m: 3.5, ForecastMM: 10, Timestamp: now.Add(-10 * time.Minute)},
		{StationID: "159", Realtime15m: 0, ForecastMM: 0, Timestamp: now.Add(-6 * time.Minute)},
	}
	for _, r := range readings {
		require.NoError(t, s.InsertReading(ctx, r))
	}

	latest, err := s.LatestReadings(ctx, 20*time.Minute)
	require.NoError(t, err)
	if diff := cmp.Diff(readings, latest); diff != "" {
		t.Errorf("latest readings mismatch (-want +got):\n%s", diff)
	}
}
