package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/couchcryptid/rainwatch/internal/domain"
	"github.com/jonboulle/clockwork"
)

// Memory implements domain.ReadingStore in process memory. Used in mock mode
// and tests; readings survive only until pruned or the process exits.
type Memory struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	readings  []domain.Reading
	forecasts []domain.ForecastRecord
}

// NewMemory creates an empty in-memory store.
func NewMemory(clock clockwork.Clock) *Memory {
	return &Memory{clock: clock}
}

func (s *Memory) InsertReading(_ context.Context, r domain.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings = append(s.readings, r)
	return nil
}

func (s *Memory) InsertForecast(_ context.Context, f domain.ForecastRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forecasts = append(s.forecasts, f)
	return nil
}

func (s *Memory) LatestReadings(_ context.Context, window time.Duration) ([]domain.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock.Now().Add(-window)
	latest := make(map[string]domain.Reading)
	for _, r := range s.readings {
		if r.Timestamp.Before(cutoff) {
			continue
		}
		if cur, ok := latest[r.StationID]; !ok || r.Timestamp.After(cur.Timestamp) {
			latest[r.StationID] = r
		}
	}

	out := make([]domain.Reading, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StationID < out[j].StationID })
	return out, nil
}

func (s *Memory) PruneOlderThan(_ context.Context, retention time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock.Now().Add(-retention)
	var removed int64

	kept := s.readings[:0]
	for _, r := range s.readings {
		if r.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.readings = kept

	keptF := s.forecasts[:0]
	for _, f := range s.forecasts {
		if f.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		keptF = append(keptF, f)
	}
	s.forecasts = keptF

	return removed, nil
}

// Readings returns a copy of all stored readings, oldest first. Test helper.
func (s *Memory) Readings() []domain.Reading {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Reading, len(s.readings))
	copy(out, s.readings)
	return out
}

// Forecasts returns a copy of all stored forecast records. Test helper.
func (s *Memory) Forecasts() []domain.ForecastRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ForecastRecord, len(s.forecasts))
	copy(out, s.forecasts)
	return out
}

// CheckReadiness always succeeds; the in-memory store has no dependencies.
func (s *Memory) CheckReadiness(context.Context) error {
	return nil
}
