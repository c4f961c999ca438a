// Package store provides the persistence backends for readings and forecast
// records: Postgres for deployments, in-memory for mock mode and tests.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/rainwatch/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements domain.ReadingStore on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database and ensures the schema exists.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	s := &Postgres{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Postgres) Close() {
	s.pool.Close()
}

func (s *Postgres) ensureSchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS readings (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			station_id TEXT NOT NULL,
			realtime_15m DOUBLE PRECISION NOT NULL,
			forecast_mm DOUBLE PRECISION NOT NULL,
			ts TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS readings_station_ts_idx ON readings (station_id, ts DESC)`,
		`CREATE TABLE IF NOT EXISTS forecasts (
			id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			station_id TEXT NOT NULL,
			value_mm DOUBLE PRECISION NOT NULL,
			ts TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS forecasts_station_ts_idx ON forecasts (station_id, ts DESC)`,
	}
	for _, stmt := range ddl {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *Postgres) InsertReading(ctx context.Context, r domain.Reading) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO readings (station_id, realtime_15m, forecast_mm, ts) VALUES ($1,$2,$3,$4)`,
		r.StationID, r.Realtime15m, r.ForecastMM, r.Timestamp)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

func (s *Postgres) InsertForecast(ctx context.Context, f domain.ForecastRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO forecasts (station_id, value_mm, ts) VALUES ($1,$2,$3)`,
		f.StationID, f.ValueMM, f.Timestamp)
	if err != nil {
		return fmt.Errorf("insert forecast: %w", err)
	}
	return nil
}

// InsertReadings writes a cycle's readings in one round trip.
func (s *Postgres) InsertReadings(ctx context.Context, readings []domain.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range readings {
		batch.Queue(
			`INSERT INTO readings (station_id, realtime_15m, forecast_mm, ts) VALUES ($1,$2,$3,$4)`,
			r.StationID, r.Realtime15m, r.ForecastMM, r.Timestamp)
	}

	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()

	for range readings {
		if _, err := res.Exec(); err != nil {
			return fmt.Errorf("insert readings batch: %w", err)
		}
	}
	return nil
}

func (s *Postgres) LatestReadings(ctx context.Context, window time.Duration) ([]domain.Reading, error) {
	rows, err := s.pool.Query(ctx, `
SELECT DISTINCT ON (station_id) station_id, realtime_15m, forecast_mm, ts
FROM readings
WHERE ts >= NOW() - $1::interval
ORDER BY station_id, ts DESC`, window)
	if err != nil {
		return nil, fmt.Errorf("query latest readings: %w", err)
	}
	defer rows.Close()

	var out []domain.Reading
	for rows.Next() {
		var r domain.Reading
		if err := rows.Scan(&r.StationID, &r.Realtime15m, &r.ForecastMM, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Postgres) PruneOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM readings WHERE ts < NOW() - $1::interval`, retention)
	if err != nil {
		return 0, fmt.Errorf("prune readings: %w", err)
	}
	removed := tag.RowsAffected()

	tag, err = s.pool.Exec(ctx, `DELETE FROM forecasts WHERE ts < NOW() - $1::interval`, retention)
	if err != nil {
		return removed, fmt.Errorf("prune forecasts: %w", err)
	}
	return removed + tag.RowsAffected(), nil
}

// CheckReadiness pings the pool so /readyz reflects database availability.
func (s *Postgres) CheckReadiness(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
