package domain

import (
	"context"
	"errors"
	"slices"
	"time"
)

// ErrNoData indicates an upstream product returned no usable value. Callers
// treat it as absence, never as a cycle-level failure.
var ErrNoData = errors.New("no data available")

// ErrQuotaExceeded is returned once the provider's daily call budget is spent.
var ErrQuotaExceeded = errors.New("daily call quota exceeded")

// Station is a physical rain sensor. Immutable after provisioning; owned by
// the administrative hierarchy.
type Station struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	RegionID int     `json:"region_id"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
}

// Reading is one evaluation outcome for one station at one instant. Written
// once per polling cycle per evaluated station, never mutated, pruned after a
// short display window.
type Reading struct {
	StationID   string    `json:"station_id"`
	Realtime15m float64   `json:"realtime_15m"`
	ForecastMM  float64   `json:"forecast_mm"`
	Timestamp   time.Time `json:"timestamp"`
}

// ForecastRecord is the separately persisted forecast value for a station,
// kept so display queries can distinguish "no forecast yet" from zero.
type ForecastRecord struct {
	StationID string    `json:"station_id"`
	ValueMM   float64   `json:"value_mm"`
	Timestamp time.Time `json:"timestamp"`
}

// AlarmEvent is an ephemeral alarm notification. It is broadcast, not stored;
// expiry is the consumer's concern.
type AlarmEvent struct {
	StationID   string    `json:"station_id"`
	RegionID    int       `json:"region_id"`
	Realtime15m float64   `json:"realtime_15m"`
	ForecastMM  float64   `json:"forecast_mm"`
	Timestamp   time.Time `json:"timestamp"`
}

// AlertLevel is the regional alert state machine's level.
type AlertLevel string

const (
	AlertIdle   AlertLevel = "IDLE"
	AlertActive AlertLevel = "ACTIVE"
)

// RegionalAlertState is the process-wide alert state. Mutated only by the
// alert monitor; read by the scheduler and batcher. Replaced as a whole value
// on every transition.
type RegionalAlertState struct {
	Level             AlertLevel `json:"level"`
	AffectedRegionIDs []int      `json:"affected_region_ids"` // sorted ascending
	LastCheckedAt     time.Time  `json:"last_checked_at"`
	ConsecutiveErrors int        `json:"consecutive_errors"`
	LastError         string     `json:"last_error,omitempty"`
}

// Affected reports whether the given region is in the affected set.
func (s RegionalAlertState) Affected(regionID int) bool {
	_, found := slices.BinarySearch(s.AffectedRegionIDs, regionID)
	return found
}

// BulletinLevel classifies a warning bulletin's severity.
type BulletinLevel string

const (
	BulletinWatch       BulletinLevel = "WATCH"
	BulletinWarning     BulletinLevel = "WARNING"
	BulletinPreliminary BulletinLevel = "PRELIMINARY"
)

// BulletinStatus distinguishes an issuance from a cancellation.
type BulletinStatus string

const (
	BulletinIssued    BulletinStatus = "ISSUE"
	BulletinCancelled BulletinStatus = "CANCEL"
)

// Bulletin is one warning notice from one regional forecast office.
type Bulletin struct {
	Authority  string         `json:"authority"` // issuing office code
	Phenomenon string         `json:"phenomenon"`
	Level      BulletinLevel  `json:"level"`
	Status     BulletinStatus `json:"status"`
	Regions    []string       `json:"regions"` // free-text region names
	IssuedAt   time.Time      `json:"issued_at"`
}

// StationObservation is one entry of the national AWS rainfall snapshot.
type StationObservation struct {
	StationID string  `json:"station_id"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Rain15m   float64 `json:"rain_15m"`
}

// PrecipNone is the precipitation-type code for "no precipitation".
const PrecipNone = 0

// Nowcast is the ultra-short-term grid observation for one cell.
type Nowcast struct {
	Accum1h    float64 `json:"accum_1h"`    // rolling hourly accumulation, mm
	PrecipType int     `json:"precip_type"` // PTY code, see package doc
}

// QuotaUsage is the gateway's daily budget snapshot.
type QuotaUsage struct {
	Date      string `json:"date"` // provider-local calendar day, YYYY-MM-DD
	Calls     int    `json:"calls"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
}

// WeatherProvider exposes the upstream products the engine consumes. The live
// implementation is quota-guarded; a synthetic one backs mock mode.
type WeatherProvider interface {
	// StationRainfall returns the national AWS 15-minute rainfall snapshot.
	StationRainfall(ctx context.Context) ([]StationObservation, error)

	// Nowcast returns the ultra-short-term grid observation for a cell.
	Nowcast(ctx context.Context, cell GridCell) (Nowcast, error)

	// Forecast returns the hourly precipitation forecast for a cell in mm,
	// falling back to the secondary product when the primary is unavailable.
	Forecast(ctx context.Context, cell GridCell) (float64, error)

	// Bulletins returns the currently published warning bulletins.
	Bulletins(ctx context.Context) ([]Bulletin, error)
}

// ReadingStore is the persistence contract the engine writes through.
type ReadingStore interface {
	InsertReading(ctx context.Context, r Reading) error
	InsertForecast(ctx context.Context, f ForecastRecord) error

	// LatestReadings returns the most recent reading per station no older
	// than the freshness window.
	LatestReadings(ctx context.Context, window time.Duration) ([]Reading, error)

	// PruneOlderThan deletes readings and forecasts past the retention
	// window, returning the number of rows removed.
	PruneOlderThan(ctx context.Context, retention time.Duration) (int64, error)
}

// Broadcaster is the fire-and-forget fan-out the engine emits through.
type Broadcaster interface {
	EmitAlarm(ctx context.Context, event AlarmEvent) error
	EmitRegionalCounts(ctx context.Context, counts map[int]int) error
	EmitAlertState(ctx context.Context, state RegionalAlertState) error
}
