package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/rainwatch/internal/config"
	"github.com/couchcryptid/rainwatch/internal/domain"
	"github.com/couchcryptid/rainwatch/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, baseURL, forecastURL string, quota int) *Client {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2025, time.July, 10, 12, 0, 0, 0, time.UTC))
	cfg := &config.Config{
		ProviderBaseURL:  baseURL,
		ForecastBaseURL:  forecastURL,
		ProviderAPIKey:   "test-key",
		ProviderTimezone: "UTC",
		RequestTimeout:   5 * time.Second,
	}
	q := NewDailyQuota(quota, time.UTC, clock)
	return NewClient(cfg, q, clock, slog.Default(), observability.NewMetricsForTesting())
}

func itemsJSON(items string) string {
	return fmt.Sprintf(`{"response":{"header":{"resultCode":"00","resultMsg":"OK"},
		"body":{"items":{"item":[%s]}}}}`, items)
}

func TestNowcast_ParsesItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "getUltraSrtNcst")
		assert.Equal(t, "60", r.URL.Query().Get("nx"))
		fmt.Fprint(w, itemsJSON(`{"category":"RN1","obsrValue":"12.5"},{"category":"PTY","obsrValue":"1"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, "", 10)
	nc, err := c.Nowcast(context.Background(), domain.GridCell{NX: 60, NY: 127})
	require.NoError(t, err)
	assert.Equal(t, 12.5, nc.Accum1h)
	assert.Equal(t, 1, nc.PrecipType)
}

func TestNowcast_MissingAccumulationIsNoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, itemsJSON(`{"category":"T1H","obsrValue":"22.1"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, "", 10)
	_, err := c.Nowcast(context.Background(), domain.GridCell{NX: 60, NY: 127})
	assert.ErrorIs(t, err, domain.ErrNoData)
}

func TestNowcast_MalformedPTYReadsAsUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, itemsJSON(`{"category":"RN1","obsrValue":"3.0"},{"category":"PTY","obsrValue":"??"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, "", 10)
	nc, err := c.Nowcast(context.Background(), domain.GridCell{NX: 60, NY: 127})
	require.NoError(t, err)
	assert.Equal(t, PrecipUnknown, nc.PrecipType)
}

func TestForecast_PrimaryProduct(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "getVilageFcst")
		fmt.Fprint(w, itemsJSON(`{"category":"PCP","fcstValue":"60.0mm"},{"category":"PCP","fcstValue":"5.0mm"}`))
	}))
	defer primary.Close()

	c := testClient(t, "http://127.0.0.1:1", primary.URL, 10)
	mm, err := c.Forecast(context.Background(), domain.GridCell{NX: 60, NY: 127})
	require.NoError(t, err)
	assert.Equal(t, 60.0, mm)
}

func TestForecast_FallsBackWhenPrimaryFails(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer primary.Close()

	var fallbackHits atomic.Int64
	base := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "getUltraSrtFcst")
		fallbackHits.Add(1)
		fmt.Fprint(w, itemsJSON(`{"category":"RN1","fcstValue":"8.0"}`))
	}))
	defer base.Close()

	c := testClient(t, base.URL, primary.URL, 10)
	mm, err := c.Forecast(context.Background(), domain.GridCell{NX: 60, NY: 127})
	require.NoError(t, err)
	assert.Equal(t, 8.0, mm)
	assert.Equal(t, int64(1), fallbackHits.Load())
}

func TestForecast_UnconfiguredPrimaryUsesFallbackOnly(t *testing.T) {
	base := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "getUltraSrtFcst")
		fmt.Fprint(w, itemsJSON(`{"category":"RN1","fcstValue":"3.5"}`))
	}))
	defer base.Close()

	c := testClient(t, base.URL, "", 10)
	mm, err := c.Forecast(context.Background(), domain.GridCell{NX: 98, NY: 76})
	require.NoError(t, err)
	assert.Equal(t, 3.5, mm)
}

func TestQuota_ExhaustionSkipsProviderContact(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, itemsJSON(`{"category":"RN1","obsrValue":"1.0"}`))
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, "", 2)
	cell := domain.GridCell{NX: 60, NY: 127}

	_, err := c.Nowcast(context.Background(), cell)
	require.NoError(t, err)
	_, err = c.Nowcast(context.Background(), cell)
	require.NoError(t, err)

	// Third call must fail without reaching the server.
	_, err = c.Nowcast(context.Background(), cell)
	assert.ErrorIs(t, err, domain.ErrQuotaExceeded)
	assert.Equal(t, int64(2), hits.Load())
}

func TestStationRainfall_DecodesSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/aws/rainfall")
		fmt.Fprint(w, `{"observations":[
			{"station_id":"108","lat":37.57,"lon":126.96,"rain_15m":4.5},
			{"station_id":"159","lat":35.10,"lon":129.03,"rain_15m":0}]}`)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, "", 10)
	obs, err := c.StationRainfall(context.Background())
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, "108", obs[0].StationID)
	assert.Equal(t, 4.5, obs[0].Rain15m)
}

func TestBulletins_Decodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"bulletins":[{"authority":"109","phenomenon":"HEAVY_RAIN",
			"level":"WARNING","status":"ISSUE","regions":["Seoul"],
			"issued_at":"2025-07-10T11:00:00+09:00"}]}`)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL, "", 10)
	bulletins, err := c.Bulletins(context.Background())
	require.NoError(t, err)
	require.Len(t, bulletins, 1)
	assert.Equal(t, "109", bulletins[0].Authority)
	assert.Equal(t, domain.BulletinWarning, bulletins[0].Level)
}

func TestParseRain(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"12.5", 12.5},
		{"30.0mm", 30.0},
		{" 4 ", 4},
		{"강수없음", 0},
		{"없음", 0},
		{"-", 0},
		{"null", 0},
		{"", 0},
		{"garbage", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseRain(tt.in), "parseRain(%q)", tt.in)
	}
}

func TestMockSource_StableWithinHour(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2025, time.July, 10, 12, 5, 0, 0, time.UTC))
	stations := []domain.Station{{ID: "108", Lat: 37.57, Lon: 126.96}}
	m := NewMockSource(stations, time.UTC, clock)

	cell := domain.GridCell{NX: 60, NY: 127}
	first, err := m.Nowcast(context.Background(), cell)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	second, err := m.Nowcast(context.Background(), cell)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	obs, err := m.StationRainfall(context.Background())
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, "108", obs[0].StationID)
}
