// Package gateway wraps the external weather provider behind a daily call
// quota, per-product circuit breakers, and bounded retries. It is the only
// package that speaks the provider's wire formats.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/couchcryptid/rainwatch/internal/config"
	"github.com/couchcryptid/rainwatch/internal/domain"
	"github.com/couchcryptid/rainwatch/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"
)

// Upstream product names, used for breakers and metrics labels.
const (
	productAWS              = "aws_rainfall"
	productNowcast          = "nowcast"
	productForecast         = "village_forecast"
	productForecastFallback = "ultra_short_forecast"
	productBulletin         = "bulletin"
)

// PrecipUnknown marks a missing or unparseable precipitation-type code.
// Unlike domain.PrecipNone it never forces a zero override.
const PrecipUnknown = -1

var (
	_ domain.WeatherProvider = (*Client)(nil)
	_ domain.WeatherProvider = (*MockSource)(nil)
)

// Client implements domain.WeatherProvider against the live provider.
type Client struct {
	baseURL     string
	forecastURL string // primary forecast product; empty means unconfigured
	apiKey      string
	httpClient  *http.Client
	quota       *DailyQuota
	breakers    map[string]*gobreaker.CircuitBreaker
	clock       clockwork.Clock
	loc         *time.Location
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewClient creates a quota-guarded provider client.
func NewClient(cfg *config.Config, quota *DailyQuota, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(cfg.ProviderBaseURL, "/"),
		forecastURL: strings.TrimRight(cfg.ForecastBaseURL, "/"),
		apiKey:      cfg.ProviderAPIKey,
		httpClient:  &http.Client{Timeout: cfg.RequestTimeout},
		quota:       quota,
		breakers:    make(map[string]*gobreaker.CircuitBreaker),
		clock:       clock,
		loc:         cfg.ProviderLocation(),
		logger:      logger,
		metrics:     metrics,
	}
	for _, product := range []string{productAWS, productNowcast, productForecast, productForecastFallback, productBulletin} {
		c.breakers[product] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    product,
			Timeout: time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		})
	}
	return c
}

// Usage exposes the daily quota snapshot for the ops endpoint.
func (c *Client) Usage() domain.QuotaUsage {
	return c.quota.Usage()
}

// StationRainfall returns the national AWS 15-minute rainfall snapshot.
func (c *Client) StationRainfall(ctx context.Context) ([]domain.StationObservation, error) {
	u := fmt.Sprintf("%s/aws/rainfall?authKey=%s", c.baseURL, url.QueryEscape(c.apiKey))

	var payload struct {
		Observations []domain.StationObservation `json:"observations"`
	}
	if err := c.getJSON(ctx, productAWS, u, &payload); err != nil {
		return nil, err
	}
	return payload.Observations, nil
}

// Nowcast returns the ultra-short-term grid observation for one cell.
func (c *Client) Nowcast(ctx context.Context, cell domain.GridCell) (domain.Nowcast, error) {
	date, tm := c.nowcastBase()
	u := fmt.Sprintf("%s/VilageFcstInfoService_2.0/getUltraSrtNcst?%s", c.baseURL, url.Values{
		"serviceKey": {c.apiKey},
		"dataType":   {"JSON"},
		"numOfRows":  {"60"},
		"pageNo":     {"1"},
		"base_date":  {date},
		"base_time":  {tm},
		"nx":         {strconv.Itoa(cell.NX)},
		"ny":         {strconv.Itoa(cell.NY)},
	}.Encode())

	var payload apiResponse
	if err := c.getJSON(ctx, productNowcast, u, &payload); err != nil {
		return domain.Nowcast{}, err
	}

	nc := domain.Nowcast{PrecipType: PrecipUnknown}
	sawAccum := false
	for _, item := range payload.Response.Body.Items.Item {
		switch item.Category {
		case "RN1":
			nc.Accum1h = parseRain(item.ObsrValue)
			sawAccum = true
		case "PTY":
			if pty, err := strconv.Atoi(strings.TrimSpace(item.ObsrValue)); err == nil {
				nc.PrecipType = pty
			}
		}
	}
	if !sawAccum {
		return domain.Nowcast{}, fmt.Errorf("nowcast for cell (%d,%d): %w", cell.NX, cell.NY, domain.ErrNoData)
	}
	return nc, nil
}

// Forecast returns the hourly precipitation forecast for one cell in mm. The
// village forecast product is primary; when it is unconfigured or fails, the
// ultra-short-term forecast product serves as the declared fallback.
func (c *Client) Forecast(ctx context.Context, cell domain.GridCell) (float64, error) {
	if c.forecastURL != "" {
		mm, err := c.villageForecast(ctx, cell)
		if err == nil {
			return mm, nil
		}
		c.logger.Warn("primary forecast product failed, falling back",
			"cell_nx", cell.NX, "cell_ny", cell.NY, "error", err)
	}
	return c.ultraShortForecast(ctx, cell)
}

func (c *Client) villageForecast(ctx context.Context, cell domain.GridCell) (float64, error) {
	date, tm := c.villageBase()
	u := fmt.Sprintf("%s/getVilageFcst?%s", c.forecastURL, url.Values{
		"serviceKey": {c.apiKey},
		"dataType":   {"JSON"},
		"numOfRows":  {"300"},
		"pageNo":     {"1"},
		"base_date":  {date},
		"base_time":  {tm},
		"nx":         {strconv.Itoa(cell.NX)},
		"ny":         {strconv.Itoa(cell.NY)},
	}.Encode())

	var payload apiResponse
	if err := c.getJSON(ctx, productForecast, u, &payload); err != nil {
		return 0, err
	}
	// The response is an hourly series; the nearest hour comes first.
	for _, item := range payload.Response.Body.Items.Item {
		if item.Category == "PCP" {
			return parseRain(item.FcstValue), nil
		}
	}
	return 0, fmt.Errorf("village forecast for cell (%d,%d): %w", cell.NX, cell.NY, domain.ErrNoData)
}

func (c *Client) ultraShortForecast(ctx context.Context, cell domain.GridCell) (float64, error) {
	date, tm := c.nowcastBase()
	u := fmt.Sprintf("%s/VilageFcstInfoService_2.0/getUltraSrtFcst?%s", c.baseURL, url.Values{
		"serviceKey": {c.apiKey},
		"dataType":   {"JSON"},
		"numOfRows":  {"60"},
		"pageNo":     {"1"},
		"base_date":  {date},
		"base_time":  {tm},
		"nx":         {strconv.Itoa(cell.NX)},
		"ny":         {strconv.Itoa(cell.NY)},
	}.Encode())

	var payload apiResponse
	if err := c.getJSON(ctx, productForecastFallback, u, &payload); err != nil {
		return 0, err
	}
	for _, item := range payload.Response.Body.Items.Item {
		if item.Category == "RN1" {
			return parseRain(item.FcstValue), nil
		}
	}
	return 0, fmt.Errorf("ultra-short forecast for cell (%d,%d): %w", cell.NX, cell.NY, domain.ErrNoData)
}

// Bulletins returns the currently published warning bulletins.
func (c *Client) Bulletins(ctx context.Context) ([]domain.Bulletin, error) {
	u := fmt.Sprintf("%s/wrn/now?authKey=%s", c.baseURL, url.QueryEscape(c.apiKey))

	var payload struct {
		Bulletins []domain.Bulletin `json:"bulletins"`
	}
	if err := c.getJSON(ctx, productBulletin, u, &payload); err != nil {
		return nil, err
	}
	return payload.Bulletins, nil
}

// getJSON performs one quota-consuming GET with breaker protection and a
// single transient retry, decoding the body into out.
func (c *Client) getJSON(ctx context.Context, product, fullURL string, out any) error {
	if err := c.quota.Allow(); err != nil {
		c.metrics.UpstreamCalls.WithLabelValues(product, "quota").Inc()
		return err
	}
	defer c.metrics.QuotaRemaining.Set(float64(c.quota.Usage().Remaining))

	_, err := c.breakers[product].Execute(func() (any, error) {
		op := func() error { return c.doGet(ctx, fullURL, out) }
		return nil, backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 1), ctx))
	})
	if err != nil {
		c.metrics.UpstreamCalls.WithLabelValues(product, "error").Inc()
		return fmt.Errorf("%s: %w", product, err)
	}
	c.metrics.UpstreamCalls.WithLabelValues(product, "success").Inc()
	return nil
}

func (c *Client) doGet(ctx context.Context, fullURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return backoff.Permanent(err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err = fmt.Errorf("status %d: %s", resp.StatusCode, body)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// nowcastBase returns the base date/time of the most recent ultra-short-term
// publication. The product for hour H is published around H:40, so anything
// within 45 minutes of the hour still belongs to the previous publication.
func (c *Client) nowcastBase() (date, tm string) {
	t := c.clock.Now().In(c.loc).Add(-45 * time.Minute)
	return t.Format("20060102"), t.Format("15") + "00"
}

// villageBase returns the most recent village forecast publication slot.
// Slots are every three hours from 02:00 local, published ~10 minutes later.
func (c *Client) villageBase() (date, tm string) {
	t := c.clock.Now().In(c.loc).Add(-70 * time.Minute)
	for _, h := range []int{23, 20, 17, 14, 11, 8, 5, 2} {
		if t.Hour() >= h {
			return t.Format("20060102"), fmt.Sprintf("%02d00", h)
		}
	}
	y := t.AddDate(0, 0, -1)
	return y.Format("20060102"), "2300"
}

// Provider API response envelope (category/value item rows).

type apiResponse struct {
	Response struct {
		Header struct {
			ResultCode string `json:"resultCode"`
			ResultMsg  string `json:"resultMsg"`
		} `json:"header"`
		Body struct {
			Items struct {
				Item []apiItem `json:"item"`
			} `json:"items"`
		} `json:"body"`
	} `json:"response"`
}

type apiItem struct {
	Category  string `json:"category"`
	ObsrValue string `json:"obsrValue"`
	FcstValue string `json:"fcstValue"`
}

// parseRain converts a provider rainfall string to mm. The provider mixes
// plain numbers with annotated strings ("30.0mm", "강수없음"); anything
// unparseable reads as zero, absence never alarms.
func parseRain(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" || s == "null" || strings.Contains(s, "없음") {
		return 0
	}

	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || s[end] == '.') {
		end++
	}
	if end == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
