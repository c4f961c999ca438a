package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Alarm condition formulas (see the evaluate package).
const (
	ConditionForecast = "forecast" // forecast >= forecast threshold
	ConditionSum      = "sum"      // realtime + forecast > combined threshold
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Upstream weather provider.
	ProviderBaseURL  string
	ProviderAPIKey   string
	ForecastBaseURL  string // primary forecast product; empty leaves only the fallback
	ProviderTimezone string // calendar-day timezone for the quota
	DailyQuota       int
	RequestTimeout   time.Duration
	MockMode         bool

	// Scheduling.
	FastInterval        time.Duration
	SlowInterval        time.Duration
	AlertActiveInterval time.Duration
	AlertIdleInterval   time.Duration
	BatchSize           int
	BatchPause          time.Duration

	// Alarm thresholds (mm).
	RealtimeThreshold float64
	ForecastThreshold float64
	CombinedThreshold float64
	AlarmCondition    string

	// Persistence. An empty DatabaseURL selects the in-memory store.
	DatabaseURL     string
	RetentionWindow time.Duration
	FreshnessWindow time.Duration

	// Broadcast.
	KafkaBrokers     []string
	KafkaTopic       string
	BroadcastEnabled bool

	// Administrative hierarchy.
	RegionsFile string
}

// Load reads configuration from environment variables (optionally .env),
// applying defaults where unset.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		HTTPAddr:  envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:  envOrDefault("LOG_LEVEL", "info"),
		LogFormat: envOrDefault("LOG_FORMAT", "json"),

		ProviderBaseURL:  envOrDefault("PROVIDER_BASE_URL", "https://apis.data.go.kr/1360000"),
		ProviderAPIKey:   os.Getenv("PROVIDER_API_KEY"),
		ForecastBaseURL:  os.Getenv("FORECAST_BASE_URL"),
		ProviderTimezone: envOrDefault("PROVIDER_TIMEZONE", "Asia/Seoul"),
		MockMode:         envBool("MOCK_MODE", false),

		AlarmCondition: envOrDefault("ALARM_CONDITION", ConditionForecast),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		KafkaBrokers:     parseBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:       envOrDefault("KAFKA_TOPIC", "rainwatch-events"),
		BroadcastEnabled: envBool("BROADCAST_ENABLED", true),

		RegionsFile: os.Getenv("REGIONS_FILE"),
	}

	var err error
	if cfg.ShutdownTimeout, err = envDuration("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = envDuration("REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.FastInterval, err = envDuration("FAST_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SlowInterval, err = envDuration("SLOW_INTERVAL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.AlertActiveInterval, err = envDuration("ALERT_ACTIVE_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.AlertIdleInterval, err = envDuration("ALERT_IDLE_INTERVAL", 30*time.Minute); err != nil {
		return nil, err
	}
	if cfg.BatchPause, err = envDuration("BATCH_PAUSE", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.RetentionWindow, err = envDuration("RETENTION_WINDOW", time.Hour); err != nil {
		return nil, err
	}
	if cfg.FreshnessWindow, err = envDuration("FRESHNESS_WINDOW", 20*time.Minute); err != nil {
		return nil, err
	}

	if cfg.DailyQuota, err = envInt("DAILY_QUOTA", 10000); err != nil {
		return nil, err
	}
	if cfg.BatchSize, err = envInt("BATCH_SIZE", 5); err != nil {
		return nil, err
	}
	if cfg.RealtimeThreshold, err = envFloat("REALTIME_THRESHOLD_MM", 20); err != nil {
		return nil, err
	}
	if cfg.ForecastThreshold, err = envFloat("FORECAST_THRESHOLD_MM", 55); err != nil {
		return nil, err
	}
	if cfg.CombinedThreshold, err = envFloat("COMBINED_THRESHOLD_MM", 75); err != nil {
		return nil, err
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if !c.MockMode && c.ProviderAPIKey == "" {
		return errors.New("PROVIDER_API_KEY is required unless MOCK_MODE is true")
	}
	if c.AlarmCondition != ConditionForecast && c.AlarmCondition != ConditionSum {
		return fmt.Errorf("invalid ALARM_CONDITION %q (want %q or %q)",
			c.AlarmCondition, ConditionForecast, ConditionSum)
	}
	if c.DailyQuota <= 0 {
		return errors.New("DAILY_QUOTA must be positive")
	}
	if c.BatchSize <= 0 {
		return errors.New("BATCH_SIZE must be positive")
	}
	if c.BroadcastEnabled && len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required when BROADCAST_ENABLED is true")
	}
	if _, err := time.LoadLocation(c.ProviderTimezone); err != nil {
		return fmt.Errorf("invalid PROVIDER_TIMEZONE: %w", err)
	}
	return nil
}

// ProviderLocation resolves the quota calendar timezone. The zone name is
// validated in Load, so lookup failures here fall back to UTC.
func (c *Config) ProviderLocation() *time.Location {
	loc, err := time.LoadLocation(c.ProviderTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v == "true" || v == "1"
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return d, nil
}

func envInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return f, nil
}

func parseBrokers(s string) []string {
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}
