package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MOCK_MODE", "true") // no API key in the test environment

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)

	assert.Equal(t, "Asia/Seoul", cfg.ProviderTimezone)
	assert.Equal(t, 10000, cfg.DailyQuota)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)

	assert.Equal(t, 5*time.Minute, cfg.FastInterval)
	assert.Equal(t, 30*time.Minute, cfg.SlowInterval)
	assert.Equal(t, 5*time.Minute, cfg.AlertActiveInterval)
	assert.Equal(t, 30*time.Minute, cfg.AlertIdleInterval)
	assert.Equal(t, 5, cfg.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.BatchPause)

	assert.Equal(t, 20.0, cfg.RealtimeThreshold)
	assert.Equal(t, 55.0, cfg.ForecastThreshold)
	assert.Equal(t, 75.0, cfg.CombinedThreshold)
	assert.Equal(t, ConditionForecast, cfg.AlarmCondition)

	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, time.Hour, cfg.RetentionWindow)
	assert.Equal(t, 20*time.Minute, cfg.FreshnessWindow)

	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "rainwatch-events", cfg.KafkaTopic)
	assert.True(t, cfg.BroadcastEnabled)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("PROVIDER_API_KEY", "test-key")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("FAST_INTERVAL", "2m")
	t.Setenv("SLOW_INTERVAL", "15m")
	t.Setenv("ALERT_ACTIVE_INTERVAL", "1m")
	t.Setenv("ALERT_IDLE_INTERVAL", "10m")
	t.Setenv("BATCH_SIZE", "8")
	t.Setenv("BATCH_PAUSE", "500ms")
	t.Setenv("DAILY_QUOTA", "500")
	t.Setenv("REALTIME_THRESHOLD_MM", "15")
	t.Setenv("FORECAST_THRESHOLD_MM", "40")
	t.Setenv("ALARM_CONDITION", "sum")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("PROVIDER_TIMEZONE", "UTC")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 2*time.Minute, cfg.FastInterval)
	assert.Equal(t, 15*time.Minute, cfg.SlowInterval)
	assert.Equal(t, time.Minute, cfg.AlertActiveInterval)
	assert.Equal(t, 10*time.Minute, cfg.AlertIdleInterval)
	assert.Equal(t, 8, cfg.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.BatchPause)
	assert.Equal(t, 500, cfg.DailyQuota)
	assert.Equal(t, 15.0, cfg.RealtimeThreshold)
	assert.Equal(t, 40.0, cfg.ForecastThreshold)
	assert.Equal(t, ConditionSum, cfg.AlarmCondition)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, time.UTC, cfg.ProviderLocation())
}

func TestLoad_RequiresAPIKeyOutsideMockMode(t *testing.T) {
	t.Setenv("PROVIDER_API_KEY", "")
	t.Setenv("MOCK_MODE", "false")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"bad condition", "ALARM_CONDITION", "maybe"},
		{"bad interval", "FAST_INTERVAL", "soon"},
		{"negative interval", "SLOW_INTERVAL", "-5m"},
		{"bad quota", "DAILY_QUOTA", "0"},
		{"bad batch size", "BATCH_SIZE", "-1"},
		{"bad timezone", "PROVIDER_TIMEZONE", "Mars/Olympus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MOCK_MODE", "true")
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
