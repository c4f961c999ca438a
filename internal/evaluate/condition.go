package evaluate

import "github.com/couchcryptid/rainwatch/internal/config"

// ConditionFunc is the pluggable compound alarm rule, consulted only after
// the realtime value has exceeded its own threshold.
type ConditionFunc func(realtime, forecast float64) bool

// ForecastCondition alarms when the forecast alone reaches the forecast
// threshold.
func ForecastCondition(thresholdMM float64) ConditionFunc {
	return func(_, forecast float64) bool {
		return forecast >= thresholdMM
	}
}

// SumCondition alarms when realtime plus forecast exceed the combined
// threshold.
func SumCondition(thresholdMM float64) ConditionFunc {
	return func(realtime, forecast float64) bool {
		return realtime+forecast > thresholdMM
	}
}

// ConditionFromConfig selects the configured formula.
func ConditionFromConfig(cfg *config.Config) ConditionFunc {
	if cfg.AlarmCondition == config.ConditionSum {
		return SumCondition(cfg.CombinedThreshold)
	}
	return ForecastCondition(cfg.ForecastThreshold)
}
