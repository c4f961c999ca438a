package broadcast

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/couchcryptid/rainwatch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeToMessage_Alarm(t *testing.T) {
	now := time.Date(2025, time.July, 10, 12, 0, 0, 0, time.UTC)
	env := Envelope{
		Type:      TypeAlarm,
		EmittedAt: now,
		Alarm: &domain.AlarmEvent{
			StationID:   "108",
			RegionID:    1,
			Realtime15m: 25,
			ForecastMM:  60,
			Timestamp:   now,
		},
	}

	msg, err := serializeToMessage("108", env)
	require.NoError(t, err)

	assert.Equal(t, []byte("108"), msg.Key)
	assert.Contains(t, string(msg.Value), `"type":"alarm"`)
	assert.Len(t, msg.Headers, 2)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, []byte(TypeAlarm), msg.Headers[0].Value)
	assert.Equal(t, "emitted_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)

	var roundtrip Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &roundtrip))
	require.NotNil(t, roundtrip.Alarm)
	assert.Equal(t, 25.0, roundtrip.Alarm.Realtime15m)
	assert.Equal(t, 60.0, roundtrip.Alarm.ForecastMM)
}

func TestSerializeToMessage_RegionalCounts(t *testing.T) {
	env := Envelope{
		Type:           TypeRegionalCounts,
		RegionalCounts: map[string]int{"1": 3, "2": 0},
	}

	msg, err := serializeToMessage(TypeRegionalCounts, env)
	require.NoError(t, err)

	var roundtrip Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &roundtrip))
	assert.Equal(t, env.RegionalCounts, roundtrip.RegionalCounts)
	assert.Nil(t, roundtrip.Alarm)
}

func TestSerializeToMessage_AlertState(t *testing.T) {
	env := Envelope{
		Type: TypeAlertState,
		AlertState: &domain.RegionalAlertState{
			Level:             domain.AlertActive,
			AffectedRegionIDs: []int{1, 3},
		},
	}

	msg, err := serializeToMessage(TypeAlertState, env)
	require.NoError(t, err)

	var roundtrip Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &roundtrip))
	require.NotNil(t, roundtrip.AlertState)
	assert.Equal(t, domain.AlertActive, roundtrip.AlertState.Level)
	assert.Equal(t, []int{1, 3}, roundtrip.AlertState.AffectedRegionIDs)
}
