// Package broadcast fans engine events out to the Kafka topic consumed by
// the display layer. Emission is fire-and-forget: the engine never waits on
// or retries a delivery.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/rainwatch/internal/config"
	"github.com/couchcryptid/rainwatch/internal/domain"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
)

// Event type discriminators carried in the envelope and message headers.
const (
	TypeAlarm          = "alarm"
	TypeRegionalCounts = "regional_counts"
	TypeAlertState     = "alert_state"
)

// Envelope is the wire form of every broadcast message.
type Envelope struct {
	Type           string                     `json:"type"`
	EmittedAt      time.Time                  `json:"emitted_at"`
	Alarm          *domain.AlarmEvent         `json:"alarm,omitempty"`
	RegionalCounts map[string]int             `json:"regional_counts,omitempty"`
	AlertState     *domain.RegionalAlertState `json:"alert_state,omitempty"`
}

// Writer produces broadcast messages to a Kafka topic.
// It implements domain.Broadcaster.
type Writer struct {
	writer *kafkago.Writer
	clock  clockwork.Clock
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured broadcast topic.
func NewWriter(cfg *config.Config, clock clockwork.Clock, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireOne,
	}
	return &Writer{writer: w, clock: clock, logger: logger}
}

func (w *Writer) EmitAlarm(ctx context.Context, event domain.AlarmEvent) error {
	return w.emit(ctx, event.StationID, Envelope{Type: TypeAlarm, Alarm: &event})
}

func (w *Writer) EmitRegionalCounts(ctx context.Context, counts map[int]int) error {
	byRegion := make(map[string]int, len(counts))
	for id, n := range counts {
		byRegion[strconv.Itoa(id)] = n
	}
	return w.emit(ctx, TypeRegionalCounts, Envelope{Type: TypeRegionalCounts, RegionalCounts: byRegion})
}

func (w *Writer) EmitAlertState(ctx context.Context, state domain.RegionalAlertState) error {
	return w.emit(ctx, TypeAlertState, Envelope{Type: TypeAlertState, AlertState: &state})
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func (w *Writer) emit(ctx context.Context, key string, env Envelope) error {
	env.EmittedAt = w.clock.Now()
	msg, err := serializeToMessage(key, env)
	if err != nil {
		return err
	}
	return w.writer.WriteMessages(ctx, msg)
}

// serializeToMessage marshals an envelope into a Kafka message.
func serializeToMessage(key string, env Envelope) (kafkago.Message, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s envelope: %w", env.Type, err)
	}
	return kafkago.Message{
		Key:   []byte(key),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(env.Type)},
			{Key: "emitted_at", Value: []byte(env.EmittedAt.Format(time.RFC3339))},
		},
	}, nil
}
