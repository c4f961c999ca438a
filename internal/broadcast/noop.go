package broadcast

import (
	"context"

	"github.com/couchcryptid/rainwatch/internal/domain"
)

// Noop discards all events. Used when broadcasting is disabled.
type Noop struct{}

func (Noop) EmitAlarm(context.Context, domain.AlarmEvent) error              { return nil }
func (Noop) EmitRegionalCounts(context.Context, map[int]int) error           { return nil }
func (Noop) EmitAlertState(context.Context, domain.RegionalAlertState) error { return nil }
