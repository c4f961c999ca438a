package gateway

import (
	"sync"
	"time"

	"github.com/couchcryptid/rainwatch/internal/domain"
	"github.com/jonboulle/clockwork"
)

// DailyQuota tracks the provider's per-calendar-day call budget. The day
// boundary is computed in the provider's timezone, not the process's.
type DailyQuota struct {
	mu    sync.Mutex
	clock clockwork.Clock
	loc   *time.Location
	limit int
	date  string
	calls int
}

// NewDailyQuota creates a quota counter for the given daily limit.
func NewDailyQuota(limit int, loc *time.Location, clock clockwork.Clock) *DailyQuota {
	return &DailyQuota{
		clock: clock,
		loc:   loc,
		limit: limit,
	}
}

// Allow consumes one call from today's budget. Returns ErrQuotaExceeded once
// the budget is spent; the caller must not contact the provider in that case.
func (q *DailyQuota) Allow() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rollover()
	if q.calls >= q.limit {
		return domain.ErrQuotaExceeded
	}
	q.calls++
	return nil
}

// Usage returns today's budget snapshot.
func (q *DailyQuota) Usage() domain.QuotaUsage {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rollover()
	return domain.QuotaUsage{
		Date:      q.date,
		Calls:     q.calls,
		Limit:     q.limit,
		Remaining: q.limit - q.calls,
	}
}

// rollover resets the counter when the provider-local day changes.
// Caller holds q.mu.
func (q *DailyQuota) rollover() {
	today := q.clock.Now().In(q.loc).Format("2006-01-02")
	if today != q.date {
		q.date = today
		q.calls = 0
	}
}
