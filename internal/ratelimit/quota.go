package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/clareai/llmgateway/internal/apierr"
	"github.com/clareai/llmgateway/internal/domain"
)

// QuotaTracker maintains per-KeyInfo hourly/daily request and token
// counters (§3 UsageCounter, §4.3 quota tracking).
type QuotaTracker struct {
	mu       sync.Mutex
	counters map[string]*domain.UsageCounter
}

func NewQuotaTracker() *QuotaTracker {
	return &QuotaTracker{counters: make(map[string]*domain.UsageCounter)}
}

func windowKey(t time.Time) (string, string) {
	day := t.Format("2006-01-02")
	return day, fmt.Sprintf("%s:%02d", day, t.Hour())
}

func (q *QuotaTracker) counterFor(keyID string) *domain.UsageCounter {
	c, ok := q.counters[keyID]
	if !ok {
		c = &domain.UsageCounter{KeyID: keyID, Windows: make(map[string]*domain.UsageWindow)}
		q.counters[keyID] = c
	}
	return c
}

func (q *QuotaTracker) windowFor(c *domain.UsageCounter, id string, day string, hour int) *domain.UsageWindow {
	w, ok := c.Windows[id]
	if !ok {
		w = &domain.UsageWindow{Date: day, Hour: hour}
		c.Windows[id] = w
	}
	return w
}

// sums returns the hourly and daily totals for keyID as of now.
func (q *QuotaTracker) sums(keyID string, now time.Time) (hourReq, hourTok, dayReq, dayTok int64) {
	c, ok := q.counters[keyID]
	if !ok {
		return 0, 0, 0, 0
	}
	day, hourID := windowKey(now)
	if w, ok := c.Windows[hourID]; ok {
		hourReq, hourTok = w.Requests, w.Tokens
	}
	for id, w := range c.Windows {
		if w.Date == day {
			_ = id
			dayReq += w.Requests
			dayTok += w.Tokens
		}
	}
	return
}

// CheckAndReserveRequest admits one request against the hourly/daily request
// quota, incrementing counters pre-dispatch as required by §4.3.
func (q *QuotaTracker) CheckAndReserveRequest(key *domain.KeyInfo) error {
	now := time.Now()
	q.mu.Lock()
	defer q.mu.Unlock()

	hourReq, _, dayReq, _ := q.sums(key.ID, now)
	if key.Quota.RequestsPerHour > 0 && hourReq+1 > key.Quota.RequestsPerHour {
		return apierr.NewQuotaExceeded(key.Quota.RequestsPerHour, hourReq, nextHourBoundary(now))
	}
	if key.Quota.RequestsPerDay > 0 && dayReq+1 > key.Quota.RequestsPerDay {
		return apierr.NewQuotaExceeded(key.Quota.RequestsPerDay, dayReq, nextDayBoundary(now))
	}

	day, hourID := windowKey(now)
	c := q.counterFor(key.ID)
	w := q.windowFor(c, hourID, day, now.Hour())
	w.Requests++
	return nil
}

// RecordTokens adds tokens to the current hour's window, post-response, as
// required by §4.3 ("token counts are recorded post-response").
func (q *QuotaTracker) RecordTokens(keyID string, tokens int64) {
	if tokens <= 0 {
		return
	}
	now := time.Now()
	day, hourID := windowKey(now)
	q.mu.Lock()
	defer q.mu.Unlock()
	c := q.counterFor(keyID)
	w := q.windowFor(c, hourID, day, now.Hour())
	w.Tokens += tokens
}

// CheckTokenQuota reports a QuotaExceededError if adding tokens would
// breach the key's hourly or daily token quota, without mutating counters.
func (q *QuotaTracker) CheckTokenQuota(key *domain.KeyInfo, tokens int64) error {
	now := time.Now()
	q.mu.Lock()
	hourTok, dayTok := func() (int64, int64) {
		_, h, _, d := q.sums(key.ID, now)
		return h, d
	}()
	q.mu.Unlock()
	if key.Quota.TokensPerHour > 0 && hourTok+tokens > key.Quota.TokensPerHour {
		return apierr.NewQuotaExceeded(key.Quota.TokensPerHour, hourTok, nextHourBoundary(now))
	}
	if key.Quota.TokensPerDay > 0 && dayTok+tokens > key.Quota.TokensPerDay {
		return apierr.NewQuotaExceeded(key.Quota.TokensPerDay, dayTok, nextDayBoundary(now))
	}
	return nil
}

func nextHourBoundary(t time.Time) time.Time {
	return t.Truncate(time.Hour).Add(time.Hour)
}

func nextDayBoundary(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
}

// Reap drops windows older than 7 days, per §3's UsageCounter invariant.
func (q *QuotaTracker) Reap() int {
	cutoff := time.Now().AddDate(0, 0, -7).Format("2006-01-02")
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, c := range q.counters {
		for id, w := range c.Windows {
			if w.Date < cutoff {
				delete(c.Windows, id)
				n++
			}
		}
	}
	return n
}
