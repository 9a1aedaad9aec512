package core

import (
	"sync"
	"time"
)

// QuotaCounter is the shared daily auto-response counter. TryConsume and
// ResetIfNewDay share one mutex so a reset can never race a consume.
type QuotaCounter struct {
	mu        sync.Mutex
	count     int
	cap       int
	lastReset time.Time // truncated to a calendar date
}

// NewQuotaCounter creates a counter with the given daily cap.
func NewQuotaCounter(dailyCap int, now time.Time) *QuotaCounter {
	return &QuotaCounter{
		cap:       dailyCap,
		lastReset: dateOf(now),
	}
}

// TryConsume atomically claims one auto-response slot. It returns false when
// the daily cap is already reached; two concurrent callers can never both
// claim the last slot.
func (q *QuotaCounter) TryConsume() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count >= q.cap {
		return false
	}
	q.count++
	return true
}

// ResetIfNewDay zeroes the counter when today differs from the last reset
// date. It reports whether a reset happened; calling it again with the same
// date is a no-op.
func (q *QuotaCounter) ResetIfNewDay(today time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	d := dateOf(today)
	if d.Equal(q.lastReset) {
		return false
	}
	q.count = 0
	q.lastReset = d
	return true
}

// State returns a snapshot for the routing policy.
func (q *QuotaCounter) State() QuotaState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QuotaState{Count: q.count, Cap: q.cap}
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
