package scheduler

import (
	"sync"
	"time"
)

const slidingWindow = time.Minute

// Limits are the per-pair quota ceilings.
type Limits struct {
	RPM   int
	TPM   int
	Daily int
}

type tokenEvent struct {
	at     time.Time
	tokens int
}

// QuotaState tracks usage for one pair. All mutation goes through its methods;
// the embedded mutex makes each read-modify-write atomic per instance, which is
// the locking unit (never the whole matrix).
type QuotaState struct {
	mu sync.Mutex

	limits Limits

	requestTimes []time.Time
	tokenEvents  []tokenEvent

	dailyCount int
	dailyDate  string // YYYY-MM-DD of the daily counter

	cooldownUntil time.Time
	failureCount  int
}

// NewQuotaState constructs quota tracking with the supplied limits.
func NewQuotaState(limits Limits) *QuotaState {
	return &QuotaState{limits: limits}
}

// RecordAttempt counts a request before the network call is issued, so a crash
// mid-call still counts against quota.
func (q *QuotaState) RecordAttempt(now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.resetDailyLocked(now)
	q.pruneLocked(now)
	q.requestTimes = append(q.requestTimes, now)
	q.dailyCount++
}

// RecordSuccess registers the reported token cost and clears the rolling
// failure count.
func (q *QuotaState) RecordSuccess(now time.Time, tokens int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pruneLocked(now)
	if tokens > 0 {
		q.tokenEvents = append(q.tokenEvents, tokenEvent{at: now, tokens: tokens})
	}
	q.failureCount = 0
}

// RecordFailure puts the pair into cooldown for the supplied duration.
func (q *QuotaState) RecordFailure(now time.Time, cooldown time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.failureCount++
	until := now.Add(cooldown)
	if until.After(q.cooldownUntil) {
		q.cooldownUntil = until
	}
}

// Available reports whether the pair may be selected. All four conditions are
// considered together: cooldown, daily cap, RPM window, TPM window.
func (q *QuotaState) Available(now time.Time) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.resetDailyLocked(now)
	q.pruneLocked(now)

	if now.Before(q.cooldownUntil) {
		return false
	}
	if q.limits.Daily > 0 && q.dailyCount >= q.limits.Daily {
		return false
	}
	if q.limits.RPM > 0 && len(q.requestTimes) >= q.limits.RPM {
		return false
	}
	if q.limits.TPM > 0 && q.windowTokensLocked() >= q.limits.TPM {
		return false
	}
	return true
}

// DailyCount returns today's request count.
func (q *QuotaState) DailyCount(now time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.resetDailyLocked(now)
	return q.dailyCount
}

// Snapshot captures current quota state for display.
type Snapshot struct {
	DailyCount    int
	WindowReqs    int
	WindowTokens  int
	CooldownUntil time.Time
	FailureCount  int
	Available     bool
}

// Snapshot returns a point-in-time view of the quota state.
func (q *QuotaState) Snapshot(now time.Time) Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.resetDailyLocked(now)
	q.pruneLocked(now)

	snap := Snapshot{
		DailyCount:   q.dailyCount,
		WindowReqs:   len(q.requestTimes),
		WindowTokens: q.windowTokensLocked(),
		FailureCount: q.failureCount,
	}
	if now.Before(q.cooldownUntil) {
		snap.CooldownUntil = q.cooldownUntil
	}
	snap.Available = !now.Before(q.cooldownUntil) &&
		(q.limits.Daily <= 0 || snap.DailyCount < q.limits.Daily) &&
		(q.limits.RPM <= 0 || snap.WindowReqs < q.limits.RPM) &&
		(q.limits.TPM <= 0 || snap.WindowTokens < q.limits.TPM)
	return snap
}

func (q *QuotaState) windowTokensLocked() int {
	total := 0
	for _, event := range q.tokenEvents {
		total += event.tokens
	}
	return total
}

func (q *QuotaState) pruneLocked(now time.Time) {
	cutoff := now.Add(-slidingWindow)

	kept := q.requestTimes[:0]
	for _, t := range q.requestTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	q.requestTimes = kept

	keptTokens := q.tokenEvents[:0]
	for _, event := range q.tokenEvents {
		if event.at.After(cutoff) {
			keptTokens = append(keptTokens, event)
		}
	}
	q.tokenEvents = keptTokens
}

func (q *QuotaState) resetDailyLocked(now time.Time) {
	date := now.UTC().Format("2006-01-02")
	if q.dailyDate != date {
		q.dailyDate = date
		q.dailyCount = 0
	}
}
