// Package ratelimit counts agent calls over a trailing window shared
// across gate processes. One row per attempted call; counting and
// recording are separate phases (check in pre, tick in post).
package ratelimit

import (
	"database/sql"
	"fmt"
	"time"
)

// Window is the trailing span over which calls are counted.
// It is fixed "one hour back from now", not calendar-aligned.
const Window = time.Hour

// PruneAge is how old a call row must be before pruning may remove it.
// Deliberately much larger than Window so a concurrent count never loses
// a row it was about to include.
const PruneAge = 24 * time.Hour

// CheckResult is the outcome of a rate limit check.
type CheckResult struct {
	Exceeded bool
	Current  int
	Limit    int
	Reason   string
}

// Limiter reads and writes call rows in the shared gate database.
type Limiter struct {
	db *sql.DB
}

// New wraps an open gate database.
func New(db *sql.DB) *Limiter {
	return &Limiter{db: db}
}

// Allow counts the agent's calls inside the trailing window and compares
// against the limit. A call exactly at the window boundary (now - 1h) is
// excluded: the comparison is strictly ts > cutoff. Rejects when the
// current count has already reached the limit.
func (l *Limiter) Allow(agent string, limit int, now time.Time) (CheckResult, error) {
	cutoff := now.Add(-Window).UnixNano()
	var count int
	err := l.db.QueryRow(`SELECT COUNT(*) FROM rate_calls WHERE agent = ? AND ts > ?`, agent, cutoff).Scan(&count)
	if err != nil {
		return CheckResult{}, fmt.Errorf("ratelimit: count calls: %w", err)
	}

	if limit > 0 && count >= limit {
		return CheckResult{
			Exceeded: true,
			Current:  count,
			Limit:    limit,
			Reason: fmt.Sprintf("rate limit exceeded for agent %q: %d calls in the last hour (limit %d)",
				agent, count, limit),
		}, nil
	}
	return CheckResult{Current: count, Limit: limit}, nil
}

// Record inserts a call row. Invoked on the post-phase of every accepted
// operation.
func (l *Limiter) Record(agent, operation string, now time.Time) error {
	_, err := l.db.Exec(`INSERT INTO rate_calls (ts, agent, operation) VALUES (?, ?, ?)`,
		now.UnixNano(), agent, operation)
	if err != nil {
		return fmt.Errorf("ratelimit: record call: %w", err)
	}
	return nil
}

// Prune deletes call rows strictly older than the cutoff. Best-effort
// storage bound, not a correctness requirement; callers pass
// now - PruneAge, never anything inside the counting window.
func (l *Limiter) Prune(olderThan time.Time) error {
	if _, err := l.db.Exec(`DELETE FROM rate_calls WHERE ts < ?`, olderThan.UnixNano()); err != nil {
		return fmt.Errorf("ratelimit: prune: %w", err)
	}
	return nil
}
