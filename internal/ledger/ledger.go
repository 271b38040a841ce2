// Package ledger implements the budget side of the gate: an append-only
// record of costed events plus daily and per-session aggregation.
//
// Admission is a reservation, not a bare read: Reserve checks both limits
// and inserts a hold inside one immediate transaction, so two concurrent
// sessions cannot both read "under budget" and jointly blow past a limit.
package ledger

import (
	"database/sql"
	"fmt"
	"math"
	"time"
)

// reservationTTL bounds how long an unsettled hold counts toward spend.
// Holds older than this belong to callers that crashed between phases.
const reservationTTL = 15 * time.Minute

// DateFormat is the UTC calendar-day key used for daily aggregation.
const DateFormat = "2006-01-02"

// Reasons identifying which limit a budget check tripped.
const (
	ReasonDailyBudget  = "daily_budget"
	ReasonSessionLimit = "session_limit"
)

// CostRecord is one costed event reported by a caller after the fact.
type CostRecord struct {
	Timestamp    time.Time
	SessionID    string
	Agent        string
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
}

// Check is the outcome of a budget comparison.
type Check struct {
	OK        bool
	Reason    string // ReasonDailyBudget or ReasonSessionLimit when !OK
	Limit     float64
	Current   float64
	Estimated float64
	Message   string
}

// Limits carries the configured budget ceilings in USD.
// A zero or negative value disables that dimension.
type Limits struct {
	DailyUSD   float64
	SessionUSD float64
}

// Ledger reads and writes cost records in the shared gate database.
type Ledger struct {
	db *sql.DB
}

// New wraps an open gate database.
func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Cents converts a USD amount to integer cents, rounding half away from
// zero. All storage and limit comparisons are cent-exact.
func Cents(usd float64) int64 {
	return int64(math.Round(usd * 100))
}

// USD converts integer cents back to a USD amount.
func USD(cents int64) float64 {
	return float64(cents) / 100
}

// RecordCost appends a cost event. Duplicate reports are not detected;
// callers must not double-report.
func (l *Ledger) RecordCost(rec CostRecord) error {
	if rec.CostUSD < 0 {
		return fmt.Errorf("ledger: negative cost %.4f", rec.CostUSD)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	_, err := l.db.Exec(`
		INSERT INTO cost_ledger (ts, date, session_id, agent, model, input_tokens, output_tokens, cost_cents)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.UnixNano(), rec.Timestamp.UTC().Format(DateFormat),
		rec.SessionID, rec.Agent, rec.Model,
		rec.InputTokens, rec.OutputTokens, Cents(rec.CostUSD),
	)
	if err != nil {
		return fmt.Errorf("ledger: insert cost: %w", err)
	}
	return nil
}

// DailySpend returns the exact sum of recorded costs for a UTC calendar
// day (boundary at 00:00 UTC). Outstanding reservations are not included.
func (l *Ledger) DailySpend(date string) (float64, error) {
	var cents int64
	err := l.db.QueryRow(`SELECT COALESCE(SUM(cost_cents), 0) FROM cost_ledger WHERE date = ?`, date).Scan(&cents)
	if err != nil {
		return 0, fmt.Errorf("ledger: daily spend: %w", err)
	}
	return USD(cents), nil
}

// SessionSpend returns the sum of recorded costs for a session,
// unbounded by time.
func (l *Ledger) SessionSpend(sessionID string) (float64, error) {
	var cents int64
	err := l.db.QueryRow(`SELECT COALESCE(SUM(cost_cents), 0) FROM cost_ledger WHERE session_id = ?`, sessionID).Scan(&cents)
	if err != nil {
		return 0, fmt.Errorf("ledger: session spend: %w", err)
	}
	return USD(cents), nil
}

// CheckBudget compares projected totals against the limits without
// reserving. A projected total exactly equal to a limit passes; strictly
// greater fails.
func (l *Ledger) CheckBudget(sessionID string, estimatedUSD float64, limits Limits, now time.Time) (Check, error) {
	tx, err := l.db.Begin()
	if err != nil {
		return Check{}, fmt.Errorf("ledger: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	chk, err := checkLocked(tx, sessionID, Cents(estimatedUSD), limits, now)
	if err != nil {
		return Check{}, err
	}
	return chk, tx.Commit()
}

// Reserve atomically checks both limits and, when they pass, inserts a
// hold for the estimated cost. The returned reservation ID is settled or
// released in the post-phase. Returns id 0 when nothing was reserved
// (zero estimate or check failure).
func (l *Ledger) Reserve(sessionID, agent string, estimatedUSD float64, limits Limits, now time.Time) (int64, Check, error) {
	estCents := Cents(estimatedUSD)

	tx, err := l.db.Begin()
	if err != nil {
		return 0, Check{}, fmt.Errorf("ledger: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	chk, err := checkLocked(tx, sessionID, estCents, limits, now)
	if err != nil {
		return 0, Check{}, err
	}
	if !chk.OK || estCents == 0 {
		return 0, chk, tx.Commit()
	}

	res, err := tx.Exec(`
		INSERT INTO cost_reservations (ts, date, session_id, agent, cost_cents)
		VALUES (?, ?, ?, ?, ?)`,
		now.UnixNano(), now.UTC().Format(DateFormat), sessionID, agent, estCents,
	)
	if err != nil {
		return 0, Check{}, fmt.Errorf("ledger: insert reservation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, Check{}, fmt.Errorf("ledger: reservation id: %w", err)
	}
	return id, chk, tx.Commit()
}

// Settle replaces a reservation with the actual cost record in one
// transaction. The ledger table itself stays append-only; only the hold
// row is removed. A zero reservation ID just appends.
func (l *Ledger) Settle(reservationID int64, rec CostRecord) error {
	if rec.CostUSD < 0 {
		return fmt.Errorf("ledger: negative cost %.4f", rec.CostUSD)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("ledger: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if reservationID != 0 {
		if _, err := tx.Exec(`DELETE FROM cost_reservations WHERE id = ?`, reservationID); err != nil {
			return fmt.Errorf("ledger: delete reservation: %w", err)
		}
	}
	_, err = tx.Exec(`
		INSERT INTO cost_ledger (ts, date, session_id, agent, model, input_tokens, output_tokens, cost_cents)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Timestamp.UnixNano(), rec.Timestamp.UTC().Format(DateFormat),
		rec.SessionID, rec.Agent, rec.Model,
		rec.InputTokens, rec.OutputTokens, Cents(rec.CostUSD),
	)
	if err != nil {
		return fmt.Errorf("ledger: insert cost: %w", err)
	}
	return tx.Commit()
}

// Release drops a reservation without recording any cost. Used when the
// gate rejects after reserving, or when the operation incurred nothing.
func (l *Ledger) Release(reservationID int64) error {
	if reservationID == 0 {
		return nil
	}
	if _, err := l.db.Exec(`DELETE FROM cost_reservations WHERE id = ?`, reservationID); err != nil {
		return fmt.Errorf("ledger: release reservation: %w", err)
	}
	return nil
}

// PruneReservations removes holds older than the reservation TTL.
// Safe to call at any time; settled holds are already gone.
func (l *Ledger) PruneReservations(now time.Time) error {
	cutoff := now.Add(-reservationTTL).UnixNano()
	if _, err := l.db.Exec(`DELETE FROM cost_reservations WHERE ts < ?`, cutoff); err != nil {
		return fmt.Errorf("ledger: prune reservations: %w", err)
	}
	return nil
}

// checkLocked computes projected daily and session totals inside the
// caller's transaction. Unexpired reservations count toward both.
func checkLocked(tx *sql.Tx, sessionID string, estCents int64, limits Limits, now time.Time) (Check, error) {
	date := now.UTC().Format(DateFormat)
	resCutoff := now.Add(-reservationTTL).UnixNano()

	var dailyCents int64
	err := tx.QueryRow(`
		SELECT COALESCE((SELECT SUM(cost_cents) FROM cost_ledger WHERE date = ?), 0)
		     + COALESCE((SELECT SUM(cost_cents) FROM cost_reservations WHERE date = ? AND ts >= ?), 0)`,
		date, date, resCutoff).Scan(&dailyCents)
	if err != nil {
		return Check{}, fmt.Errorf("ledger: daily total: %w", err)
	}

	var sessionCents int64
	err = tx.QueryRow(`
		SELECT COALESCE((SELECT SUM(cost_cents) FROM cost_ledger WHERE session_id = ?), 0)
		     + COALESCE((SELECT SUM(cost_cents) FROM cost_reservations WHERE session_id = ? AND ts >= ?), 0)`,
		sessionID, sessionID, resCutoff).Scan(&sessionCents)
	if err != nil {
		return Check{}, fmt.Errorf("ledger: session total: %w", err)
	}

	if dailyLimit := Cents(limits.DailyUSD); limits.DailyUSD > 0 && dailyCents+estCents > dailyLimit {
		return Check{
			Reason:    ReasonDailyBudget,
			Limit:     limits.DailyUSD,
			Current:   USD(dailyCents),
			Estimated: USD(estCents),
			Message: fmt.Sprintf("daily budget exceeded: $%.2f spent today + $%.2f estimated > $%.2f limit",
				USD(dailyCents), USD(estCents), limits.DailyUSD),
		}, nil
	}
	if sessionLimit := Cents(limits.SessionUSD); limits.SessionUSD > 0 && sessionCents+estCents > sessionLimit {
		return Check{
			Reason:    ReasonSessionLimit,
			Limit:     limits.SessionUSD,
			Current:   USD(sessionCents),
			Estimated: USD(estCents),
			Message: fmt.Sprintf("session limit exceeded: $%.2f spent in session %s + $%.2f estimated > $%.2f limit",
				USD(sessionCents), sessionID, USD(estCents), limits.SessionUSD),
		}, nil
	}

	return Check{OK: true, Current: USD(dailyCents), Estimated: USD(estCents)}, nil
}
