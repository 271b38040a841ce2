// Package gate composes the guardrails around one agent operation:
// rate check, budget check, and classification in the pre-phase; audit
// entry, rate tick, and budget settlement in the post-phase. The gate
// owns no state of its own; every invocation reconstructs its view
// from the shared stores.
package gate

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/oversight-dev/agentgate/internal/audit"
	"github.com/oversight-dev/agentgate/internal/classify"
	"github.com/oversight-dev/agentgate/internal/config"
	"github.com/oversight-dev/agentgate/internal/ledger"
	"github.com/oversight-dev/agentgate/internal/ratelimit"
)

// Verdicts.
const (
	VerdictAccept = "accept"
	VerdictReject = "reject"
)

// Reason codes for rejected operations, with their process exit codes.
// Scripts embedding the gate branch on the exit value.
const (
	ReasonDailyBudget      = "daily_budget"
	ReasonSessionLimit     = "session_limit"
	ReasonRateLimit        = "rate_limit"
	ReasonBlockedOperation = "blocked_operation"
	ReasonStoreUnavailable = "store_unavailable"
)

const (
	ExitOK               = 0
	ExitDailyBudget      = 1
	ExitSessionLimit     = 2
	ExitRateLimit        = 3
	ExitBlockedOperation = 4
	ExitStoreUnavailable = 5
)

// ExitCode maps a reason code to its process exit value.
func ExitCode(reason string) int {
	switch reason {
	case "":
		return ExitOK
	case ReasonDailyBudget:
		return ExitDailyBudget
	case ReasonSessionLimit:
		return ExitSessionLimit
	case ReasonRateLimit:
		return ExitRateLimit
	case ReasonBlockedOperation:
		return ExitBlockedOperation
	case ReasonStoreUnavailable:
		return ExitStoreUnavailable
	default:
		return 1
	}
}

// Request describes one candidate operation in the pre-phase.
type Request struct {
	Agent            string  `json:"agent"`
	Operation        string  `json:"operation"`
	Tool             string  `json:"tool,omitempty"`
	File             string  `json:"file,omitempty"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd,omitempty"`
	SessionID        string  `json:"session_id,omitempty"`
	User             string  `json:"user,omitempty"`
}

// Decision is the pre-phase outcome handed back to the caller.
type Decision struct {
	Verdict       string   `json:"verdict"`
	ReasonCode    string   `json:"reason_code,omitempty"`
	Reason        string   `json:"reason,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
	SessionID     string   `json:"session_id"`
	ReservationID int64    `json:"reservation_id,omitempty"`
	ExitCode      int      `json:"exit_code"`
}

// Rejected reports whether the decision denies the operation.
func (d Decision) Rejected() bool {
	return d.Verdict == VerdictReject
}

// Report describes a completed operation in the post-phase.
type Report struct {
	Agent         string  `json:"agent"`
	Operation     string  `json:"operation"`
	Kind          string  `json:"kind,omitempty"` // tool_call | file_change | api_call
	Tool          string  `json:"tool,omitempty"`
	File          string  `json:"file,omitempty"`
	Action        string  `json:"action,omitempty"`
	Diff          string  `json:"diff,omitempty"`
	Service       string  `json:"service,omitempty"`
	Target        string  `json:"target,omitempty"`
	SessionID     string  `json:"session_id,omitempty"`
	User          string  `json:"user,omitempty"`
	Outcome       string  `json:"outcome,omitempty"`
	ReservationID int64   `json:"reservation_id,omitempty"`
	CostUSD       float64 `json:"cost_usd,omitempty"`
	Model         string  `json:"model,omitempty"`
	InputTokens   int     `json:"input_tokens,omitempty"`
	OutputTokens  int     `json:"output_tokens,omitempty"`
}

// PostResult is the post-phase outcome.
type PostResult struct {
	AuditWritten bool   `json:"audit_written"`
	Error        string `json:"error,omitempty"`
}

// Gate wires the guardrails to one configuration and one set of stores.
type Gate struct {
	cfg        *config.Config
	ledger     *ledger.Ledger
	limiter    *ratelimit.Limiter
	classifier *classify.Classifier
	auditLog   *audit.Log
	now        func() time.Time
}

// New builds a gate over an open database and audit log.
func New(cfg *config.Config, db *sql.DB, auditLog *audit.Log) *Gate {
	return &Gate{
		cfg:        cfg,
		ledger:     ledger.New(db),
		limiter:    ratelimit.New(db),
		classifier: classify.New(cfg.SensitivePaths, cfg.SensitiveFilePatterns, cfg.BlockedOperations),
		auditLog:   auditLog,
		now:        time.Now,
	}
}

// Ledger exposes the budget ledger for cost reporting and status.
func (g *Gate) Ledger() *ledger.Ledger {
	return g.ledger
}

// Limiter exposes the rate limiter for status and pruning.
func (g *Gate) Limiter() *ratelimit.Limiter {
	return g.limiter
}

// AuditLog exposes the audit logger.
func (g *Gate) AuditLog() *audit.Log {
	return g.auditLog
}

// Pre runs the admission pipeline:
//
//	START → RATE_CHECK → BUDGET_CHECK → CLASSIFY → ACCEPTED | REJECTED
//
// Rate and budget check failures that stem from store I/O reject with
// ReasonStoreUnavailable: a guardrail that cannot be evaluated fails
// closed. Advisory classification matches never reject; they attach
// warnings to the accepted verdict. There is no retry loop; retries
// are the caller's business.
func (g *Gate) Pre(req Request) Decision {
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	d := Decision{Verdict: VerdictAccept, SessionID: req.SessionID}

	if !g.cfg.Enabled {
		return d
	}
	now := g.now()

	// RATE_CHECK
	limit := g.cfg.RateLimitFor(req.Agent)
	rate, err := g.limiter.Allow(req.Agent, limit, now)
	if err != nil {
		return g.reject(d, ReasonStoreUnavailable, fmt.Sprintf("cannot evaluate rate limit: %v", err))
	}
	if rate.Exceeded {
		return g.reject(d, ReasonRateLimit, rate.Reason)
	}

	// BUDGET_CHECK: check and hold in one transaction
	limits := ledger.Limits{DailyUSD: g.cfg.DailyBudgetUSD, SessionUSD: g.cfg.PerSessionLimitUSD}
	resID, chk, err := g.ledger.Reserve(req.SessionID, req.Agent, req.EstimatedCostUSD, limits, now)
	if err != nil {
		return g.reject(d, ReasonStoreUnavailable, fmt.Sprintf("cannot evaluate budget: %v", err))
	}
	if !chk.OK {
		return g.reject(d, chk.Reason, chk.Message)
	}
	d.ReservationID = resID

	// CLASSIFY
	res := g.classifier.Classify(req.File, req.Operation)
	if res.Verdict == classify.Blocked {
		if err := g.ledger.Release(resID); err != nil {
			log.Warn().Err(err).Msg("release reservation after block")
		}
		d.ReservationID = 0
		return g.reject(d, ReasonBlockedOperation,
			fmt.Sprintf("operation matches blocked pattern %q", res.Pattern))
	}
	if res.Verdict.Advisory() {
		d.Warnings = append(d.Warnings,
			fmt.Sprintf("%s: %q matches pattern %q, recommend security review",
				res.Verdict, req.File, res.Pattern))
	}

	if g.cfg.ExpensiveThresholdUSD > 0 && req.EstimatedCostUSD >= g.cfg.ExpensiveThresholdUSD {
		d.Warnings = append(d.Warnings,
			fmt.Sprintf("expensive operation: estimated $%.2f >= $%.2f threshold",
				req.EstimatedCostUSD, g.cfg.ExpensiveThresholdUSD))
	}

	return d
}

// reject finalizes a denial, stamping the reason and its exit code.
func (g *Gate) reject(d Decision, reasonCode, reason string) Decision {
	d.Verdict = VerdictReject
	d.ReasonCode = reasonCode
	d.Reason = reason
	d.ExitCode = ExitCode(reasonCode)
	return d
}

// Post commits the side effects of an already-performed operation: one
// audit entry, one rate-limit tick, and settlement of the pre-phase
// budget hold. Failures here never undo the caller's action; the first
// error is reported in the result and the remaining steps still run.
// Opportunistic pruning of old rate rows and stale holds rides along.
func (g *Gate) Post(rep Report) PostResult {
	now := g.now()
	var result PostResult

	if g.cfg.AuditEnabled {
		if err := g.auditLog.Append(entryFromReport(rep)); err != nil {
			// Fail-open: the action already happened
			log.Error().Err(err).Msg("audit append failed")
			result.Error = err.Error()
		} else {
			result.AuditWritten = true
		}
	}

	if err := g.limiter.Record(rep.Agent, rep.Operation, now); err != nil {
		log.Error().Err(err).Msg("rate limit record failed")
		if result.Error == "" {
			result.Error = err.Error()
		}
	}

	if err := g.settle(rep, now); err != nil {
		log.Error().Err(err).Msg("budget settlement failed")
		if result.Error == "" {
			result.Error = err.Error()
		}
	}

	if err := g.limiter.Prune(now.Add(-ratelimit.PruneAge)); err != nil {
		log.Warn().Err(err).Msg("rate limit prune failed")
	}
	if err := g.ledger.PruneReservations(now); err != nil {
		log.Warn().Err(err).Msg("reservation prune failed")
	}

	return result
}

// settle converts the pre-phase hold into a real cost record, or drops
// it when the operation incurred nothing.
func (g *Gate) settle(rep Report, now time.Time) error {
	if rep.CostUSD > 0 {
		return g.ledger.Settle(rep.ReservationID, ledger.CostRecord{
			Timestamp:    now,
			SessionID:    rep.SessionID,
			Agent:        rep.Agent,
			Model:        rep.Model,
			InputTokens:  rep.InputTokens,
			OutputTokens: rep.OutputTokens,
			CostUSD:      rep.CostUSD,
		})
	}
	return g.ledger.Release(rep.ReservationID)
}

// RecordDecision appends a decision entry for a pre-phase rejection.
// Best-effort: the rejection stands whether or not the entry lands.
func (g *Gate) RecordDecision(req Request, d Decision) {
	if !g.cfg.AuditEnabled || !d.Rejected() {
		return
	}
	err := g.auditLog.Append(audit.Entry{
		Type:      audit.TypeDecision,
		Agent:     req.Agent,
		User:      req.User,
		SessionID: d.SessionID,
		Decision:  d.Verdict,
		Reason:    d.ReasonCode + ": " + d.Reason,
	})
	if err != nil {
		log.Warn().Err(err).Msg("decision audit append failed")
	}
}

// entryFromReport maps a post-phase report to its typed audit entry.
// The kind may be given explicitly; otherwise a diff implies
// file_change, a service implies api_call, anything else is tool_call.
func entryFromReport(rep Report) audit.Entry {
	kind := rep.Kind
	if kind == "" {
		switch {
		case rep.Diff != "" || rep.Action != "":
			kind = audit.TypeFileChange
		case rep.Service != "":
			kind = audit.TypeAPICall
		default:
			kind = audit.TypeToolCall
		}
	}

	e := audit.Entry{
		Type:      kind,
		Agent:     rep.Agent,
		User:      rep.User,
		SessionID: rep.SessionID,
	}
	switch kind {
	case audit.TypeFileChange:
		e.File = rep.File
		e.Action = rep.Action
		e.Diff = rep.Diff
	case audit.TypeAPICall:
		e.Service = rep.Service
		e.Operation = rep.Operation
		e.Target = rep.Target
	default:
		e.Tool = rep.Tool
		e.File = rep.File
	}
	return e
}
