package agentgate

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/oversight-dev/agentgate/internal/audit"
	"github.com/oversight-dev/agentgate/internal/config"
	"github.com/oversight-dev/agentgate/internal/gate"
	"github.com/oversight-dev/agentgate/internal/store"
)

// Client runs the gate pipeline in-process. Safe for concurrent tool
// calls; the shared stores serialize across goroutines the same way
// they do across processes.
type Client struct {
	cfg       clientConfig
	gate      *gate.Gate
	closeFunc func() error
}

// New creates a Client with the given options. Config warnings degrade
// to defaults, matching the CLI.
func New(opts ...Option) (*Client, error) {
	cfg := clientConfig{agentID: "sdk"}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.sessionID == "" {
		cfg.sessionID = uuid.NewString()
	}
	if cfg.user == "" {
		cfg.user = os.Getenv("USER")
	}

	gateCfg, warnings := config.Load(cfg.configPath)
	for _, w := range warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}

	db, err := store.Open(gateCfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("agentgate: open store: %w", err)
	}

	auditLog := audit.New(gateCfg.AuditLogPath(), audit.Options{
		MaxBytes:      gateCfg.MaxAuditFileBytes,
		MaxBackups:    gateCfg.MaxAuditBackups,
		RetentionDays: gateCfg.RetentionDays,
	})

	return &Client{
		cfg:       cfg,
		gate:      gate.New(gateCfg, db, auditLog),
		closeFunc: db.Close,
	}, nil
}

// SessionID returns the session this client reports under.
func (c *Client) SessionID() string {
	return c.cfg.sessionID
}

// Close releases the underlying store.
func (c *Client) Close() error {
	return c.closeFunc()
}

// ToolFunc is the function signature that Wrap guards.
type ToolFunc func(ctx context.Context, action Action) (Outcome, error)

// Wrap returns a ToolFunc that runs the pre-phase before fn and the
// post-phase after. A rejection returns *BlockedError without calling
// fn; advisory warnings are logged and the call proceeds. Post-phase
// failures are logged but never turn a completed call into an error.
func (c *Client) Wrap(fn ToolFunc) ToolFunc {
	return func(ctx context.Context, action Action) (Outcome, error) {
		req := gate.Request{
			Agent:            c.cfg.agentID,
			Operation:        action.Operation,
			Tool:             action.Tool,
			File:             action.File,
			EstimatedCostUSD: action.EstimatedUSD,
			SessionID:        c.cfg.sessionID,
			User:             c.cfg.user,
		}

		d := c.gate.Pre(req)
		if d.Rejected() {
			c.gate.RecordDecision(req, d)
			return Outcome{}, &BlockedError{
				Action:     action,
				ReasonCode: d.ReasonCode,
				Reason:     d.Reason,
			}
		}
		for _, w := range d.Warnings {
			log.Warn().Str("agent", c.cfg.agentID).Msg(w)
		}

		outcome, err := fn(ctx, action)

		status := outcome.Status
		if status == "" {
			status = "ok"
			if err != nil {
				status = "error"
			}
		}
		c.gate.Post(gate.Report{
			Agent:         c.cfg.agentID,
			Operation:     action.Operation,
			Tool:          action.Tool,
			File:          action.File,
			Diff:          outcome.Diff,
			SessionID:     c.cfg.sessionID,
			User:          c.cfg.user,
			Outcome:       status,
			ReservationID: d.ReservationID,
			CostUSD:       outcome.CostUSD,
			Model:         outcome.Model,
			InputTokens:   outcome.InputTokens,
			OutputTokens:  outcome.OutputTokens,
		})

		return outcome, err
	}
}
