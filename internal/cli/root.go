package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/oversight-dev/agentgate/internal/audit"
	"github.com/oversight-dev/agentgate/internal/config"
	"github.com/oversight-dev/agentgate/internal/gate"
	"github.com/oversight-dev/agentgate/internal/store"
)

var (
	flagConfig  string
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "agentgate",
	Short: "Local policy gate for AI coding agents",
	Long: "Mediates every agent operation against a spending budget, a per-agent\n" +
		"call-rate limit, and security-sensitive-operation rules, backed by a\n" +
		"durable rotating audit trail. Invoked once before (pre) and once after\n" +
		"(post) each operation.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := zerolog.WarnLevel
		if flagVerbose {
			level = zerolog.DebugLevel
		}
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(level).With().Timestamp().Logger()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config YAML (default: ~/.agentgate/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openGate loads config, opens the shared stores, and builds the gate.
// Config warnings are logged, never fatal. The returned cleanup closes
// the database.
func openGate() (*gate.Gate, *config.Config, func(), error) {
	cfg, warnings := config.Load(flagConfig)
	for _, w := range warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}

	db, err := store.Open(cfg.DatabasePath())
	if err != nil {
		return nil, nil, nil, err
	}

	auditLog := audit.New(cfg.AuditLogPath(), audit.Options{
		MaxBytes:      cfg.MaxAuditFileBytes,
		MaxBackups:    cfg.MaxAuditBackups,
		RetentionDays: cfg.RetentionDays,
	})

	g := gate.New(cfg, db, auditLog)
	return g, cfg, func() { _ = db.Close() }, nil
}

// currentUser resolves the user recorded in audit envelopes.
func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}
