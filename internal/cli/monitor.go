package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oversight-dev/agentgate/internal/config"
	"github.com/oversight-dev/agentgate/internal/monitor"
)

func init() {
	rootCmd.AddCommand(monitorCmd)
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Follow the audit log live",
	Long:  "Tails the live audit segment and prints entries as agents act.\nCtrl-C to stop.",
	RunE:  runMonitor,
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, _ := config.Load(flagConfig)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	t := monitor.NewTailer(cfg.AuditLogPath(), os.Stdout)
	if err := t.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
