package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/oversight-dev/agentgate/internal/ratelimit"
)

func init() {
	rootCmd.AddCommand(pruneCmd)
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Run the maintenance sweeps now",
	Long: "Deletes rate-limit rows older than 24 hours, stale budget holds,\n" +
		"and rotated audit segments past retention. The same sweeps run\n" +
		"opportunistically on every post-phase; this command just forces them.",
	RunE: runPrune,
}

func runPrune(cmd *cobra.Command, args []string) error {
	g, _, cleanup, err := openGate()
	if err != nil {
		return err
	}
	defer cleanup()

	now := time.Now()
	if err := g.Limiter().Prune(now.Add(-ratelimit.PruneAge)); err != nil {
		return err
	}
	if err := g.Ledger().PruneReservations(now); err != nil {
		return err
	}
	if err := g.AuditLog().Sweep(); err != nil {
		return err
	}
	fmt.Println("pruned")
	return nil
}
