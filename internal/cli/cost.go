package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/oversight-dev/agentgate/internal/ledger"
)

var (
	costSession      string
	costAgent        string
	costModel        string
	costInputTokens  int
	costOutputTokens int
	costUSD          float64
)

func init() {
	rootCmd.AddCommand(costCmd)
	costCmd.AddCommand(costRecordCmd)
	costRecordCmd.Flags().StringVar(&costSession, "session", "", "Session ID (required)")
	costRecordCmd.Flags().StringVar(&costAgent, "agent", "", "Agent identifier")
	costRecordCmd.Flags().StringVar(&costModel, "model", "", "Model name")
	costRecordCmd.Flags().IntVar(&costInputTokens, "input-tokens", 0, "Input token count")
	costRecordCmd.Flags().IntVar(&costOutputTokens, "output-tokens", 0, "Output token count")
	costRecordCmd.Flags().Float64Var(&costUSD, "cost", 0, "Cost in USD (required)")
	_ = costRecordCmd.MarkFlagRequired("session")
	_ = costRecordCmd.MarkFlagRequired("cost")
}

var costCmd = &cobra.Command{
	Use:   "cost",
	Short: "Budget ledger operations",
}

var costRecordCmd = &cobra.Command{
	Use:   "record",
	Short: "Report an already-incurred cost to the ledger",
	Long: "Appends one cost event. Costs are reported after the fact, not\n" +
		"speculatively; do not double-report the same event.",
	RunE: runCostRecord,
}

func runCostRecord(cmd *cobra.Command, args []string) error {
	g, _, cleanup, err := openGate()
	if err != nil {
		return err
	}
	defer cleanup()

	rec := ledger.CostRecord{
		Timestamp:    time.Now().UTC(),
		SessionID:    costSession,
		Agent:        costAgent,
		Model:        costModel,
		InputTokens:  costInputTokens,
		OutputTokens: costOutputTokens,
		CostUSD:      costUSD,
	}
	if err := g.Ledger().RecordCost(rec); err != nil {
		return err
	}
	fmt.Printf("recorded $%.2f for session %s\n", costUSD, costSession)
	return nil
}
