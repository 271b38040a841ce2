package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oversight-dev/agentgate/internal/gate"
)

var (
	preAgent     string
	preOperation string
	preTool      string
	preFile      string
	preCost      float64
	preSession   string
)

func init() {
	rootCmd.AddCommand(preCmd)
	preCmd.Flags().StringVar(&preAgent, "agent", "", "Agent identifier (required)")
	preCmd.Flags().StringVar(&preOperation, "operation", "", "Operation string, e.g. the shell command")
	preCmd.Flags().StringVar(&preTool, "tool", "", "Tool name")
	preCmd.Flags().StringVar(&preFile, "file", "", "File path the operation touches")
	preCmd.Flags().Float64Var(&preCost, "estimated-cost", 0, "Estimated cost in USD")
	preCmd.Flags().StringVar(&preSession, "session", "", "Session ID (generated when omitted)")
	_ = preCmd.MarkFlagRequired("agent")
}

var preCmd = &cobra.Command{
	Use:   "pre",
	Short: "Admission check before an agent operation",
	Long: "Runs the pre-phase pipeline: rate check, budget check, classification.\n" +
		"Prints the decision as JSON and exits with the mapped code:\n" +
		"  0 ok, 1 daily budget, 2 session limit, 3 rate limit,\n" +
		"  4 blocked operation, 5 store unavailable.\n\n" +
		"On accept, pass the printed reservation_id and session_id back to\n" +
		"'agentgate post' after performing the operation.",
	RunE: runPre,
}

func runPre(cmd *cobra.Command, args []string) error {
	g, _, cleanup, err := openGate()
	if err != nil {
		// Fail-closed: a guardrail that cannot open its stores admits nothing
		fmt.Fprintf(os.Stderr, "agentgate: %v\n", err)
		os.Exit(gate.ExitStoreUnavailable)
	}
	defer cleanup()

	req := gate.Request{
		Agent:            preAgent,
		Operation:        preOperation,
		Tool:             preTool,
		File:             preFile,
		EstimatedCostUSD: preCost,
		SessionID:        preSession,
		User:             currentUser(),
	}

	d := g.Pre(req)
	d.ExitCode = gate.ExitCode(d.ReasonCode)
	if d.Rejected() {
		g.RecordDecision(req, d)
	}

	out, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if d.ExitCode != gate.ExitOK {
		os.Exit(d.ExitCode)
	}
	return nil
}
