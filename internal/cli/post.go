package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oversight-dev/agentgate/internal/gate"
)

var (
	postAgent        string
	postOperation    string
	postKind         string
	postTool         string
	postFile         string
	postAction       string
	postDiff         string
	postService      string
	postTarget       string
	postSession      string
	postOutcome      string
	postReservation  int64
	postCost         float64
	postModel        string
	postInputTokens  int
	postOutputTokens int
)

func init() {
	rootCmd.AddCommand(postCmd)
	postCmd.Flags().StringVar(&postAgent, "agent", "", "Agent identifier (required)")
	postCmd.Flags().StringVar(&postOperation, "operation", "", "Operation string")
	postCmd.Flags().StringVar(&postKind, "kind", "", "Audit entry kind: tool_call | file_change | api_call (inferred when omitted)")
	postCmd.Flags().StringVar(&postTool, "tool", "", "Tool name")
	postCmd.Flags().StringVar(&postFile, "file", "", "File path the operation touched")
	postCmd.Flags().StringVar(&postAction, "action", "", "File change action, e.g. edit, create, delete")
	postCmd.Flags().StringVar(&postDiff, "diff", "", "Unified diff of the file change")
	postCmd.Flags().StringVar(&postService, "service", "", "API service name")
	postCmd.Flags().StringVar(&postTarget, "target", "", "API call target")
	postCmd.Flags().StringVar(&postSession, "session", "", "Session ID from the pre-phase")
	postCmd.Flags().StringVar(&postOutcome, "outcome", "ok", "Operation outcome")
	postCmd.Flags().Int64Var(&postReservation, "reservation-id", 0, "Reservation ID from the pre-phase")
	postCmd.Flags().Float64Var(&postCost, "cost", 0, "Actual cost incurred in USD")
	postCmd.Flags().StringVar(&postModel, "model", "", "Model that incurred the cost")
	postCmd.Flags().IntVar(&postInputTokens, "input-tokens", 0, "Input token count")
	postCmd.Flags().IntVar(&postOutputTokens, "output-tokens", 0, "Output token count")
	_ = postCmd.MarkFlagRequired("agent")
}

var postCmd = &cobra.Command{
	Use:   "post",
	Short: "Commit the side effects of a completed operation",
	Long: "Runs the post-phase: appends the audit entry, records the rate-limit\n" +
		"tick, and settles the pre-phase budget hold with the actual cost.\n" +
		"Failures are reported but never fail the already-performed action;\n" +
		"the exit code is always 0 when the command itself ran.",
	RunE: runPost,
}

func runPost(cmd *cobra.Command, args []string) error {
	g, _, cleanup, err := openGate()
	if err != nil {
		return err
	}
	defer cleanup()

	result := g.Post(gate.Report{
		Agent:         postAgent,
		Operation:     postOperation,
		Kind:          postKind,
		Tool:          postTool,
		File:          postFile,
		Action:        postAction,
		Diff:          postDiff,
		Service:       postService,
		Target:        postTarget,
		SessionID:     postSession,
		User:          currentUser(),
		Outcome:       postOutcome,
		ReservationID: postReservation,
		CostUSD:       postCost,
		Model:         postModel,
		InputTokens:   postInputTokens,
		OutputTokens:  postOutputTokens,
	})

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
