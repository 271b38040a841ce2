package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/oversight-dev/agentgate/internal/ledger"
)

var (
	statusDate    string
	statusSession string
	statusFormat  string
)

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusDate, "date", "", "UTC date (YYYY-MM-DD, default today)")
	statusCmd.Flags().StringVar(&statusSession, "session", "", "Include spend for this session")
	statusCmd.Flags().StringVarP(&statusFormat, "format", "f", "text", "Output format (text|json)")
}

// agentRate is one agent's current window usage.
type agentRate struct {
	Agent   string `json:"agent"`
	Current int    `json:"current"`
	Limit   int    `json:"limit"`
}

// statusReport is the full status snapshot.
type statusReport struct {
	Date            string      `json:"date"`
	DailySpendUSD   float64     `json:"daily_spend_usd"`
	DailyBudgetUSD  float64     `json:"daily_budget_usd"`
	SessionID       string      `json:"session_id,omitempty"`
	SessionSpendUSD float64     `json:"session_spend_usd,omitempty"`
	SessionLimitUSD float64     `json:"session_limit_usd,omitempty"`
	Rates           []agentRate `json:"rates,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current spend and rate usage",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	g, cfg, cleanup, err := openGate()
	if err != nil {
		return err
	}
	defer cleanup()

	now := time.Now()
	date := statusDate
	if date == "" {
		date = now.UTC().Format(ledger.DateFormat)
	}

	report := statusReport{Date: date, DailyBudgetUSD: cfg.DailyBudgetUSD}

	report.DailySpendUSD, err = g.Ledger().DailySpend(date)
	if err != nil {
		return err
	}

	if statusSession != "" {
		report.SessionID = statusSession
		report.SessionLimitUSD = cfg.PerSessionLimitUSD
		report.SessionSpendUSD, err = g.Ledger().SessionSpend(statusSession)
		if err != nil {
			return err
		}
	}

	agents := make([]string, 0, len(cfg.RateLimits))
	for agent := range cfg.RateLimits {
		agents = append(agents, agent)
	}
	sort.Strings(agents)
	for _, agent := range agents {
		rate, err := g.Limiter().Allow(agent, cfg.RateLimitFor(agent), now)
		if err != nil {
			return err
		}
		report.Rates = append(report.Rates, agentRate{Agent: agent, Current: rate.Current, Limit: rate.Limit})
	}

	if statusFormat == "json" {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("Daily spend (%s): $%.2f of $%.2f\n", report.Date, report.DailySpendUSD, report.DailyBudgetUSD)
	if report.SessionID != "" {
		fmt.Printf("Session %s: $%.2f of $%.2f\n", report.SessionID, report.SessionSpendUSD, report.SessionLimitUSD)
	}
	for _, r := range report.Rates {
		fmt.Printf("Rate %-12s %d/%d calls in the last hour\n", r.Agent, r.Current, r.Limit)
	}
	return nil
}
