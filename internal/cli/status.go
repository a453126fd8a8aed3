package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stepgate/stepgate/internal/domain"
)

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(balanceCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status and today's budget",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	var st struct {
		Status       string                `json:"status"`
		DayKey       string                `json:"day_key"`
		NextBoundary string                `json:"next_boundary"`
		Balance      domain.BalanceSummary `json:"balance"`
		Tariff       domain.TariffConfig   `json:"tariff"`
	}
	if err := apiGet("/api/status", &st); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "Status:        %s\n", st.Status)
	fmt.Fprintf(os.Stdout, "Economic day:  %s (resets %s)\n", st.DayKey, st.NextBoundary)
	fmt.Fprintf(os.Stdout, "Balance:       %d steps = %d min\n", st.Balance.TotalStepsBalance, st.Balance.RemainingMinutes)
	fmt.Fprintf(os.Stdout, "Spent today:   %d steps / %d min\n", st.Balance.SpentSteps, st.Balance.SpentMinutes)
	fmt.Fprintf(os.Stdout, "Tariff:        %d steps/min, %d steps/open\n", st.Tariff.StepsPerMinute, st.Tariff.EntryCostSteps)
	return nil
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the current spendable balance",
	RunE:  runBalance,
}

func runBalance(cmd *cobra.Command, args []string) error {
	var b domain.BalanceSummary
	if err := apiGet("/api/balance", &b); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "%d steps = %d minutes (%d steps carried)\n",
		b.TotalStepsBalance, b.RemainingMinutes, b.CarriedSteps)
	return nil
}
