package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stepgate/stepgate/internal/domain"
)

func init() {
	rootCmd.AddCommand(gateCmd)
	gateCmd.AddCommand(gateRequestCmd)
	gateCmd.AddCommand(gateOpensCmd)
	gateCmd.AddCommand(gateDayPassCmd)
}

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Request access to a protected app",
}

var gateRequestCmd = &cobra.Command{
	Use:   "request TARGET_APP",
	Short: "Ask the gate to open an app, paying the entry cost",
	Args:  cobra.ExactArgs(1),
	RunE:  runGateRequest,
}

func runGateRequest(cmd *cobra.Command, args []string) error {
	var d domain.GateDecision
	if err := apiSend("POST", "/api/gate/request", map[string]string{"target_app": args[0]}, &d); err != nil {
		return err
	}
	if d.Allowed {
		fmt.Fprintf(os.Stdout, "ALLOW  %s\n", args[0])
		fmt.Fprintf(os.Stdout, "Token: %s (consume within the TTL)\n", d.Token.TokenID)
		fmt.Fprintf(os.Stdout, "Left:  %d steps\n", d.RemainingSteps)
		return nil
	}
	fmt.Fprintf(os.Stdout, "BLOCK  %s (%s)\n", args[0], d.Reason)
	fmt.Fprintf(os.Stdout, "Balance %d steps, %d more needed\n", d.RemainingSteps, d.StepsShort)
	return nil
}

var gateOpensCmd = &cobra.Command{
	Use:   "opens TARGET_APP",
	Short: "Show how many opens today's balance affords",
	Args:  cobra.ExactArgs(1),
	RunE:  runGateOpens,
}

func runGateOpens(cmd *cobra.Command, args []string) error {
	var resp struct {
		OpensLeft int64 `json:"opens_left"`
		Unlimited bool  `json:"unlimited"`
		EntryCost int64 `json:"entry_cost"`
	}
	if err := apiGet("/api/gate/opens?target_app="+args[0], &resp); err != nil {
		return err
	}
	if resp.Unlimited {
		fmt.Fprintf(os.Stdout, "%s: unlimited opens\n", args[0])
		return nil
	}
	fmt.Fprintf(os.Stdout, "%s: %d opens left at %d steps each\n", args[0], resp.OpensLeft, resp.EntryCost)
	return nil
}

var gateDayPassCmd = &cobra.Command{
	Use:   "daypass TARGET_APP",
	Short: "Buy a day pass: unlimited opens until the next day boundary",
	Args:  cobra.ExactArgs(1),
	RunE:  runGateDayPass,
}

func runGateDayPass(cmd *cobra.Command, args []string) error {
	var resp struct {
		Balance domain.BalanceSummary `json:"balance"`
	}
	if err := apiSend("POST", "/api/gate/daypass", map[string]string{"target_app": args[0]}, &resp); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Day pass active for %s\n", args[0])
	fmt.Fprintf(os.Stdout, "Balance: %d steps\n", resp.Balance.TotalStepsBalance)
	return nil
}
