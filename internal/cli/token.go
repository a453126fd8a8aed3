package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stepgate/stepgate/internal/domain"
)

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenValidateCmd)
	tokenCmd.AddCommand(tokenConsumeCmd)
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Inspect and consume handoff tokens",
}

var tokenValidateCmd = &cobra.Command{
	Use:   "validate TOKEN_ID",
	Short: "Report a token's lifecycle state",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenValidate,
}

func runTokenValidate(cmd *cobra.Command, args []string) error {
	var resp struct {
		State domain.TokenState `json:"state"`
	}
	if err := apiGet("/api/tokens/"+args[0], &resp); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "%s: %s\n", args[0], resp.State)
	return nil
}

var tokenConsumeCmd = &cobra.Command{
	Use:   "consume TOKEN_ID",
	Short: "Redeem a token once, confirming the paid open",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenConsume,
}

func runTokenConsume(cmd *cobra.Command, args []string) error {
	var tok domain.HandoffToken
	if err := apiSend("POST", "/api/tokens/"+args[0]+"/consume", nil, &tok); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Consumed: entry into %s confirmed\n", tok.TargetAppName)
	return nil
}
