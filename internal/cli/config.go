package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)

	configSetCmd.Flags().Int64("steps-per-minute", 0, "Steps charged per minute of screen time")
	configSetCmd.Flags().Int64("entry-cost", -1, "Steps charged per gated app open (0 = unlimited)")
	configSetCmd.Flags().Int("day-end-hour", -1, "Hour the economic day resets (0..23)")
	configSetCmd.Flags().Int("day-end-minute", -1, "Minute the economic day resets (0..59)")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change the running daemon configuration",
}

type remoteConfig struct {
	StepsPerMinute   int64 `json:"steps_per_minute"`
	EntryCostSteps   int64 `json:"entry_cost_steps"`
	DayEndHour       int   `json:"day_end_hour"`
	DayEndMinute     int   `json:"day_end_minute"`
	DayPassCostSteps int64 `json:"day_pass_cost_steps"`
	TokenTTLSeconds  int64 `json:"token_ttl_seconds"`
}

func printConfig(cfg remoteConfig) {
	fmt.Fprintf(os.Stdout, "steps_per_minute:    %d\n", cfg.StepsPerMinute)
	fmt.Fprintf(os.Stdout, "entry_cost_steps:    %d\n", cfg.EntryCostSteps)
	fmt.Fprintf(os.Stdout, "day_end:             %02d:%02d\n", cfg.DayEndHour, cfg.DayEndMinute)
	fmt.Fprintf(os.Stdout, "day_pass_cost_steps: %d\n", cfg.DayPassCostSteps)
	fmt.Fprintf(os.Stdout, "token_ttl_seconds:   %d\n", cfg.TokenTTLSeconds)
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the active configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		var cfg remoteConfig
		if err := apiGet("/api/config", &cfg); err != nil {
			return err
		}
		printConfig(cfg)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change tariff or day-window settings",
	Long: `Change administered settings on the running daemon. Only the flags
you pass are changed. Tariff changes never alter past spend records; a
day-window change applies at the next boundary evaluation.`,
	RunE: runConfigSet,
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	upd := map[string]interface{}{}
	if v, _ := cmd.Flags().GetInt64("steps-per-minute"); v > 0 {
		upd["steps_per_minute"] = v
	}
	if v, _ := cmd.Flags().GetInt64("entry-cost"); v >= 0 {
		upd["entry_cost_steps"] = v
	}
	if v, _ := cmd.Flags().GetInt("day-end-hour"); v >= 0 {
		upd["day_end_hour"] = v
	}
	if v, _ := cmd.Flags().GetInt("day-end-minute"); v >= 0 {
		upd["day_end_minute"] = v
	}
	if len(upd) == 0 {
		return fmt.Errorf("nothing to change; pass at least one flag")
	}

	var cfg remoteConfig
	if err := apiSend("PUT", "/api/config", upd, &cfg); err != nil {
		return err
	}
	printConfig(cfg)
	return nil
}
