// Package cli implements the stepgate command line interface.
package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	serverAddr string
)

var rootCmd = &cobra.Command{
	Use:   "stepgate",
	Short: "Step-to-time economy and access gate engine",
	Long: `StepGate converts physical activity (steps, sleep) into a daily
spendable screen-time budget and gates entry into protected apps.

The daemon (stepgate serve) owns the ledger; the other commands talk to
its HTTP API.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigPath(), "Path to the TOML config file")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "http://127.0.0.1:8422", "Daemon API address")
}

// defaultConfigPath returns ~/.stepgate/config.toml, honoring
// STEPGATE_HOME.
func defaultConfigPath() string {
	if env := os.Getenv("STEPGATE_HOME"); env != "" {
		return filepath.Join(env, "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".stepgate", "config.toml")
}
