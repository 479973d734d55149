package main

import (
	"github.com/spf13/cobra"

	"github.com/aatumaykin/odoosweep/internal/constants"
)

var (
	configPath string
	envPath    string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "odoosweep",
	Short: "odoosweep - cleanup and reset for Odoo instances",
	Long: `odoosweep talks to Odoo instances over JSON-RPC and removes test data,
stale drafts, orphans and old logs, or resets an instance to its defaults.
Every run can be simulated first and produces a report.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default "+constants.DefaultConfigPath+")")
	rootCmd.PersistentFlags().StringVar(&envPath, "env-file", constants.DefaultEnvPath, "optional .env file loaded before the config")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(rpcCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(serveCmd)
}
