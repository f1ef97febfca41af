// Package cmd implements the CLI commands for dawn.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "dawn",
	Short: "Authenticated Roblox trading client",
	Long: "dawn maintains an authenticated Roblox session, keeps a local\n" +
		"collectible valuation cache in sync with the Rolimons feed, and\n" +
		"exposes account and inventory operations over a resilient request\n" +
		"engine with CSRF handling, retries, and rate limiting.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "config file path")
	rootCmd.PersistentFlags().String("output", "table", "output format (table, json)")

	cobra.CheckErr(viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output")))

	viper.SetEnvPrefix("DAWN")
	viper.AutomaticEnv()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func jsonOutput() bool {
	return viper.GetString("output") == "json"
}
