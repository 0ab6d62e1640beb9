package main

import (
	"github.com/spf13/cobra"
)

const defaultConfigPath = "config.yml"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "sai-org-registry",
	Short: "Organisation registry service",
	Long: `Organisation registry service.

Serves people, departments, positions and employment records over HTTP
with API key authentication, per-client rate limiting and a tagged
in-memory cache in front of sqlite.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to configuration file")
}
