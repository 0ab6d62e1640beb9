package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/saiset-co/sai-org-registry/health"
)

// Version is set with -ldflags "-X main.Version=...".
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		info := health.Build(Version)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "sai-org-registry version: %s\n", info.Version)
		fmt.Fprintf(out, "  git commit: %s\n", info.GitCommit)
		if info.BuildTime != "" {
			fmt.Fprintf(out, "  build time: %s\n", info.BuildTime)
		}
		fmt.Fprintf(out, "  go version: %s\n", info.GoVersion)
		fmt.Fprintf(out, "  platform:   %s/%s\n", info.OS, info.Arch)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
