package main

import (
	"github.com/spf13/cobra"

	"github.com/saiset-co/sai-org-registry/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := service.NewService(cmd.Context(), configPath)
		if err != nil {
			return err
		}
		return svc.Start()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
