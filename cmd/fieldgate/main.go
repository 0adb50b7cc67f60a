package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "fieldgate",
		Short:        "Log gateway that attaches static fields to every record",
		SilenceUsage: true,
		// Running the bare binary serves.
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("FIELDGATE_CONFIG"), "path to the YAML config file")

	root.AddCommand(
		newServeCmd(&configPath),
		newFieldsCmd(&configPath),
	)
	return root
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
