package main

import (
	"github.com/spf13/cobra"

	"github.com/dshills/manualrag/internal/storage"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		// skip config loading
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			printf(out, "manualrag\n")
			printf(out, "Version: %s\n", version)
			printf(out, "Build Time: %s\n", buildTime)
			printf(out, "Build Mode: %s\n", storage.BuildMode)
			printf(out, "SQLite Driver: %s\n", storage.DriverName)
			printf(out, "Vector Extension: %v\n", storage.VectorExtensionAvailable)
		},
	}
}
