package main

import (
	"github.com/spf13/cobra"

	"github.com/dshills/manualrag/internal/mcp"
	"github.com/dshills/manualrag/internal/storage"
)

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp()
			if err != nil {
				return err
			}

			server, err := mcp.NewServer(a)
			if err != nil {
				_ = a.Close()
				return err
			}

			a.Logger.Info("server_starting",
				"version", version,
				"build_mode", storage.BuildMode,
				"driver", storage.DriverName,
				"embedding_model", a.Embedder.Model())
			return server.Serve(cmd.Context())
		},
	}
}
