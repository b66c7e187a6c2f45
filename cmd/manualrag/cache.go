package main

import (
	"github.com/spf13/cobra"
)

func (c *cli) cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the acquisition result cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Remove expired acquisition results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			n, err := a.Cache.Purge(cmd.Context())
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Purged %d expired entries\n", n)
			return nil
		},
	})
	return cmd
}
