package main

import (
	"github.com/spf13/cobra"

	"github.com/dshills/manualrag/pkg/types"
)

func (c *cli) acquireCmd() *cobra.Command {
	var (
		vf   vehicleFlags
		wait bool
	)

	cmd := &cobra.Command{
		Use:   "acquire",
		Short: "Locate, verify and index a vehicle's owner's manual",
		Long: `Run the acquisition waterfall for one vehicle: cache, commercial API,
manufacturer URL patterns, AI discovery, then a web search link.

A verified PDF is mirrored to the blob directory and indexed in the background.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := vf.vehicle()
			if err != nil {
				return err
			}

			a, err := c.openApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			out := cmd.OutOrStdout()
			progress := func(ev types.ProgressEvent) {
				if ev.Detail != "" {
					printf(cmd.ErrOrStderr(), "  %s: %s\n", ev.Stage, ev.Detail)
					return
				}
				printf(cmd.ErrOrStderr(), "  %s\n", ev.Stage)
			}

			outcome, err := a.Orchestrator.Acquire(cmd.Context(), v, progress)
			if err != nil {
				return err
			}

			res := outcome.Result
			printf(out, "Vehicle: %s\n", v)
			printf(out, "Source:  %s\n", res.Source)
			printf(out, "Title:   %s\n", res.ManualTitle)
			printf(out, "URL:     %s\n", res.ManualURL)
			if res.Source == types.SourceWebSearch {
				printf(out, "No verified manual found; open the link above to search manually.\n")
			}
			if outcome.Manual != nil {
				printf(out, "Manual:  %s\n", outcome.Manual.ID)
			}

			if task := outcome.IndexTask; task != nil && wait {
				stats, err := waitWithSpinner(cmd, task, "Indexing")
				if err != nil {
					return err
				}
				printf(out, "Indexed %d chunks from %d pages in %s\n", stats.ChunksStored, stats.PageCount, stats.Duration)
			}
			return nil
		},
	}

	vf.register(cmd)
	cmd.Flags().BoolVar(&wait, "wait", true, "wait for background indexing to finish")
	return cmd
}
