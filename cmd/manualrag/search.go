package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/manualrag/internal/searcher"
)

func (c *cli) searchCmd() *cobra.Command {
	var (
		vf       vehicleFlags
		manualID string
		limit    int
		semantic bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search an indexed manual",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			req := searcher.SearchRequest{
				Query:    strings.Join(args, " "),
				ManualID: manualID,
				Limit:    limit,
				Options:  a.SearchOptions(),
			}
			req.Options.DisableLexical = semantic
			if manualID == "" {
				v, err := vf.vehicle()
				if err != nil {
					return err
				}
				req.Vehicle = &v
			}

			resp, err := a.Searcher.Search(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(resp.Results) == 0 {
				printf(out, "No grounding available for %q\n", req.Query)
				return nil
			}
			for i, r := range resp.Results {
				location := ""
				if r.PageNumber != nil {
					location = fmt.Sprintf(" p.%d", *r.PageNumber)
				}
				if r.SectionTitle != "" {
					location += " " + r.SectionTitle
				}
				printf(out, "%d. [%s %.4f]%s\n", i+1, r.Method, r.Score, location)
				printf(out, "   %s\n\n", preview(r.Text, 200))
			}
			printf(out, "%d results in %s\n", len(resp.Results), resp.Duration)
			return nil
		},
	}

	vf.register(cmd)
	cmd.Flags().StringVar(&manualID, "manual-id", "", "manual to search; overrides the vehicle flags")
	cmd.Flags().IntVarP(&limit, "limit", "n", searcher.DefaultLimit, "maximum results")
	cmd.Flags().BoolVar(&semantic, "semantic", false, "vector search only")
	return cmd
}

func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > n {
		return text[:n] + "..."
	}
	return text
}
