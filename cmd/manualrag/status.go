package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/dshills/manualrag/internal/storage"
	"github.com/dshills/manualrag/pkg/types"
)

func (c *cli) statusCmd() *cobra.Command {
	var (
		vf       vehicleFlags
		manualID string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show manual processing status, or list all manuals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if manualID == "" && !vf.set() {
				manuals, err := a.Storage.ListManuals(ctx)
				if err != nil {
					return err
				}
				if len(manuals) == 0 {
					printf(out, "No manuals recorded\n")
				}
				for _, m := range manuals {
					printf(out, "%s  %-10s  %-15s  %s\n", m.ID, m.Status, m.Source, m.VehicleKey)
				}
				return nil
			}

			var manual *types.Manual
			if manualID != "" {
				manual, err = a.Storage.GetManual(ctx, manualID)
			} else {
				v, verr := vf.vehicle()
				if verr != nil {
					return verr
				}
				manual, err = a.Storage.GetManualByVehicleKey(ctx, v.Key())
			}
			if errors.Is(err, storage.ErrNotFound) {
				printf(out, "No manual recorded\n")
				return nil
			}
			if err != nil {
				return err
			}

			status, err := a.Storage.GetStatus(ctx, manual.ID)
			if err != nil {
				return err
			}

			printf(out, "Manual:     %s\n", manual.ID)
			printf(out, "Vehicle:    %s\n", manual.VehicleKey)
			printf(out, "Title:      %s\n", manual.Title)
			printf(out, "Source:     %s %s\n", manual.Source, manual.SourceURL)
			if manual.BlobURL != "" {
				printf(out, "Mirror:     %s\n", manual.BlobURL)
			}
			printf(out, "Status:     %s\n", manual.Status)
			if manual.ErrorMessage != "" {
				printf(out, "Error:      %s\n", manual.ErrorMessage)
			}
			printf(out, "Pages:      %d\n", manual.PageCount)
			printf(out, "Chunks:     %d (%d embedded, dim %d)\n", status.ChunksCount, status.EmbeddingsCount, status.EmbeddingDimension)
			printf(out, "Index size: %.2f MB\n", status.IndexSizeMB)
			return nil
		},
	}

	vf.register(cmd)
	cmd.Flags().StringVar(&manualID, "manual-id", "", "manual ID; overrides the vehicle flags")
	return cmd
}
