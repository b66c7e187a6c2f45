package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/dshills/manualrag/internal/indexer"
	"github.com/dshills/manualrag/internal/storage"
	"github.com/dshills/manualrag/pkg/types"
)

func (c *cli) indexCmd() *cobra.Command {
	var (
		vf       vehicleFlags
		manualID string
		title    string
	)

	cmd := &cobra.Command{
		Use:   "index <file>",
		Short: "Index a manual from a PDF or plain-text file",
		Long: `Index a local owner's manual. Files ending in .pdf are run through
pdftotext first; anything else is read as extracted text.

Examples:
  manualrag index --year 2022 --make Toyota --model Camry camry.pdf
  manualrag index --manual-id 6b1f... manual.txt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			a, err := c.openApp()
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			manual, err := lookupOrCreate(cmd.Context(), a.Storage, manualID, &vf, title)
			if err != nil {
				return err
			}

			job := indexer.Job{ManualID: manual.ID}
			if strings.EqualFold(filepath.Ext(args[0]), ".pdf") {
				job.PDF = data
			} else {
				job.Text = string(data)
			}

			stats, err := waitWithSpinner(cmd, a.Queue.Submit(job), "Indexing "+filepath.Base(args[0]))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printf(out, "Manual:  %s\n", manual.ID)
			printf(out, "Chunks:  %d created, %d stored, %d replaced\n", stats.ChunksCreated, stats.ChunksStored, stats.ChunksDeleted)
			printf(out, "Pages:   %d\n", stats.PageCount)
			printf(out, "Elapsed: %s\n", stats.Duration.Round(time.Millisecond))
			return nil
		},
	}

	vf.register(cmd)
	cmd.Flags().StringVar(&manualID, "manual-id", "", "existing manual to reindex")
	cmd.Flags().StringVar(&title, "title", "", "title for a new manual")
	return cmd
}

// lookupOrCreate resolves the manual by ID or vehicle, creating one for a
// vehicle that has none yet.
func lookupOrCreate(ctx context.Context, store storage.Storage, id string, vf *vehicleFlags, title string) (*types.Manual, error) {
	if id != "" {
		return store.GetManual(ctx, id)
	}

	v, err := vf.vehicle()
	if err != nil {
		return nil, err
	}
	manual, err := store.GetManualByVehicleKey(ctx, v.Key())
	if err == nil || !errors.Is(err, storage.ErrNotFound) {
		return manual, err
	}

	if title == "" {
		title = v.String() + " Owner's Manual"
	}
	manual = &types.Manual{
		ID:      uuid.NewString(),
		Vehicle: v,
		Title:   title,
		Status:  types.StatusPending,
	}
	if err := store.CreateManual(ctx, manual); err != nil {
		return nil, err
	}
	return manual, nil
}

// waitWithSpinner blocks on task while drawing an indeterminate progress bar
func waitWithSpinner(cmd *cobra.Command, task *indexer.Task, description string) (*indexer.Statistics, error) {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionClearOnFinish(),
	)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-task.Done():
			_ = bar.Finish()
			return task.Wait(cmd.Context())
		case <-cmd.Context().Done():
			_ = bar.Finish()
			return nil, cmd.Context().Err()
		case <-ticker.C:
			_ = bar.Add(1)
		}
	}
}
