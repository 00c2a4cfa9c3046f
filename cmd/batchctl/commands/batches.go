package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/stonezone/batchgen"
	"github.com/stonezone/batchgen/batch"
	"github.com/stonezone/batchgen/id"
	"github.com/stonezone/batchgen/store"
)

func newBatchesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "batches",
		Aliases: []string{"batch", "b"},
		Short:   "List, inspect and delete batches",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newBatchesListCommand(a))
	cmd.AddCommand(newBatchesShowCommand(a))
	cmd.AddCommand(newBatchesDeleteCommand(a))

	return cmd
}

func newBatchesListCommand(a *app) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List batches, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := make([]batch.Status, 0, len(statuses))
			for _, s := range statuses {
				st := batch.Status(s)
				if !st.Valid() {
					return fmt.Errorf("unknown batch status %q", s)
				}
				filter = append(filter, st)
			}

			all, err := a.store.ListBatches(cmd.Context())
			if err != nil {
				return fmt.Errorf("list batches: %w", err)
			}

			out := make([]*batch.Batch, 0, len(all))
			for _, b := range all {
				if len(filter) > 0 && !containsStatus(filter, b.Status) {
					continue
				}
				b.Jobs = currentJobs(cmd.Context(), a.store, b.Jobs)
				b.Recount()
				out = append(out, b)
			}
			batch.SortNewestFirst(out)
			return a.render.batchList(out)
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only show batches in these states (pending, running, completed, failed, cancelled)")
	return cmd
}

func newBatchesShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <batch-id>",
		Short: "Show a batch and the current status of its jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := loadBatch(cmd.Context(), a.store, args[0])
			if err != nil {
				return err
			}
			b.Jobs = currentJobs(cmd.Context(), a.store, b.Jobs)
			b.Recount()
			return a.render.batchDetail(b)
		},
	}
}

func newBatchesDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <batch-id>",
		Short: "Delete the record of a finished batch",
		Long: "Delete removes the batch record of a completed, failed or cancelled batch.\n" +
			"Job status records are left for the sweep.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := loadBatch(cmd.Context(), a.store, args[0])
			if err != nil {
				return err
			}
			if !b.Status.Terminal() {
				return fmt.Errorf("batch %s is %s; only finished batches can be deleted", b.ID, b.Status)
			}
			if err := a.store.DeleteBatch(cmd.Context(), b.ID); err != nil {
				return fmt.Errorf("delete batch %s: %w", b.ID, err)
			}
			a.logger.Info("batch deleted", slog.String("batch_id", b.ID))
			a.render.message("deleted batch %s (%s)", b.ID, b.Name)
			return nil
		},
	}
}

// loadBatch accepts only batch identifiers; the file store uses them as
// file names.
func loadBatch(ctx context.Context, s store.Store, batchID string) (*batch.Batch, error) {
	if _, err := id.ParseBatchID(batchID); err != nil {
		return nil, err
	}
	b, err := s.LoadBatch(ctx, batchID)
	switch {
	case errors.Is(err, batchgen.ErrBatchNotFound):
		return nil, fmt.Errorf("batch %s not found", batchID)
	case err != nil:
		return nil, fmt.Errorf("load batch %s: %w", batchID, err)
	}
	return b, nil
}

func containsStatus(filter []batch.Status, s batch.Status) bool {
	for _, f := range filter {
		if f == s {
			return true
		}
	}
	return false
}
