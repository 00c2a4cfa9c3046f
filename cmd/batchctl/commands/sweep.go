package commands

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

func newSweepCommand(a *app) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete job status records older than a maximum age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			age := a.cfg.StatusMaxAge
			if cmd.Flags().Changed("max-age") {
				age = maxAge
			}
			if age <= 0 {
				return fmt.Errorf("max age must be positive, got %s", age)
			}

			res, err := a.store.Sweep(cmd.Context(), age)
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			if a.render.json {
				return a.render.printJSON(map[string]any{
					"scanned": res.Scanned,
					"removed": res.Removed,
					"errors":  len(res.Errors),
				})
			}
			a.render.message("scanned %d, removed %d, errors %d", res.Scanned, res.Removed, len(res.Errors))
			for _, e := range res.Errors {
				a.logger.Warn("sweep error", slog.String("error", e.Error()))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Remove records older than this (default status_max_age)")
	return cmd
}
