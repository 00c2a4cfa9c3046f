package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stonezone/batchgen/id"
)

func newJobsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "jobs",
		Aliases: []string{"job", "j"},
		Short:   "Inspect job status records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <job-id>",
		Short: "Show the status record of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := id.ParseJobID(args[0]); err != nil {
				return err
			}
			j, ok := a.store.Read(cmd.Context(), args[0])
			if !ok {
				return fmt.Errorf("no readable status record for job %s", args[0])
			}
			return a.render.jobDetail(j)
		},
	})

	return cmd
}
