package cli

import (
	"github.com/spf13/cobra"

	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/jobsweeper"
)

func newCleanupJobsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup-jobs",
		Short: "Delete ingestion jobs completed more than 24 hours ago",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			database, err := openDatabase(ctx, cfg)
			if err != nil {
				return err
			}
			defer database.Close()

			removed, err := jobsweeper.New(database, 0).Sweep(ctx)
			if err != nil {
				return err
			}
			if opts.jsonOutput {
				printJSON(cmd.OutOrStdout(), map[string]int{"removed": removed})
				return nil
			}
			okLabel.Fprintf(cmd.OutOrStdout(), "%d jobs removed\n", removed)
			return nil
		},
	}
}
