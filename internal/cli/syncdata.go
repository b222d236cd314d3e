package cli

import (
	"github.com/spf13/cobra"

	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/datasync"
)

func newSyncDataCmd(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "sync-data -f FILE",
		Short: "Create the API roots and collections described in a YAML file",
		Long: `Create the API roots and collections described in a YAML file. Entries that
already exist are skipped, so the same file can be applied repeatedly.

Examples:
  taxiisrv sync-data -f data.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := datasync.LoadFile(file)
			if err != nil {
				return err
			}
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

			report, err := datasync.Sync(ctx, database, data)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				printJSON(out, report)
				return nil
			}
			okLabel.Fprintf(out, "api roots: %d created, %d skipped\n", report.APIRootsCreated, report.APIRootsSkipped)
			okLabel.Fprintf(out, "collections: %d created, %d skipped\n", report.CollectionsCreated, report.CollectionsSkipped)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "filename", "f", "", "YAML file describing API roots and collections")
	cmd.MarkFlagRequired("filename")
	return cmd
}
