package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/db"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list RESOURCE_TYPE",
		Short: "List API roots or the collections of an API root",
		Long: `List API roots or the collections of an API root.

Examples:
  # List all API roots
  taxiisrv list api-roots

  # List the collections of an API root in JSON format
  taxiisrv list collections default -j`,
	}
	listCmd.AddCommand(&cobra.Command{
		Use:   "api-roots",
		Short: "List API roots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), opts, func(ctx context.Context, database db.Database) error {
				return listAPIRoots(ctx, cmd.OutOrStdout(), database, opts.jsonOutput)
			})
		},
	})
	listCmd.AddCommand(&cobra.Command{
		Use:   "collections API_ROOT",
		Short: "List the collections of an API root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd.Context(), opts, func(ctx context.Context, database db.Database) error {
				return listCollections(ctx, cmd.OutOrStdout(), database, args[0], opts.jsonOutput)
			})
		},
	})
	return listCmd
}

func withDatabase(ctx context.Context, opts *rootOptions, fn func(context.Context, db.Database) error) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	database, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()
	return fn(ctx, database)
}

func listAPIRoots(ctx context.Context, out io.Writer, catalog db.CatalogManager, jsonOutput bool) error {
	roots, err := catalog.GetAPIRoots(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		printJSON(out, map[string]any{
			"result": 1,
			"value":  roots,
		})
		return nil
	}
	fmt.Fprintln(out, "API roots:")
	for _, r := range roots {
		line := fmt.Sprintf("- %s: %s", r.ID, r.Title)
		if r.IsDefault {
			line += " (default)"
		}
		if r.IsPublic {
			line += " [public]"
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

func listCollections(ctx context.Context, out io.Writer, catalog db.CatalogManager, apiRootID string, jsonOutput bool) error {
	root, err := catalog.GetAPIRoot(ctx, apiRootID)
	if err != nil {
		return err
	}
	if root == nil {
		return fmt.Errorf("api root %s not found", apiRootID)
	}
	collections, err := catalog.GetCollections(ctx, root.ID)
	if err != nil {
		return err
	}
	if jsonOutput {
		printJSON(out, map[string]any{
			"result": 1,
			"value":  collections,
		})
		return nil
	}
	fmt.Fprintf(out, "Collections of %s:\n", root.ID)
	for _, c := range collections {
		line := fmt.Sprintf("- %s: %s", c.ID, c.Title)
		if c.Alias != "" {
			line += " (alias " + c.Alias + ")"
		}
		if c.IsPublic {
			line += " [public read]"
		}
		if c.IsPublicWrite {
			line += " [public write]"
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
