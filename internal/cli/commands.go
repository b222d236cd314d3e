// Package cli implements the taxiisrv command line: the server itself and the maintenance
// commands that work directly against its database.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/server"
)

// EnvConfigFile names the configuration file when --config is not given.
const EnvConfigFile = "TAXII_CONFIG"

// DefaultConfigFile is used when neither --config nor TAXII_CONFIG is set.
const DefaultConfigFile = "taxii.toml"

var ErrAlreadyHandled = errors.New("already handled")

var okLabel = color.New(color.FgGreen)
var errorLabel = color.New(color.FgRed)

type rootOptions struct {
	configFile string
	jsonOutput bool
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "taxiisrv [command] [flags]",
		Short: "TAXII 2.1 server",
		Long: `taxiisrv serves STIX 2.1 objects over the TAXII 2.1 API and maintains the
database behind it.

Examples:
  # Start the server
  taxiisrv serve --config taxii.toml

  # Create the API roots and collections described in a file
  taxiisrv sync-data -f data.yaml

  # List the collections of an API root
  taxiisrv list collections default

  # Remove expired ingestion jobs
  taxiisrv cleanup-jobs`,
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "", "", "Path to the configuration file (default $"+EnvConfigFile+" or "+DefaultConfigFile+")")
	rootCmd.PersistentFlags().BoolVarP(&opts.jsonOutput, "json", "j", false, "Output in JSON format")

	rootCmd.AddCommand(newVersionCmd(opts))
	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newCleanupJobsCmd(opts))
	rootCmd.AddCommand(newSyncDataCmd(opts))
	rootCmd.AddCommand(newListCmd(opts))
	return rootCmd
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	rootCmd := NewRootCmd()
	err := rootCmd.Execute()
	if err != nil {
		if errors.Is(err, ErrAlreadyHandled) {
			os.Exit(1)
		}
		if jsonOutput, _ := rootCmd.PersistentFlags().GetBool("json"); jsonOutput {
			printJSON(os.Stdout, map[string]string{
				"error": err.Error(),
			})
		} else {
			errorLabel.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newVersionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of taxiisrv",
		Run: func(cmd *cobra.Command, args []string) {
			if opts.jsonOutput {
				printJSON(cmd.OutOrStdout(), map[string]string{
					"version": server.ServerVersion,
				})
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "taxiisrv %s\n", server.ServerVersion)
		},
	}
}

// printJSON writes data as indented JSON.
func printJSON(w io.Writer, data any) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(w, string(jsonData))
}
