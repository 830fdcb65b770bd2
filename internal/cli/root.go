// Package cli provides the command-line interface for tenderflow.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tenderwise/tenderflow/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	serverURL string
	verbose   bool

	// API client, created before every command runs.
	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "tenderflow",
	Short: "Tender procurement pipeline and RAG toolkit",
	Long: `Tenderflow drives tender document pipelines and answers questions
against a tender's document corpus.

Trigger processing runs, watch their progress, run question playbooks
and ask ad-hoc questions grounded in the tender's documents.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		apiClient = client.New(serverURL)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default $TENDERFLOW_SERVER_URL or http://localhost:8080)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// exitWithError prints an error message and exits with code 1.
func exitWithError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
