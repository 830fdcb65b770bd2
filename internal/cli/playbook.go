package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tenderwise/tenderflow/internal/models"
)

var (
	playbookTender  string
	playbookSources []string
	playbookFileIDs []string
	playbookForget  bool
)

var playbookCmd = &cobra.Command{
	Use:   "playbook",
	Short: "Run the question playbook for a tender",
	Long: `Run the configured question playbook against a tender's documents.

Sources given with --source are imported into the corpus first; with
--forget they are removed again once the playbook finishes.

Examples:
  tenderflow playbook --tender TEN-42
  tenderflow playbook --tender TEN-42 --source s3://tenders/TEN-42/nit.pdf.json --forget`,
	Args: cobra.NoArgs,
	RunE: runPlaybook,
}

func init() {
	playbookCmd.Flags().StringVarP(&playbookTender, "tender", "t", "", "tender id (required)")
	playbookCmd.Flags().StringSliceVar(&playbookSources, "source", nil, "document URIs to import before running")
	playbookCmd.Flags().StringSliceVar(&playbookFileIDs, "file", nil, "existing corpus file ids to query")
	playbookCmd.Flags().BoolVar(&playbookForget, "forget", false, "delete imported files after the run")
	_ = playbookCmd.MarkFlagRequired("tender")
	rootCmd.AddCommand(playbookCmd)
}

func runPlaybook(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	resp, err := apiClient.RunPlaybook(ctx, models.PlaybookRequest{
		TenderID:       playbookTender,
		SourceURIs:     playbookSources,
		RagFileIDs:     playbookFileIDs,
		ForgetAfterRun: playbookForget,
	})
	if err != nil {
		return fmt.Errorf("playbook: %w", err)
	}

	for i, result := range resp.Results {
		if i > 0 {
			fmt.Println()
		}
		fmt.Println(defaultTheme.statusStyle().Render(result.Question))
		printAnswers(result.Answers)
		if verbose {
			printDocuments(result.Documents)
		}
	}

	if resp.OutputURI != "" {
		fmt.Println()
		fmt.Println(defaultTheme.hintStyle().Render("results saved to " + resp.OutputURI))
	}
	return nil
}
