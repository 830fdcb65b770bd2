package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tenderwise/tenderflow/internal/models"
)

var (
	queryTender   string
	queryPageSize int
	querySources  []string
	queryFileIDs  []string
)

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Ask a question against a tender's document corpus",
	Long: `Ask an ad-hoc question grounded in a tender's indexed documents.

Examples:
  tenderflow query --tender TEN-42 "What is the EMD amount?"
  tenderflow query --tender TEN-42 --source s3://tenders/TEN-42/nit.pdf.json "Submission deadline?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVarP(&queryTender, "tender", "t", "", "tender id (required)")
	queryCmd.Flags().IntVar(&queryPageSize, "page-size", 0, "retrieval result count")
	queryCmd.Flags().StringSliceVar(&querySources, "source", nil, "restrict retrieval to these source URIs")
	queryCmd.Flags().StringSliceVar(&queryFileIDs, "file", nil, "restrict retrieval to these corpus file ids")
	_ = queryCmd.MarkFlagRequired("tender")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	question := strings.Join(args, " ")

	resp, err := apiClient.RagQuery(ctx, models.RagQueryRequest{
		TenderID:   queryTender,
		Question:   question,
		PageSize:   queryPageSize,
		SourceURIs: querySources,
		RagFileIDs: queryFileIDs,
	})
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}

	printAnswers(resp.Answers)
	if verbose {
		printDocuments(resp.Documents)
	}
	return nil
}

func printAnswers(answers []models.RagAnswer) {
	if len(answers) == 0 {
		fmt.Println("No answer")
		return
	}
	for i, answer := range answers {
		if i > 0 {
			fmt.Println()
		}
		fmt.Println(answer.Text)
		for _, c := range answer.Citations {
			for _, src := range c.Sources {
				fmt.Println(defaultTheme.hintStyle().Render("  source: " + src.SourceURI))
			}
		}
		for _, ev := range answer.Evidence {
			fmt.Println(defaultTheme.hintStyle().Render(fmt.Sprintf("  evidence: %s (%s)", ev.Snippet, ev.DocURI)))
		}
	}
}

func printDocuments(docs []models.RagDocument) {
	if len(docs) == 0 {
		return
	}
	fmt.Println()
	fmt.Println("Retrieved documents:")
	for _, doc := range docs {
		fmt.Printf("  %s\n", doc.Title)
		fmt.Println(defaultTheme.hintStyle().Render("    " + doc.URI))
		if doc.Snippet != "" {
			fmt.Println(defaultTheme.hintStyle().Render("    " + doc.Snippet))
		}
	}
}
