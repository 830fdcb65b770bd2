package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Manage normalized tender documents",
}

var documentsPutCmd = &cobra.Command{
	Use:   "put <tender-id> <file.json>",
	Short: "Upload a normalized document for a tender",
	Long: `Upload a normalized document from a local JSON file. The pipeline's
extractor stages read this document, so it must exist before a run is
triggered.

Examples:
  tenderflow documents put TEN-42 ./normalized.json`,
	Args: cobra.ExactArgs(2),
	RunE: runDocumentsPut,
}

func init() {
	documentsCmd.AddCommand(documentsPutCmd)
	rootCmd.AddCommand(documentsCmd)
}

func runDocumentsPut(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	tenderID, path := args[0], args[1]

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	var document map[string]any
	if err := json.Unmarshal(data, &document); err != nil {
		return fmt.Errorf("parse document: %w", err)
	}

	if err := apiClient.PutDocument(ctx, tenderID, document); err != nil {
		return fmt.Errorf("upload document: %w", err)
	}
	fmt.Printf("Stored normalized document for tender %s\n", tenderID)
	return nil
}
