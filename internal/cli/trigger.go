package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tenderwise/tenderflow/internal/models"
)

var (
	triggerIngestJob string
	triggerReason    string
)

var triggerCmd = &cobra.Command{
	Use:   "trigger <tender-id>",
	Short: "Start a pipeline run for a tender",
	Long: `Start a processing pipeline run for a tender.

Examples:
  tenderflow trigger TEN-42
  tenderflow trigger TEN-42 --ingest-job job-7 --reason reprocess`,
	Args: cobra.ExactArgs(1),
	RunE: runTrigger,
}

func init() {
	triggerCmd.Flags().StringVar(&triggerIngestJob, "ingest-job", "", "ingest job id that produced the documents")
	triggerCmd.Flags().StringVar(&triggerReason, "reason", "manual", "trigger reason recorded on the run")
	rootCmd.AddCommand(triggerCmd)
}

func runTrigger(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	resp, err := apiClient.TriggerPipeline(ctx, models.TriggerMessage{
		TenderID:    args[0],
		IngestJobID: triggerIngestJob,
		Trigger:     triggerReason,
	})
	if err != nil {
		return fmt.Errorf("trigger: %w", err)
	}

	fmt.Printf("Run %s accepted for tender %s\n", resp.RunID, resp.TenderID)
	fmt.Println(defaultTheme.hintStyle().Render("follow progress with: tenderflow runs " + resp.TenderID + " --watch"))
	return nil
}
